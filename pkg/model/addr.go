package model

// AddrKind classifies a global address.
type AddrKind int

const (
	// AddrUnresolved lies outside the firmware and every code segment.
	AddrUnresolved AddrKind = iota
	// AddrTrap lies inside the firmware region.
	AddrTrap
	// AddrFunction lies inside an application code segment.
	AddrFunction
)

// String returns the string representation of AddrKind.
func (k AddrKind) String() string {
	switch k {
	case AddrTrap:
		return "trap"
	case AddrFunction:
		return "func"
	default:
		return "unresolved"
	}
}

// SourceLocation is a resolved file and line.
type SourceLocation struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// AddrInfo is everything known about one global address.
type AddrInfo struct {
	Kind AddrKind `json:"kind"`

	// Addr is the translated address: firmware-relative for traps, the
	// on-disk offset for functions.
	Addr uint32 `json:"addr"`

	// Symbol is empty until resolved.
	Symbol string `json:"symbol,omitempty"`

	// Location is nil when file/line are unavailable.
	Location *SourceLocation `json:"location,omitempty"`

	// Source is one line of source text at Location.
	Source string `json:"source,omitempty"`
}

// HasSymbol reports whether the address resolved to a symbol.
func (a *AddrInfo) HasSymbol() bool {
	return a != nil && a.Symbol != ""
}

// HasLocation reports whether the address carries file and line.
func (a *AddrInfo) HasLocation() bool {
	return a != nil && a.Location != nil
}

// AddrCache is the append-only address table shared by every stage of a run.
// Entries are added once and later stages only fill in fields; a
// classification is never replaced.
type AddrCache struct {
	entries map[uint32]*AddrInfo
	order   []uint32
}

// NewAddrCache creates an empty cache.
func NewAddrCache() *AddrCache {
	return &AddrCache{entries: make(map[uint32]*AddrInfo)}
}

// Get returns the entry for a global address.
func (c *AddrCache) Get(addr uint32) (*AddrInfo, bool) {
	info, ok := c.entries[addr]
	return info, ok
}

// Add stores info under addr unless an entry exists, and returns the entry
// now held by the cache.
func (c *AddrCache) Add(addr uint32, info *AddrInfo) *AddrInfo {
	if existing, ok := c.entries[addr]; ok {
		return existing
	}
	c.entries[addr] = info
	c.order = append(c.order, addr)
	return info
}

// Len returns the number of cached addresses.
func (c *AddrCache) Len() int {
	return len(c.entries)
}

// Addrs returns all cached global addresses in insertion order.
func (c *AddrCache) Addrs() []uint32 {
	out := make([]uint32, len(c.order))
	copy(out, c.order)
	return out
}

// Pending returns function addresses that have no symbol yet, in insertion
// order.
func (c *AddrCache) Pending() []uint32 {
	var out []uint32
	for _, addr := range c.order {
		info := c.entries[addr]
		if info.Kind == AddrFunction && info.Symbol == "" {
			out = append(out, addr)
		}
	}
	return out
}

// CountByKind returns how many cached addresses have the given kind.
func (c *AddrCache) CountByKind(kind AddrKind) int {
	n := 0
	for _, info := range c.entries {
		if info.Kind == kind {
			n++
		}
	}
	return n
}
