// Package classifier sorts captured addresses into firmware traps,
// application code and unresolvable addresses.
package classifier

import (
	"github.com/macprof-analysis/pkg/collections"
	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

// FirmwareSymbols resolves firmware-relative addresses to routine names.
type FirmwareSymbols interface {
	Lookup(addr uint32) (string, bool)
}

// Stats counts what classification did to the raw stacks.
type Stats struct {
	TotalStacks int
	// EmptyStacks had no frames at all.
	EmptyStacks int
	// UnresolvedStacks had at least one address outside every known region.
	UnresolvedStacks int
	KeptStacks       int
}

// Dropped returns the number of stacks removed before symbolication.
func (s Stats) Dropped() int {
	return s.EmptyStacks + s.UnresolvedStacks
}

// Classifier assigns an AddrInfo to every global address. Results go into a
// shared AddrCache and an address is classified at most once.
type Classifier struct {
	firmwareBase uint32
	firmwareEnd  uint64
	firmware     FirmwareSymbols
	segments     *collections.FloorMap[uint32, model.CodeSegment]
	cache        *model.AddrCache
	logger       utils.Logger
}

// New creates a classifier for a decoded capture. The capture's
// FirmwareSize and segment section bounds must already be filled in.
func New(capture *model.Capture, firmware FirmwareSymbols, cache *model.AddrCache, logger utils.Logger) *Classifier {
	segments := collections.NewFloorMap[uint32, model.CodeSegment]()
	for _, seg := range capture.Segments {
		segments.Put(seg.Start, seg)
	}
	return &Classifier{
		firmwareBase: capture.FirmwareBase,
		firmwareEnd:  capture.FirmwareEnd(),
		firmware:     firmware,
		segments:     segments,
		cache:        cache,
		logger:       utils.OrNull(logger),
	}
}

// Classify returns the cached AddrInfo for addr, classifying it first if
// needed.
func (c *Classifier) Classify(addr uint32) *model.AddrInfo {
	if info, ok := c.cache.Get(addr); ok {
		return info
	}
	return c.cache.Add(addr, c.classify(addr))
}

func (c *Classifier) classify(addr uint32) *model.AddrInfo {
	if addr >= c.firmwareBase {
		if uint64(addr) >= c.firmwareEnd {
			return &model.AddrInfo{Kind: model.AddrUnresolved, Addr: addr}
		}
		rel := addr - c.firmwareBase
		info := &model.AddrInfo{Kind: model.AddrTrap, Addr: rel}
		if c.firmware != nil {
			info.Symbol, _ = c.firmware.Lookup(rel)
		}
		return info
	}

	if _, seg, ok := c.segments.Floor(addr); ok && seg.Contains(addr) {
		return &model.AddrInfo{Kind: model.AddrFunction, Addr: seg.Translate(addr)}
	}
	return &model.AddrInfo{Kind: model.AddrUnresolved, Addr: addr}
}

// ClassifyStacks classifies every frame and returns the stacks that can go on
// to symbolication: non-empty and free of unresolved addresses. Frames after
// the first unresolved one are not classified.
func (c *Classifier) ClassifyStacks(stacks []model.RawStack) ([]model.RawStack, Stats) {
	stats := Stats{TotalStacks: len(stacks)}
	kept := make([]model.RawStack, 0, len(stacks))

	for _, stack := range stacks {
		if len(stack) == 0 {
			stats.EmptyStacks++
			continue
		}

		usable := true
		for _, addr := range stack {
			if c.Classify(addr).Kind == model.AddrUnresolved {
				usable = false
				break
			}
		}
		if !usable {
			stats.UnresolvedStacks++
			continue
		}
		kept = append(kept, stack)
	}
	stats.KeptStacks = len(kept)

	c.logger.WithFields(map[string]interface{}{
		"traps":      c.cache.CountByKind(model.AddrTrap),
		"functions":  c.cache.CountByKind(model.AddrFunction),
		"unresolved": c.cache.CountByKind(model.AddrUnresolved),
	}).Info("Classified %d stacks: %d kept, %d empty, %d unresolved",
		stats.TotalStacks, stats.KeptStacks, stats.EmptyStacks, stats.UnresolvedStacks)

	return kept, stats
}
