// Package model defines the data shared by the capture pipeline stages.
package model

import "fmt"

// ReturnAddressBias is subtracted from every captured value: the capture
// records return addresses, one instruction step past the calling site.
const ReturnAddressBias = 2

// CodeSegment is one application code range in the captured address space
// together with the on-disk section it was loaded from.
type CodeSegment struct {
	ID    uint16 `json:"id"`
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`

	// SectionStart and SectionEnd bound the matching section in the binary.
	// Both are zero when no section layout is applied (offset 0 translation).
	SectionStart uint32 `json:"section_start"`
	SectionEnd   uint32 `json:"section_end"`
}

// Contains reports whether addr lies in [Start, End).
func (s CodeSegment) Contains(addr uint32) bool {
	return addr >= s.Start && addr < s.End
}

// Translate maps a captured address inside the segment to its file offset.
func (s CodeSegment) Translate(addr uint32) uint32 {
	return addr - s.Start + s.SectionStart
}

// Size returns the length of the captured range.
func (s CodeSegment) Size() uint32 {
	return s.End - s.Start
}

func (s CodeSegment) String() string {
	return fmt.Sprintf("segment %d [0x%08x,0x%08x)", s.ID, s.Start, s.End)
}

// RawStack is a sampled call stack, innermost frame first, with every value
// already corrected by ReturnAddressBias.
type RawStack []uint32

// Capture is the decoded content of a capture file.
type Capture struct {
	Model        string
	FirmwareBase uint32

	// FirmwareSize is unknown to the capture itself; it is filled in from
	// the firmware symbol map.
	FirmwareSize uint32

	Segments []CodeSegment
	Stacks   []RawStack
}

// FirmwareEnd returns the first address past the firmware region.
func (c *Capture) FirmwareEnd() uint64 {
	return uint64(c.FirmwareBase) + uint64(c.FirmwareSize)
}
