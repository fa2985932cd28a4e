package testutil

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/text/encoding/charmap"
)

// Segment describes one code-segment record of a capture header.
type Segment struct {
	ID    uint16
	Start uint32
	End   uint32
}

// CaptureBuilder assembles capture files byte by byte. Stack values are
// written raw, as the profiler would record them (before the return-address
// correction).
type CaptureBuilder struct {
	buf bytes.Buffer
}

// NewCaptureBuilder writes the capture header.
func NewCaptureBuilder(model string, firmwareBase uint32, segments ...Segment) *CaptureBuilder {
	b := &CaptureBuilder{}

	name, err := charmap.Macintosh.NewEncoder().String(model)
	if err != nil {
		name = model
	}
	b.buf.WriteByte(byte(len(name)))
	b.buf.WriteString(name)
	if (len(name)+1)%2 == 1 {
		b.buf.WriteByte(0)
	}

	b.u32(firmwareBase)
	b.u16(uint16(len(segments)))
	for _, s := range segments {
		b.u16(s.ID)
		b.u32(s.Start)
		b.u32(s.End)
	}
	return b
}

// Stack appends one stack record, innermost frame first.
func (b *CaptureBuilder) Stack(raw ...uint32) *CaptureBuilder {
	b.u16(uint16(len(raw)))
	for _, v := range raw {
		b.u32(v)
	}
	return b
}

// Raw appends arbitrary bytes, for building malformed captures.
func (b *CaptureBuilder) Raw(p ...byte) *CaptureBuilder {
	b.buf.Write(p)
	return b
}

// Bytes returns the encoded capture.
func (b *CaptureBuilder) Bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}

func (b *CaptureBuilder) u16(v uint16) {
	_ = binary.Write(&b.buf, binary.BigEndian, v)
}

func (b *CaptureBuilder) u32(v uint32) {
	_ = binary.Write(&b.buf, binary.BigEndian, v)
}
