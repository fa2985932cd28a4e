package symbolizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
)

const multiSegmentHeaders = `
App.code.bin.gdb:     file format elf32-m68k

Sections:
Idx Name          Size      VMA       LMA       File off  Algn  Flags
  0 .code00001    00000800  00000000  00000000  00000034  2**2  CONTENTS, ALLOC, LOAD, READONLY, CODE
  1 .code00002    00000400  00000800  00000800  00000834  2**2  CONTENTS, ALLOC, LOAD, READONLY, CODE
  2 .data         00000100  00000c00  00000c00  00000c34  2**2  CONTENTS, ALLOC, LOAD, DATA
  3 .debug_line   00000200  00000000  00000000  00000d34  2**0  CONTENTS, READONLY, DEBUGGING
`

const singleTextHeaders = `
Sections:
Idx Name          Size      VMA       LMA       File off  Algn  Flags
  0 .text         00001000  00000000  00000000  00000034  2**2  CONTENTS, ALLOC, LOAD, READONLY, CODE
`

func TestParseSections(t *testing.T) {
	sections, err := ParseSections([]byte(multiSegmentHeaders))
	require.NoError(t, err)
	require.Len(t, sections, 4)
	assert.Equal(t, Section{Name: ".code00002", Size: 0x400, VMA: 0x800}, sections[1])
}

func TestApplySections_MultiSegment(t *testing.T) {
	sections, err := ParseSections([]byte(multiSegmentHeaders))
	require.NoError(t, err)

	capture := &model.Capture{Segments: []model.CodeSegment{
		{ID: 2, Start: 0x30000, End: 0x30400},
		{ID: 1, Start: 0x20000, End: 0x20800},
	}}
	require.NoError(t, ApplySections(capture, sections, DefaultCodeSectionPrefix, nil))

	assert.Equal(t, uint32(0x800), capture.Segments[0].SectionStart)
	assert.Equal(t, uint32(0xc00), capture.Segments[0].SectionEnd)
	assert.Equal(t, uint32(0x0), capture.Segments[1].SectionStart)
	assert.Equal(t, uint32(0x30010-0x30000+0x800), capture.Segments[0].Translate(0x30010))
}

func TestApplySections_SingleText(t *testing.T) {
	sections, err := ParseSections([]byte(singleTextHeaders))
	require.NoError(t, err)

	capture := &model.Capture{Segments: []model.CodeSegment{{ID: 1, Start: 0x1000, End: 0x2000}}}
	require.NoError(t, ApplySections(capture, sections, DefaultCodeSectionPrefix, nil))
	assert.Equal(t, uint32(0x1000), capture.Segments[0].SectionEnd)
}

func TestApplySections_CountMismatch(t *testing.T) {
	sections, err := ParseSections([]byte(multiSegmentHeaders))
	require.NoError(t, err)

	tests := []struct {
		name     string
		segments []model.CodeSegment
	}{
		{"fewer segments", []model.CodeSegment{{ID: 1, Start: 0x1000, End: 0x1800}}},
		{"wrong ids", []model.CodeSegment{{ID: 1, Start: 0x1000, End: 0x1800}, {ID: 7, Start: 0x2000, End: 0x2400}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ApplySections(&model.Capture{Segments: tt.segments}, sections, DefaultCodeSectionPrefix, nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsSegmentCountMismatch(err))
		})
	}
}

func TestApplyNoLayout(t *testing.T) {
	capture := &model.Capture{Segments: []model.CodeSegment{{ID: 1, Start: 0x1000, End: 0x2000}}}
	require.NoError(t, ApplyNoLayout(capture))
	assert.Equal(t, uint32(0x4), capture.Segments[0].Translate(0x1004))

	capture.Segments = append(capture.Segments, model.CodeSegment{ID: 2, Start: 0x3000, End: 0x4000})
	assert.True(t, apperrors.IsSegmentCountMismatch(ApplyNoLayout(capture)))
}

func TestSectionLayout_Apply(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["-h"] = singleTextHeaders

	capture := &model.Capture{Segments: []model.CodeSegment{{ID: 1, Start: 0x1000, End: 0x2000}}}
	layout := NewSectionLayout(runner, "m68k-objdump", "", nil)
	require.NoError(t, layout.Apply(context.Background(), testBinary, capture))

	assert.Equal(t, []string{"m68k-objdump", "-h", "-w", testBinary}, runner.calls[0])
	assert.Equal(t, uint32(0x1000), capture.Segments[0].SectionEnd)
}
