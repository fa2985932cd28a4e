package capture

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macprof-analysis/internal/testutil"
	"github.com/macprof-analysis/pkg/compression"
	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
)

func decode(t *testing.T, data []byte) (*model.Capture, error) {
	t.Helper()
	return NewDecoder(nil).Decode(context.Background(), bytes.NewReader(data))
}

func TestDecoder_Decode(t *testing.T) {
	data := testutil.NewCaptureBuilder("Macintosh SE/30", 0x40800000,
		testutil.Segment{ID: 1, Start: 0x1000, End: 0x2000},
	).
		Stack(0x1006).
		Stack(0x1106, 0x1208, 0x40801000).
		Bytes()

	c, err := decode(t, data)
	require.NoError(t, err)

	assert.Equal(t, "Macintosh SE/30", c.Model)
	assert.Equal(t, uint32(0x40800000), c.FirmwareBase)
	assert.Zero(t, c.FirmwareSize)
	require.Len(t, c.Segments, 1)
	assert.Equal(t, model.CodeSegment{ID: 1, Start: 0x1000, End: 0x2000}, c.Segments[0])

	require.Len(t, c.Stacks, 2)
	assert.Equal(t, model.RawStack{0x1004}, c.Stacks[0])
	assert.Equal(t, model.RawStack{0x1104, 0x1206, 0x40800ffe}, c.Stacks[1])
}

func TestDecoder_PaddingByModelLength(t *testing.T) {
	// "SE" gives a 3-byte record and needs a pad byte; "SE1" gives 4 bytes.
	for _, name := range []string{"SE", "SE1", ""} {
		t.Run(name, func(t *testing.T) {
			data := testutil.NewCaptureBuilder(name, 0x400000,
				testutil.Segment{ID: 1, Start: 0x100, End: 0x200},
			).Stack(0x108).Bytes()

			c, err := decode(t, data)
			require.NoError(t, err)
			assert.Equal(t, name, c.Model)
			assert.Equal(t, uint32(0x400000), c.FirmwareBase)
			assert.Equal(t, []model.RawStack{{0x106}}, c.Stacks)
		})
	}
}

func TestDecoder_MacRomanModel(t *testing.T) {
	// 0xA5 is a bullet in Mac Roman.
	data := []byte{3, 'S', 0xA5, 'E', 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}

	c, err := decode(t, data)
	require.NoError(t, err)
	assert.Equal(t, "S•E", c.Model)
	assert.Equal(t, uint32(0x01), c.FirmwareBase)
	assert.Empty(t, c.Segments)
	assert.Empty(t, c.Stacks)
}

func TestDecoder_EmptyStackRecord(t *testing.T) {
	data := testutil.NewCaptureBuilder("SE", 0x400000,
		testutil.Segment{ID: 1, Start: 0x100, End: 0x200},
	).Stack().Stack(0x110).Bytes()

	c, err := decode(t, data)
	require.NoError(t, err)
	require.Len(t, c.Stacks, 2)
	assert.Empty(t, c.Stacks[0])
}

func TestDecoder_CustomBias(t *testing.T) {
	data := testutil.NewCaptureBuilder("SE", 0x400000,
		testutil.Segment{ID: 1, Start: 0x100, End: 0x200},
	).Stack(0x110).Bytes()

	c, err := NewDecoder(&DecoderOptions{ReturnBias: 0}).Decode(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, model.RawStack{0x110}, c.Stacks[0])
}

func TestDecoder_Truncated(t *testing.T) {
	full := testutil.NewCaptureBuilder("SE", 0x400000,
		testutil.Segment{ID: 1, Start: 0x100, End: 0x200},
	).Stack(0x110, 0x120).Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short model", []byte{5, 'S', 'E'}},
		{"missing pad", []byte{2, 'S', 'E'}},
		{"short firmware base", full[:5]},
		{"missing segment count", full[:8]},
		{"short segment record", full[:13]},
		{"odd trailing byte", append(append([]byte{}, full...), 0x00)},
		{"short stack frame", full[:len(full)-2]},
		{"missing frames", full[:len(full)-8]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := decode(t, tt.data)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, apperrors.IsTruncatedCapture(err), "got %v", err)
		})
	}
}

func TestDecoder_InvalidSegments(t *testing.T) {
	tests := []struct {
		name     string
		segments []testutil.Segment
	}{
		{"overlap", []testutil.Segment{{ID: 1, Start: 0x1000, End: 0x2000}, {ID: 2, Start: 0x1800, End: 0x3000}}},
		{"empty range", []testutil.Segment{{ID: 1, Start: 0x1000, End: 0x1000}}},
		{"duplicate id", []testutil.Segment{{ID: 1, Start: 0x1000, End: 0x2000}, {ID: 1, Start: 0x3000, End: 0x4000}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testutil.NewCaptureBuilder("SE", 0x400000, tt.segments...).Bytes()
			_, err := decode(t, data)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
		})
	}
}

func TestDecoder_AdjacentSegments(t *testing.T) {
	data := testutil.NewCaptureBuilder("IIcx", 0x40800000,
		testutil.Segment{ID: 2, Start: 0x2000, End: 0x3000},
		testutil.Segment{ID: 1, Start: 0x1000, End: 0x2000},
	).Bytes()

	c, err := decode(t, data)
	require.NoError(t, err)
	require.Len(t, c.Segments, 2)
	assert.Equal(t, uint16(2), c.Segments[0].ID, "capture order is preserved")
}

func TestDecoder_DecodeFile(t *testing.T) {
	dir := t.TempDir()
	data := testutil.NewCaptureBuilder("SE", 0x400000,
		testutil.Segment{ID: 1, Start: 0x100, End: 0x200},
	).Stack(0x110).Bytes()
	path := testutil.WriteFile(t, dir, "profile.bin", data)

	c, err := NewDecoder(nil).DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, c.Stacks, 1)

	_, err = NewDecoder(nil).DecodeFile(context.Background(), filepath.Join(dir, "missing.bin"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))
}

func TestDecoder_DecodeFile_Compressed(t *testing.T) {
	data := testutil.NewCaptureBuilder("Macintosh SE", 0x400000,
		testutil.Segment{ID: 1, Start: 0x100, End: 0x200},
	).Stack(0x110, 0x120).Stack(0x130).Bytes()

	for _, typ := range []compression.Type{compression.TypeGzip, compression.TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := compression.NewWriter(&buf, typ)
			require.NoError(t, err)
			_, err = w.Write(data)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			path := testutil.WriteFile(t, t.TempDir(), "profile.bin", buf.Bytes())
			c, err := NewDecoder(nil).DecodeFile(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, "Macintosh SE", c.Model)
			assert.Len(t, c.Stacks, 2)
		})
	}
}

func TestDecoder_Cancelled(t *testing.T) {
	data := testutil.NewCaptureBuilder("SE", 0x400000,
		testutil.Segment{ID: 1, Start: 0x100, End: 0x200},
	).Stack(0x110).Bytes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDecoder(nil).Decode(ctx, bytes.NewReader(data))
	assert.ErrorIs(t, err, context.Canceled)
}
