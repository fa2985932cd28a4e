// Package capture decodes profiler capture files.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/text/encoding/charmap"

	"github.com/macprof-analysis/pkg/compression"
	apperrors "github.com/macprof-analysis/pkg/errors"
	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

// DecoderOptions holds configuration options for the capture decoder.
type DecoderOptions struct {
	// ReturnBias is subtracted from every captured stack value.
	ReturnBias uint32

	Logger utils.Logger
}

// DefaultDecoderOptions returns default decoder options.
func DefaultDecoderOptions() *DecoderOptions {
	return &DecoderOptions{ReturnBias: model.ReturnAddressBias}
}

// Decoder parses the binary capture format.
//
// Layout, big-endian throughout:
//
//	u8 len, len bytes Mac Roman model name, pad byte if (len+1) is odd
//	u32 firmware base
//	u16 segment count, then per segment: u16 id, u32 start, u32 end
//	until EOF: u16 frame count K, then K u32 return addresses
type Decoder struct {
	opts   *DecoderOptions
	logger utils.Logger
}

// NewDecoder creates a capture decoder.
func NewDecoder(opts *DecoderOptions) *Decoder {
	if opts == nil {
		opts = DefaultDecoderOptions()
	}
	return &Decoder{opts: opts, logger: utils.OrNull(opts.Logger)}
}

// DecodeFile opens and decodes a capture file.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*model.Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, "open capture "+path, err)
	}
	defer f.Close()

	r, typ, err := compression.NewReader(f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "read capture "+path, err)
	}
	defer r.Close()
	if typ != compression.TypeNone {
		d.logger.Debug("Capture %s is %s-compressed", path, typ)
	}

	return d.Decode(ctx, r)
}

// Decode reads a whole capture from r. Any short read aborts the decode with
// a TruncatedCapture error and no partial result.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (*model.Capture, error) {
	cr := &captureReader{r: bufio.NewReader(r)}

	modelName, err := cr.pstring()
	if err != nil {
		return nil, truncated("model name", err)
	}

	base, err := cr.u32()
	if err != nil {
		return nil, truncated("firmware base", err)
	}

	segCount, err := cr.u16()
	if err != nil {
		return nil, truncated("segment count", err)
	}

	segments := make([]model.CodeSegment, 0, segCount)
	for i := 0; i < int(segCount); i++ {
		var seg model.CodeSegment
		if seg.ID, err = cr.u16(); err != nil {
			return nil, truncated(fmt.Sprintf("segment %d id", i), err)
		}
		if seg.Start, err = cr.u32(); err != nil {
			return nil, truncated(fmt.Sprintf("segment %d start", i), err)
		}
		if seg.End, err = cr.u32(); err != nil {
			return nil, truncated(fmt.Sprintf("segment %d end", i), err)
		}
		segments = append(segments, seg)
	}
	if err := validateSegments(segments); err != nil {
		return nil, err
	}

	var stacks []model.RawStack
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frames, err := cr.u16()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, truncated(fmt.Sprintf("stack %d frame count", len(stacks)), err)
		}

		stack := make(model.RawStack, frames)
		for i := range stack {
			v, err := cr.u32()
			if err != nil {
				return nil, truncated(fmt.Sprintf("stack %d frame %d", len(stacks), i), err)
			}
			stack[i] = v - d.opts.ReturnBias
		}
		stacks = append(stacks, stack)
	}

	capture := &model.Capture{
		Model:        modelName,
		FirmwareBase: base,
		Segments:     segments,
		Stacks:       stacks,
	}

	d.logger.WithFields(map[string]interface{}{
		"model":    modelName,
		"segments": len(segments),
		"stacks":   len(stacks),
	}).Info("Decoded capture, firmware base 0x%08x", base)

	return capture, nil
}

// validateSegments rejects empty ranges and overlapping segments.
func validateSegments(segments []model.CodeSegment) error {
	sorted := make([]model.CodeSegment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	seen := make(map[uint16]bool, len(sorted))
	for i, seg := range sorted {
		if seg.End <= seg.Start {
			return apperrors.Newf(apperrors.CodeInvalidInput, "%s has an empty range", seg)
		}
		if seen[seg.ID] {
			return apperrors.Newf(apperrors.CodeInvalidInput, "duplicate segment id %d", seg.ID)
		}
		seen[seg.ID] = true
		if i > 0 && seg.Start < sorted[i-1].End {
			return apperrors.Newf(apperrors.CodeInvalidInput, "%s overlaps %s", seg, sorted[i-1])
		}
	}
	return nil
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return apperrors.Wrap(apperrors.CodeTruncatedCapture, "truncated capture reading "+what, err)
}

// captureReader reads big-endian fields. A read that finds no bytes at all
// returns io.EOF; a partial read returns io.ErrUnexpectedEOF.
type captureReader struct {
	r   *bufio.Reader
	buf [4]byte
}

func (c *captureReader) u8() (uint8, error) {
	if _, err := io.ReadFull(c.r, c.buf[:1]); err != nil {
		return 0, err
	}
	return c.buf[0], nil
}

func (c *captureReader) u16() (uint16, error) {
	if _, err := io.ReadFull(c.r, c.buf[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.buf[:2]), nil
}

func (c *captureReader) u32() (uint32, error) {
	if _, err := io.ReadFull(c.r, c.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(c.buf[:4]), nil
}

// pstring reads a Pascal string padded so that the record has even length.
func (c *captureReader) pstring() (string, error) {
	n, err := c.u8()
	if err != nil {
		return "", err
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(c.r, raw); err != nil {
		return "", io.ErrUnexpectedEOF
	}
	if (int(n)+1)%2 == 1 {
		if _, err := c.u8(); err != nil {
			return "", io.ErrUnexpectedEOF
		}
	}

	decoded, err := charmap.Macintosh.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
