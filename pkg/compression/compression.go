// Package compression wraps capture and export streams in gzip or zstd.
package compression

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Type is a stream compression format.
type Type uint8

const (
	TypeNone Type = iota
	TypeGzip
	TypeZstd
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// String returns the format name.
func (t Type) String() string {
	switch t {
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	default:
		return "none"
	}
}

// TypeForPath picks the format from a file extension: .gz or .zst.
func TypeForPath(path string) Type {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return TypeGzip
	case ".zst", ".zstd":
		return TypeZstd
	default:
		return TypeNone
	}
}

// DetectType identifies a format from the leading magic bytes. Anything
// unrecognized is uncompressed.
func DetectType(header []byte) Type {
	switch {
	case bytes.HasPrefix(header, zstdMagic):
		return TypeZstd
	case bytes.HasPrefix(header, gzipMagic):
		return TypeGzip
	default:
		return TypeNone
	}
}

// NewReader sniffs r and returns a reader of the decompressed stream. Plain
// input is passed through. The caller must Close the result.
func NewReader(r io.Reader) (io.ReadCloser, Type, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, TypeNone, err
	}

	switch t := DetectType(header); t {
	case TypeGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, t, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return zr, t, nil
	case TypeZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, t, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), t, nil
	default:
		return io.NopCloser(br), TypeNone, nil
	}
}

// NewWriter wraps w in a compressing writer of type t. Closing the result
// flushes the compressed stream but does not close w.
func NewWriter(w io.Writer, t Type) (io.WriteCloser, error) {
	switch t {
	case TypeGzip:
		return gzip.NewWriter(w), nil
	case TypeZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	case TypeNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", t)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
