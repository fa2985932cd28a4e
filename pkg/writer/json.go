// Package writer serializes export documents as plain or compressed JSON.
package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/macprof-analysis/pkg/compression"
)

// Writer encodes a document to a stream or a file.
type Writer[T any] interface {
	Write(data T, w io.Writer) error
	WriteToFile(data T, path string) error
}

// ForPath picks the writer matching the file extension: .gz and .zst paths
// are compressed, anything else is written as plain JSON.
func ForPath[T any](path string) Writer[T] {
	if t := compression.TypeForPath(path); t != compression.TypeNone {
		return &CompressedWriter[T]{Type: t}
	}
	return NewJSONWriter[T]()
}

// CreateFile creates path and its parent directories and returns a stream
// compressed according to the path's extension. Closing it closes the file.
func CreateFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	cw, err := compression.NewWriter(f, compression.TypeForPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileStream{WriteCloser: cw, file: f}, nil
}

type fileStream struct {
	io.WriteCloser
	file *os.File
}

func (s *fileStream) Close() error {
	err := s.WriteCloser.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// JSONWriter writes data as JSON.
type JSONWriter[T any] struct {
	// Indent specifies the indentation for pretty printing.
	// Empty string means compact output.
	Indent string
}

// NewJSONWriter creates a new JSON writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: ""}
}

// NewPrettyJSONWriter creates a JSON writer with pretty printing.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

// Write writes the data as JSON to the writer.
func (w *JSONWriter[T]) Write(data T, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	return encoder.Encode(data)
}

// WriteToFile writes the data as JSON to a file, creating parent directories.
func (w *JSONWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}

// CompressedWriter writes JSON through a gzip or zstd stream.
type CompressedWriter[T any] struct {
	Type compression.Type
}

// NewGzipWriter creates a writer producing gzipped JSON.
func NewGzipWriter[T any]() *CompressedWriter[T] {
	return &CompressedWriter[T]{Type: compression.TypeGzip}
}

// NewZstdWriter creates a writer producing zstd-compressed JSON.
func NewZstdWriter[T any]() *CompressedWriter[T] {
	return &CompressedWriter[T]{Type: compression.TypeZstd}
}

// Write encodes data as JSON into a compressed stream on writer.
func (w *CompressedWriter[T]) Write(data T, writer io.Writer) error {
	cw, err := compression.NewWriter(writer, w.Type)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(cw).Encode(data); err != nil {
		cw.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return cw.Close()
}

// WriteToFile writes the compressed document to a file, creating parent
// directories.
func (w *CompressedWriter[T]) WriteToFile(data T, path string) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(data, f) })
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
