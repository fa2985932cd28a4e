package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/writer"
)

// WriteFolded writes one "outer;...;inner count" line per distinct stack
// trace, most frequent first.
func WriteFolded(agg *model.AggregateResult, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, st := range agg.SortedStackTraces() {
		if _, err := fmt.Fprintf(bw, "%s %d\n", strings.Join(st.Symbols, ";"), st.Count); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFoldedFile writes the folded stacks to path, compressed when the
// path ends in .gz or .zst.
func WriteFoldedFile(agg *model.AggregateResult, path string) error {
	w, err := writer.CreateFile(path)
	if err != nil {
		return err
	}
	if err := WriteFolded(agg, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func createFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
