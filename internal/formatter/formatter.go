// Package formatter renders analysis results for people and scripts.
package formatter

import (
	"fmt"
	"io"

	"github.com/macprof-analysis/pkg/model"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Reporter writes an analysis result to w.
type Reporter interface {
	Report(w io.Writer, result *model.AnalysisResult) error
}

// Options holds display widths.
type Options struct {
	FunctionMaxChars int
	FilenameMaxChars int
}

// DefaultOptions returns the default column widths.
func DefaultOptions() *Options {
	return &Options{FunctionMaxChars: 32, FilenameMaxChars: 14}
}

// New returns the reporter for a format name.
func New(format string, opts *Options) (Reporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch format {
	case "", FormatText:
		return &ConsoleReporter{opts: opts}, nil
	case FormatJSON:
		return &SummaryReporter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}
