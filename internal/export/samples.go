// Package export writes aggregated samples to files consumed by other tools.
package export

import (
	"fmt"
	"strconv"

	"github.com/macprof-analysis/internal/symbolizer"
	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/writer"
)

// LineSample is the exported count of one source line.
type LineSample struct {
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// SamplesDocument maps source path to line number to sample.
type SamplesDocument map[string]map[string]LineSample

// BuildSamples converts per-function line counts into a SamplesDocument.
// Percentages are relative to the owning function's line total. Placeholder
// locations are left out.
func BuildSamples(agg *model.AggregateResult) SamplesDocument {
	doc := make(SamplesDocument)
	for _, fn := range agg.FunctionNames() {
		lines := agg.FunctionSamples[fn]
		total := lines.Total()
		for _, s := range lines.Sorted() {
			if s.FilePath == symbolizer.NoFile {
				continue
			}
			byLine, ok := doc[s.FilePath]
			if !ok {
				byLine = make(map[string]LineSample)
				doc[s.FilePath] = byLine
			}
			byLine[strconv.Itoa(s.Line)] = LineSample{
				Count:   s.Count,
				Percent: model.Percent(s.Count, total),
			}
		}
	}
	return doc
}

// WriteSamples writes the samples document to path, gzipped when the path
// ends in .gz.
func WriteSamples(agg *model.AggregateResult, path string) error {
	if err := writer.ForPath[SamplesDocument](path).WriteToFile(BuildSamples(agg), path); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}
