package formatter

import (
	"io"

	"github.com/samber/lo"

	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/writer"
)

// Summary is the machine-readable form of a run.
type Summary struct {
	RunID          string             `json:"run_id"`
	Model          string             `json:"model"`
	Backend        string             `json:"backend"`
	UsableStacks   int                `json:"usable_stacks"`
	UnusableStacks int                `json:"unusable_stacks"`
	Inclusive      []TallyRow         `json:"inclusive"`
	Exclusive      []TallyRow         `json:"exclusive"`
	StackTraces    []model.StackTrace `json:"stack_traces"`
	OutputFiles    []model.OutputFile `json:"output_files,omitempty"`
	Timings        map[string]int64   `json:"timings_ms,omitempty"`
}

// TallyRow is one function in a tally.
type TallyRow struct {
	Function string  `json:"function"`
	Samples  int     `json:"samples"`
	Percent  float64 `json:"percent"`
}

// SummaryReporter writes the result as an indented JSON document.
type SummaryReporter struct {
	opts *Options
}

// Report implements Reporter.
func (r *SummaryReporter) Report(w io.Writer, result *model.AnalysisResult) error {
	return writer.NewPrettyJSONWriter[*Summary]().Write(BuildSummary(result), w)
}

// BuildSummary converts a result into its summary form.
func BuildSummary(result *model.AnalysisResult) *Summary {
	agg := result.Aggregate
	if agg == nil {
		agg = model.NewAggregateResult()
	}

	rows := func(t model.Tallies) []TallyRow {
		return lo.Map(t.Sorted(), func(e model.TallyEntry, _ int) TallyRow {
			return TallyRow{Function: e.Symbol, Samples: e.Count, Percent: model.Percent(e.Count, agg.UsableStacks)}
		})
	}

	return &Summary{
		RunID:          result.RunID,
		Model:          result.Model,
		Backend:        string(result.Backend),
		UsableStacks:   result.UsableStacks(),
		UnusableStacks: result.UnusableStacks(),
		Inclusive:      rows(agg.Inclusive),
		Exclusive:      rows(agg.Exclusive),
		StackTraces: lo.Map(agg.SortedStackTraces(), func(st *model.StackTrace, _ int) model.StackTrace {
			return *st
		}),
		OutputFiles: result.OutputFiles,
		Timings:     result.Timings,
	}
}
