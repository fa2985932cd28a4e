package model

import "time"

// RunSummary is a stored analysis run.
type RunSummary struct {
	ID             int64           `json:"id"`
	RunID          string          `json:"run_id"`
	CaptureFile    string          `json:"capture_file"`
	BinaryFile     string          `json:"binary_file"`
	Model          string          `json:"model"`
	Backend        Backend         `json:"backend"`
	TotalStacks    int             `json:"total_stacks"`
	UsableStacks   int             `json:"usable_stacks"`
	UnusableStacks int             `json:"unusable_stacks"`
	OutputFiles    []OutputFile    `json:"output_files,omitempty"`
	AnalyzedAt     time.Time       `json:"analyzed_at"`
	Functions      []FunctionTally `json:"functions,omitempty"`
}

// FunctionTally is one function's sample counts within a run.
type FunctionTally struct {
	Symbol    string `json:"symbol"`
	Inclusive int    `json:"inclusive"`
	Exclusive int    `json:"exclusive"`
}

// FunctionTallies merges the inclusive and exclusive tallies of an aggregate,
// ordered by inclusive count descending.
func FunctionTallies(agg *AggregateResult) []FunctionTally {
	if agg == nil {
		return nil
	}
	out := make([]FunctionTally, 0, len(agg.Inclusive))
	for _, e := range agg.Inclusive.Sorted() {
		out = append(out, FunctionTally{
			Symbol:    e.Symbol,
			Inclusive: e.Count,
			Exclusive: agg.Exclusive[e.Symbol],
		})
	}
	return out
}
