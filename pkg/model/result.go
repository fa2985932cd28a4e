package model

import "time"

// Backend names a symbolication strategy.
type Backend string

const (
	BackendBatch     Backend = "batch"
	BackendLineTable Backend = "linetable"
)

// AnalysisRequest describes one analysis run.
type AnalysisRequest struct {
	RunID       string
	CaptureFile string
	BinaryFile  string
	OutputDir   string
}

// OutputFile is an artifact written by a run.
type OutputFile struct {
	Name      string `json:"name"`
	LocalPath string `json:"local_path"`
	RemoteKey string `json:"remote_key,omitempty"`
}

// AnalysisResult is everything a run produced.
type AnalysisResult struct {
	RunID       string  `json:"run_id"`
	CaptureFile string  `json:"capture_file"`
	BinaryFile  string  `json:"binary_file"`
	Model       string  `json:"model"`
	Backend     Backend `json:"backend"`

	TotalStacks int `json:"total_stacks"`
	// UnresolvedStacks were dropped by classification before symbolication.
	UnresolvedStacks int `json:"unresolved_stacks"`

	Aggregate   *AggregateResult `json:"-"`
	Cache       *AddrCache       `json:"-"`
	OutputFiles []OutputFile     `json:"output_files"`
	Timings     map[string]int64 `json:"timings_ms"`
	AnalyzedAt  time.Time        `json:"analyzed_at"`
}

// UsableStacks returns the number of stacks that reached the tallies.
func (r *AnalysisResult) UsableStacks() int {
	if r.Aggregate == nil {
		return 0
	}
	return r.Aggregate.UsableStacks
}

// UnusableStacks returns every stack dropped by classification or by
// aggregation.
func (r *AnalysisResult) UnusableStacks() int {
	n := r.UnresolvedStacks
	if r.Aggregate != nil {
		n += r.Aggregate.UnusableStacks
	}
	return n
}
