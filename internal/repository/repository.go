// Package repository stores the history of analysis runs.
package repository

import (
	"context"

	"github.com/macprof-analysis/pkg/model"
)

// RunRepository persists completed runs and their function tallies.
type RunRepository interface {
	// SaveRun stores a run and its per-function tallies in one transaction.
	SaveRun(ctx context.Context, result *model.AnalysisResult) error

	// GetRun returns a stored run with its function tallies.
	GetRun(ctx context.Context, runID string) (*model.RunSummary, error)

	// ListRuns returns up to limit runs, newest first, without tallies.
	ListRuns(ctx context.Context, limit int) ([]*model.RunSummary, error)
}
