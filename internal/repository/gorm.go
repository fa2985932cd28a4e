package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/macprof-analysis/pkg/model"
)

// tallyBatchSize bounds rows per INSERT for large symbol sets.
const tallyBatchSize = 200

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// SaveRun implements RunRepository.
func (r *GormRunRepository) SaveRun(ctx context.Context, result *model.AnalysisResult) error {
	run, err := newProfileRun(result)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	functions := run.Functions
	run.Functions = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if len(functions) == 0 {
			return nil
		}
		for i := range functions {
			functions[i].RunRef = run.ID
		}
		if err := tx.CreateInBatches(functions, tallyBatchSize).Error; err != nil {
			return fmt.Errorf("failed to save function tallies: %w", err)
		}
		return nil
	})
}

// GetRun implements RunRepository.
func (r *GormRunRepository) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	var run ProfileRun
	err := r.db.WithContext(ctx).
		Preload("Functions", func(db *gorm.DB) *gorm.DB {
			return db.Order("inclusive DESC, symbol ASC")
		}).
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run.ToModel(), nil
}

// ListRuns implements RunRepository.
func (r *GormRunRepository) ListRuns(ctx context.Context, limit int) ([]*model.RunSummary, error) {
	var runs []ProfileRun
	q := r.db.WithContext(ctx).Order("analyzed_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]*model.RunSummary, len(runs))
	for i := range runs {
		out[i] = runs[i].ToModel()
	}
	return out, nil
}
