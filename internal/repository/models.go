package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/macprof-analysis/pkg/model"
)

// ProfileRun represents the profile_runs table.
type ProfileRun struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RunID          string          `gorm:"column:run_id;type:varchar(64);uniqueIndex"`
	CaptureFile    string          `gorm:"column:capture_file;type:varchar(512)"`
	BinaryFile     string          `gorm:"column:binary_file;type:varchar(512)"`
	Model          string          `gorm:"column:model;type:varchar(128)"`
	Backend        string          `gorm:"column:backend;type:varchar(32)"`
	TotalStacks    int             `gorm:"column:total_stacks"`
	UsableStacks   int             `gorm:"column:usable_stacks"`
	UnusableStacks int             `gorm:"column:unusable_stacks"`
	OutputFiles    JSONField       `gorm:"column:output_files;type:json"`
	AnalyzedAt     time.Time       `gorm:"column:analyzed_at;index"`
	Functions      []FunctionTally `gorm:"foreignKey:RunRef;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for ProfileRun.
func (ProfileRun) TableName() string {
	return "profile_runs"
}

// FunctionTally represents the function_tallies table.
type FunctionTally struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunRef    int64  `gorm:"column:run_ref;index"`
	Symbol    string `gorm:"column:symbol;type:varchar(512)"`
	Inclusive int    `gorm:"column:inclusive"`
	Exclusive int    `gorm:"column:exclusive"`
}

// TableName returns the table name for FunctionTally.
func (FunctionTally) TableName() string {
	return "function_tallies"
}

// newProfileRun converts an analysis result into its table rows.
func newProfileRun(result *model.AnalysisResult) (*ProfileRun, error) {
	var files JSONField
	if len(result.OutputFiles) > 0 {
		data, err := json.Marshal(result.OutputFiles)
		if err != nil {
			return nil, err
		}
		files = data
	}

	run := &ProfileRun{
		RunID:          result.RunID,
		CaptureFile:    result.CaptureFile,
		BinaryFile:     result.BinaryFile,
		Model:          result.Model,
		Backend:        string(result.Backend),
		TotalStacks:    result.TotalStacks,
		UsableStacks:   result.UsableStacks(),
		UnusableStacks: result.UnusableStacks(),
		OutputFiles:    files,
		AnalyzedAt:     result.AnalyzedAt,
	}
	for _, f := range model.FunctionTallies(result.Aggregate) {
		run.Functions = append(run.Functions, FunctionTally{
			Symbol:    f.Symbol,
			Inclusive: f.Inclusive,
			Exclusive: f.Exclusive,
		})
	}
	return run, nil
}

// ToModel converts ProfileRun to model.RunSummary.
func (r *ProfileRun) ToModel() *model.RunSummary {
	summary := &model.RunSummary{
		ID:             r.ID,
		RunID:          r.RunID,
		CaptureFile:    r.CaptureFile,
		BinaryFile:     r.BinaryFile,
		Model:          r.Model,
		Backend:        model.Backend(r.Backend),
		TotalStacks:    r.TotalStacks,
		UsableStacks:   r.UsableStacks,
		UnusableStacks: r.UnusableStacks,
		AnalyzedAt:     r.AnalyzedAt,
	}
	if r.OutputFiles != nil {
		_ = json.Unmarshal(r.OutputFiles, &summary.OutputFiles)
	}
	for _, f := range r.Functions {
		summary.Functions = append(summary.Functions, model.FunctionTally{
			Symbol:    f.Symbol,
			Inclusive: f.Inclusive,
			Exclusive: f.Exclusive,
		})
	}
	return summary
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("unsupported type for JSONField")
	}
	return nil
}
