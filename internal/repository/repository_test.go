package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/macprof-analysis/pkg/config"
	"github.com/macprof-analysis/pkg/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDialector(sqlite.Open(":memory:"), 1, false)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func testResult(runID string, at time.Time) *model.AnalysisResult {
	agg := model.NewAggregateResult()
	agg.UsableStacks = 4
	agg.UnusableStacks = 1
	agg.Inclusive = model.Tallies{"main": 4, "foo": 3, "_InitGraf": 1}
	agg.Exclusive = model.Tallies{"foo": 3, "_InitGraf": 1}
	return &model.AnalysisResult{
		RunID:            runID,
		CaptureFile:      "/caps/run.prof",
		BinaryFile:       "/build/App.code.bin.gdb",
		Model:            "Macintosh Plus",
		Backend:          model.BackendBatch,
		TotalStacks:      7,
		UnresolvedStacks: 2,
		Aggregate:        agg,
		OutputFiles:      []model.OutputFile{{Name: "folded", LocalPath: "/out/stacks.folded", RemoteKey: runID + "/stacks.folded"}},
		AnalyzedAt:       at,
	}
}

func TestGormRunRepository_SaveAndGet(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveRun(ctx, testResult("run-1", at)))

	run, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Macintosh Plus", run.Model)
	assert.Equal(t, model.BackendBatch, run.Backend)
	assert.Equal(t, 7, run.TotalStacks)
	assert.Equal(t, 4, run.UsableStacks)
	assert.Equal(t, 3, run.UnusableStacks)
	assert.True(t, at.Equal(run.AnalyzedAt))
	require.Len(t, run.OutputFiles, 1)
	assert.Equal(t, "run-1/stacks.folded", run.OutputFiles[0].RemoteKey)

	assert.Equal(t, []model.FunctionTally{
		{Symbol: "main", Inclusive: 4, Exclusive: 0},
		{Symbol: "foo", Inclusive: 3, Exclusive: 3},
		{Symbol: "_InitGraf", Inclusive: 1, Exclusive: 1},
	}, run.Functions)
}

func TestGormRunRepository_GetRunNotFound(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))

	_, err := repo.GetRun(context.Background(), "missing")
	assert.ErrorContains(t, err, "run not found")
}

func TestGormRunRepository_DuplicateRunID(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveRun(ctx, testResult("run-1", time.Now())))
	assert.Error(t, repo.SaveRun(ctx, testResult("run-1", time.Now())))
}

func TestGormRunRepository_ListRunsNewestFirst(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveRun(ctx, testResult("old", base)))
	require.NoError(t, repo.SaveRun(ctx, testResult("new", base.Add(2*time.Hour))))
	require.NoError(t, repo.SaveRun(ctx, testResult("mid", base.Add(time.Hour))))

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "mid", runs[1].RunID)
	assert.Equal(t, "old", runs[2].RunID)
	assert.Empty(t, runs[0].Functions)

	runs, err = repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].RunID)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db, mock
}

func TestGormRunRepository_SaveRunTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormRunRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `profile_runs`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `function_tallies`").WillReturnResult(sqlmock.NewResult(1, 3))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveRun(context.Background(), testResult("run-1", time.Now())))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRunRepository_SaveRunRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormRunRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `profile_runs`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `function_tallies`").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.SaveRun(context.Background(), testResult("run-1", time.Now()))
	assert.ErrorContains(t, err, "failed to save function tallies")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialector(t *testing.T) {
	tests := []struct {
		dbType  string
		name    string
		wantErr bool
	}{
		{"sqlite", "sqlite", false},
		{"", "sqlite", false},
		{"postgres", "postgres", false},
		{"postgresql", "postgres", false},
		{"mysql", "mysql", false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			d, err := Dialector(&config.DatabaseConfig{Type: tt.dbType, Path: ":memory:", Host: "localhost", Port: 5432})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Type: "sqlite", Path: ":memory:", MaxConns: 1}, false)
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&ProfileRun{}))
	assert.True(t, db.Migrator().HasTable(&FunctionTally{}))
}
