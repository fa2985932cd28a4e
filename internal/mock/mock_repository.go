package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/macprof-analysis/pkg/model"
)

// MockRunRepository is a mock implementation of repository.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

// SaveRun mocks the SaveRun method.
func (m *MockRunRepository) SaveRun(ctx context.Context, result *model.AnalysisResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockRunRepository) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunSummary), args.Error(1)
}

// ListRuns mocks the ListRuns method.
func (m *MockRunRepository) ListRuns(ctx context.Context, limit int) ([]*model.RunSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.RunSummary), args.Error(1)
}

// ExpectSaveRun sets up an expectation for SaveRun with any result.
func (m *MockRunRepository) ExpectSaveRun(err error) *mock.Call {
	return m.On("SaveRun", mock.Anything, mock.AnythingOfType("*model.AnalysisResult")).Return(err)
}
