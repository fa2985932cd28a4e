// Package mock holds testify mocks for the pipeline's outer dependencies.
package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a mock implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

// Put mocks the Put method.
func (m *MockStorage) Put(ctx context.Context, key string, r io.Reader) error {
	args := m.Called(ctx, key, r)
	return args.Error(0)
}

// PutFile mocks the PutFile method.
func (m *MockStorage) PutFile(ctx context.Context, key string, localPath string) error {
	args := m.Called(ctx, key, localPath)
	return args.Error(0)
}

// Get mocks the Get method.
func (m *MockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// Exists mocks the Exists method.
func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// URL mocks the URL method.
func (m *MockStorage) URL(key string) string {
	args := m.Called(key)
	return args.String(0)
}

// ExpectPutFile sets up an expectation for PutFile on key.
func (m *MockStorage) ExpectPutFile(key string, err error) *mock.Call {
	return m.On("PutFile", mock.Anything, key, mock.AnythingOfType("string")).Return(err)
}
