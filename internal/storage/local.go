package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStorage keeps objects as files under a base directory.
type LocalStorage struct {
	fs       afero.Fs
	basePath string
}

// NewLocalStorage creates a LocalStorage on the OS filesystem.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	return NewLocalStorageFs(afero.NewOsFs(), basePath)
}

// NewLocalStorageFs creates a LocalStorage on fs.
func NewLocalStorageFs(fs afero.Fs, basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./storage"
	}
	if err := fs.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{fs: fs, basePath: basePath}, nil
}

// Put implements Storage.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath := s.fullPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := s.fs.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return f.Close()
}

// PutFile implements Storage. The source is read from the same filesystem.
func (s *LocalStorage) PutFile(ctx context.Context, key string, localPath string) error {
	src, err := s.fs.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()
	return s.Put(ctx, key, src)
}

// Get implements Storage.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Exists implements Storage.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, s.fullPath(key))
	if err != nil {
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return ok, nil
}

// URL returns the file path of the object.
func (s *LocalStorage) URL(key string) string {
	return s.fullPath(key)
}

func (s *LocalStorage) fullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}
