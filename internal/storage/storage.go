// Package storage publishes run artifacts to object storage.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/macprof-analysis/pkg/config"
)

// Storage is a flat key/value object store.
type Storage interface {
	// Put writes the contents of r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error

	// PutFile uploads a local file under key.
	PutFile(ctx context.Context, key string, localPath string) error

	// Get opens the object stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns where the object under key can be fetched from.
	URL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// NewStorage creates the configured backend.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch StorageType(cfg.Type) {
	case StorageTypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig checks the fields the selected backend needs. A disabled
// section is always valid.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return fmt.Errorf("storage config is nil")
	}
	if !cfg.Enabled {
		return nil
	}

	switch StorageType(cfg.Type) {
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	case StorageTypeLocal, "":
		if cfg.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	return nil
}
