package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSConfig holds Tencent Cloud COS settings.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // defaults to myqcloud.com
	Scheme    string // defaults to https
}

// COSStorage stores objects in a COS bucket.
type COSStorage struct {
	client    *cos.Client
	bucketURL *url.URL
}

// NewCOSStorage creates a COS client for the configured bucket.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for COS storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for COS storage")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}
	return newCOSStorage(bucketURL, cfg.SecretID, cfg.SecretKey), nil
}

func newCOSStorage(bucketURL *url.URL, secretID, secretKey string) *COSStorage {
	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	})
	return &COSStorage{client: client, bucketURL: bucketURL}
}

// Put implements Storage.
func (s *COSStorage) Put(ctx context.Context, key string, r io.Reader) error {
	if _, err := s.client.Object.Put(ctx, key, r, nil); err != nil {
		return fmt.Errorf("failed to upload to COS: %w", err)
	}
	return nil
}

// PutFile implements Storage.
func (s *COSStorage) PutFile(ctx context.Context, key string, localPath string) error {
	if _, err := s.client.Object.PutFromFile(ctx, key, localPath, nil); err != nil {
		return fmt.Errorf("failed to upload file to COS: %w", err)
	}
	return nil
}

// Get implements Storage.
func (s *COSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download from COS: %w", err)
	}
	return resp.Body, nil
}

// Exists implements Storage.
func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check existence in COS: %w", err)
	}
	return ok, nil
}

// URL returns the object's public URL.
func (s *COSStorage) URL(key string) string {
	return s.bucketURL.String() + "/" + key
}
