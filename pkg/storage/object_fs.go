package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileBlobStorage keeps artifact objects on the local filesystem, one
// file per key, mirroring the bucket layout under a base directory.
// Used in development and on single-node deployments without S3.
type FileBlobStorage struct {
	baseDir string
}

// NewFileBlobStorage ensures the base directory exists and returns a handle.
func NewFileBlobStorage(baseDir string) (*FileBlobStorage, error) {
	if baseDir == "" {
		baseDir = "./data/artifacts"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &FileBlobStorage{baseDir: baseDir}, nil
}

// Put writes an object, overwriting any existing file at the key.
func (s *FileBlobStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact file: %w", err)
	}
	return nil
}

// Get reads an object, returning ErrObjectNotFound for missing keys.
func (s *FileBlobStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read artifact file: %w", err)
	}
	return data, nil
}

func (s *FileBlobStorage) resolve(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}
