package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

// LocalBackend persists objects on disk under a base directory. Containers
// map to directories, objects to files inside them.
type LocalBackend struct {
	baseDir string
}

// NewLocalBackend ensures the base directory exists and returns a handle.
func NewLocalBackend(baseDir string) (*LocalBackend, error) {
	if baseDir == "" {
		baseDir = "./storage"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalBackend{baseDir: baseDir}, nil
}

// CreateContainer creates the container directory. MkdirAll makes this
// idempotent when the directory already exists. The returned reference is
// the container name itself; object keys stay relative to the base dir.
func (b *LocalBackend) CreateContainer(ctx context.Context, name string) (string, error) {
	if err := os.MkdirAll(filepath.Join(b.baseDir, name), 0o755); err != nil {
		return "", appErrors.NewStorage(err, "failed to create storage folder")
	}
	return name, nil
}

// StoreObject copies the reader into the container file. Content is streamed,
// never buffered whole in memory.
func (b *LocalBackend) StoreObject(ctx context.Context, container, name string, r io.Reader, size int64) (string, error) {
	dir := filepath.Join(b.baseDir, container)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", appErrors.NewStorage(err, "failed to prepare storage folder")
	}
	key := filepath.Join(container, name)
	file, err := os.Create(filepath.Join(b.baseDir, key))
	if err != nil {
		return "", appErrors.NewStorage(err, "failed to create object file")
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		_ = os.Remove(filepath.Join(b.baseDir, key))
		return "", appErrors.NewStorage(err, "failed to write object content")
	}
	return key, nil
}

// FetchObject reads the full object content from disk.
func (b *LocalBackend) FetchObject(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.resolve(key))
	if err != nil {
		return nil, appErrors.NewStorage(err, "failed to read object")
	}
	return data, nil
}

// DeleteObject removes a stored object if present.
func (b *LocalBackend) DeleteObject(ctx context.Context, key string) error {
	if err := os.Remove(b.resolve(key)); err != nil && !os.IsNotExist(err) {
		return appErrors.NewStorage(err, "failed to delete object")
	}
	return nil
}

// DeleteContainer removes the container directory and all its contents.
func (b *LocalBackend) DeleteContainer(ctx context.Context, name string) error {
	if err := os.RemoveAll(filepath.Join(b.baseDir, name)); err != nil {
		return appErrors.NewStorage(err, "failed to delete storage folder")
	}
	return nil
}

// PresignedURL has no remote equivalent locally; the direct path is returned
// so callers get a usable location with either backend.
func (b *LocalBackend) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	abs, err := filepath.Abs(b.resolve(key))
	if err != nil {
		return b.resolve(key), nil
	}
	return abs, nil
}

func (b *LocalBackend) resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(b.baseDir, key)
}
