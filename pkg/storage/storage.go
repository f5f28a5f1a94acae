package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/drive-api/pkg/config"
)

// Backend abstracts physical byte storage behind a uniform contract. Two
// implementations exist: local filesystem and S3-compatible object store.
// Callers never see backend-specific types; every failure is surfaced as a
// *errors.Error with code STORAGE_ERROR carrying the underlying cause.
type Backend interface {
	// CreateContainer creates the logical container for a folder and returns
	// a backend-specific reference. Idempotent when the container exists.
	CreateContainer(ctx context.Context, name string) (string, error)

	// StoreObject streams content into the container and returns the key
	// used for later retrieval.
	StoreObject(ctx context.Context, container, name string, r io.Reader, size int64) (string, error)

	// FetchObject reads the full object content. Used for archive assembly.
	FetchObject(ctx context.Context, key string) ([]byte, error)

	// DeleteObject removes a single stored object.
	DeleteObject(ctx context.Context, key string) error

	// DeleteContainer removes the container and everything under it.
	DeleteContainer(ctx context.Context, name string) error

	// PresignedURL returns a time-limited retrieval link for the object.
	// The local backend returns the direct filesystem path instead.
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New selects the backend implementation from the configured driver. The
// driver flag is read once here; the rest of the system depends only on the
// Backend interface.
func New(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case config.StorageDriverLocal, "":
		return NewLocalBackend(cfg.LocalPath)
	case config.StorageDriverS3:
		return NewObjectBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
