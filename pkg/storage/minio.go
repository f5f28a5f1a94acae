package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noah-isme/drive-api/pkg/config"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

// objectPrefix namespaces every container inside the bucket.
const objectPrefix = "folders/"

// ObjectBackend stores objects in an S3-compatible bucket through the MinIO
// client. Containers are key prefixes; a zero-byte placeholder object marks
// an empty container.
type ObjectBackend struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

// NewObjectBackend connects to the object store and ensures the bucket
// exists.
func NewObjectBackend(cfg config.StorageConfig) (*ObjectBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	presignTTL := cfg.PresignTTL
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &ObjectBackend{client: client, bucket: cfg.Bucket, presignTTL: presignTTL}, nil
}

// CreateContainer writes the zero-byte placeholder under the container
// prefix so empty folders survive listing.
func (b *ObjectBackend) CreateContainer(ctx context.Context, name string) (string, error) {
	prefix := b.containerPrefix(name)
	_, err := b.client.PutObject(ctx, b.bucket, prefix, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return "", appErrors.NewStorage(err, "failed to create storage folder")
	}
	return prefix, nil
}

// StoreObject uploads the content under the container prefix. The SDK
// consumes the reader directly; size -1 lets it fall back to multipart
// upload for unknown lengths.
func (b *ObjectBackend) StoreObject(ctx context.Context, container, name string, r io.Reader, size int64) (string, error) {
	key := b.containerPrefix(container) + name
	if _, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{}); err != nil {
		return "", appErrors.NewStorage(err, "failed to upload object")
	}
	return key, nil
}

// FetchObject downloads the full object content.
func (b *ObjectBackend) FetchObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, appErrors.NewStorage(err, "failed to fetch object")
	}
	defer obj.Close() //nolint:errcheck
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, appErrors.NewStorage(err, "failed to read object content")
	}
	return data, nil
}

// DeleteObject removes a single object.
func (b *ObjectBackend) DeleteObject(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return appErrors.NewStorage(err, "failed to delete object")
	}
	return nil
}

// DeleteContainer removes every object under the container prefix. Listing
// streams keys so arbitrarily large containers are handled without a cap.
func (b *ObjectBackend) DeleteContainer(ctx context.Context, name string) error {
	prefix := b.containerPrefix(name)

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if object.Err != nil {
				continue
			}
			select {
			case objectsCh <- object:
			case <-ctx.Done():
				return
			}
		}
	}()

	for removeErr := range b.client.RemoveObjects(ctx, b.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if removeErr.Err != nil {
			return appErrors.NewStorage(removeErr.Err, "failed to delete storage folder contents")
		}
	}
	return nil
}

// PresignedURL produces a time-limited GET link for the object. A
// non-positive ttl falls back to the configured default.
func (b *ObjectBackend) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = b.presignTTL
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", appErrors.NewStorage(err, "failed to generate presigned URL")
	}
	return u.String(), nil
}

func (b *ObjectBackend) containerPrefix(name string) string {
	return objectPrefix + name + "/"
}
