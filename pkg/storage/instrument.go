package storage

import (
	"context"
	"io"
	"time"
)

// OperationObserver receives one observation per backend call.
type OperationObserver interface {
	ObserveStorageOperation(operation string, err error, duration time.Duration)
}

// Instrument wraps a backend so every call is timed and counted. A nil
// observer returns the backend unchanged.
func Instrument(backend Backend, observer OperationObserver) Backend {
	if observer == nil {
		return backend
	}
	return &instrumentedBackend{backend: backend, observer: observer}
}

type instrumentedBackend struct {
	backend  Backend
	observer OperationObserver
}

func (b *instrumentedBackend) CreateContainer(ctx context.Context, name string) (string, error) {
	start := time.Now()
	ref, err := b.backend.CreateContainer(ctx, name)
	b.observer.ObserveStorageOperation("create_container", err, time.Since(start))
	return ref, err
}

func (b *instrumentedBackend) StoreObject(ctx context.Context, container, name string, r io.Reader, size int64) (string, error) {
	start := time.Now()
	key, err := b.backend.StoreObject(ctx, container, name, r, size)
	b.observer.ObserveStorageOperation("store_object", err, time.Since(start))
	return key, err
}

func (b *instrumentedBackend) FetchObject(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := b.backend.FetchObject(ctx, key)
	b.observer.ObserveStorageOperation("fetch_object", err, time.Since(start))
	return data, err
}

func (b *instrumentedBackend) DeleteObject(ctx context.Context, key string) error {
	start := time.Now()
	err := b.backend.DeleteObject(ctx, key)
	b.observer.ObserveStorageOperation("delete_object", err, time.Since(start))
	return err
}

func (b *instrumentedBackend) DeleteContainer(ctx context.Context, name string) error {
	start := time.Now()
	err := b.backend.DeleteContainer(ctx, name)
	b.observer.ObserveStorageOperation("delete_container", err, time.Since(start))
	return err
}

func (b *instrumentedBackend) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	start := time.Now()
	url, err := b.backend.PresignedURL(ctx, key, ttl)
	b.observer.ObserveStorageOperation("presigned_url", err, time.Since(start))
	return url, err
}
