package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

func newLocal(t *testing.T) (*LocalBackend, string) {
	dir := t.TempDir()
	backend, err := NewLocalBackend(dir)
	require.NoError(t, err)
	return backend, dir
}

func TestLocalCreateContainerIdempotent(t *testing.T) {
	backend, dir := newLocal(t)
	ctx := context.Background()

	ref, err := backend.CreateContainer(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", ref)

	// Second call must not fail when the directory already exists.
	_, err = backend.CreateContainer(ctx, "docs")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "docs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStoreAndFetchObject(t *testing.T) {
	backend, dir := newLocal(t)
	ctx := context.Background()

	_, err := backend.CreateContainer(ctx, "docs")
	require.NoError(t, err)

	content := []byte("quarterly numbers")
	key, err := backend.StoreObject(ctx, "docs", "q1.pdf", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("docs", "q1.pdf"), key)

	data, err := backend.FetchObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = os.Stat(filepath.Join(dir, "docs", "q1.pdf"))
	require.NoError(t, err)
}

func TestLocalDeleteObjectMissingIsNoop(t *testing.T) {
	backend, _ := newLocal(t)
	err := backend.DeleteObject(context.Background(), filepath.Join("docs", "gone.txt"))
	require.NoError(t, err)
}

func TestLocalDeleteContainerRecursive(t *testing.T) {
	backend, dir := newLocal(t)
	ctx := context.Background()

	_, err := backend.CreateContainer(ctx, "docs")
	require.NoError(t, err)
	_, err = backend.StoreObject(ctx, "docs", "a.txt", strings.NewReader("a"), 1)
	require.NoError(t, err)
	_, err = backend.StoreObject(ctx, "docs", "b.txt", strings.NewReader("b"), 1)
	require.NoError(t, err)

	require.NoError(t, backend.DeleteContainer(ctx, "docs"))

	_, err = os.Stat(filepath.Join(dir, "docs"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalPresignedURLReturnsDirectPath(t *testing.T) {
	backend, _ := newLocal(t)
	ctx := context.Background()

	_, err := backend.CreateContainer(ctx, "docs")
	require.NoError(t, err)
	key, err := backend.StoreObject(ctx, "docs", "a.txt", strings.NewReader("a"), 1)
	require.NoError(t, err)

	url, err := backend.PresignedURL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(url))
	assert.True(t, strings.HasSuffix(url, filepath.Join("docs", "a.txt")))
}

func TestLocalFetchMissingObjectIsStorageError(t *testing.T) {
	backend, _ := newLocal(t)
	_, err := backend.FetchObject(context.Background(), filepath.Join("docs", "missing.txt"))
	require.Error(t, err)
	assert.True(t, appErrors.IsStorage(err))
	appErr := appErrors.FromError(err)
	assert.True(t, appErr.Retriable)
}
