package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/drive-api/internal/models"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

type folderResolverStub struct {
	folders map[string]*models.Folder
	err     error
}

func (s folderResolverStub) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	if s.err != nil {
		return nil, s.err
	}
	if folder, ok := s.folders[id]; ok {
		return folder, nil
	}
	return nil, sql.ErrNoRows
}

type fileResolverStub struct {
	files map[string]*models.File
	err   error
}

func (s fileResolverStub) FindByID(ctx context.Context, id string) (*models.File, error) {
	if s.err != nil {
		return nil, s.err
	}
	if file, ok := s.files[id]; ok {
		return file, nil
	}
	return nil, sql.ErrNoRows
}

type permissionStoreStub struct {
	folderPerms map[string]*models.FolderPermission
	filePerms   map[string]*models.FilePermission
	err         error
}

func (s permissionStoreStub) GetFolderPermission(ctx context.Context, userID, folderID string) (*models.FolderPermission, error) {
	if s.err != nil {
		return nil, s.err
	}
	if perm, ok := s.folderPerms[userID+"/"+folderID]; ok {
		return perm, nil
	}
	return nil, sql.ErrNoRows
}

func (s permissionStoreStub) GetFilePermission(ctx context.Context, userID, fileID string) (*models.FilePermission, error) {
	if s.err != nil {
		return nil, s.err
	}
	if perm, ok := s.filePerms[userID+"/"+fileID]; ok {
		return perm, nil
	}
	return nil, sql.ErrNoRows
}

func TestCanAccessFolderOwnerBypassesPermissionRows(t *testing.T) {
	svc := NewPermissionService(
		folderResolverStub{folders: map[string]*models.Folder{"folder-1": {ID: "folder-1", OwnerID: "user-1"}}},
		fileResolverStub{},
		permissionStoreStub{},
		nil,
	)

	for _, capability := range []models.Capability{models.CapabilityView, models.CapabilityEdit, models.CapabilityDelete, models.CapabilityCreate, models.CapabilityShare} {
		allowed, err := svc.CanAccessFolder(context.Background(), "user-1", "folder-1", capability)
		require.NoError(t, err)
		assert.True(t, allowed, "owner should hold %s without a permission row", capability)
	}
}

func TestCanAccessFolderNoRowDenies(t *testing.T) {
	svc := NewPermissionService(
		folderResolverStub{folders: map[string]*models.Folder{"folder-1": {ID: "folder-1", OwnerID: "owner"}}},
		fileResolverStub{},
		permissionStoreStub{},
		nil,
	)

	allowed, err := svc.CanAccessFolder(context.Background(), "stranger", "folder-1", models.CapabilityView)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCanAccessFolderUsesPermissionFlags(t *testing.T) {
	svc := NewPermissionService(
		folderResolverStub{folders: map[string]*models.Folder{"folder-1": {ID: "folder-1", OwnerID: "owner"}}},
		fileResolverStub{},
		permissionStoreStub{folderPerms: map[string]*models.FolderPermission{
			"user-2/folder-1": {UserID: "user-2", FolderID: "folder-1", CanView: true, CanEdit: true},
		}},
		nil,
	)

	allowed, err := svc.CanAccessFolder(context.Background(), "user-2", "folder-1", models.CapabilityEdit)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.CanAccessFolder(context.Background(), "user-2", "folder-1", models.CapabilityDelete)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCanAccessFolderMissingFolderIsNotFound(t *testing.T) {
	svc := NewPermissionService(folderResolverStub{}, fileResolverStub{}, permissionStoreStub{}, nil)

	_, err := svc.CanAccessFolder(context.Background(), "user-1", "ghost", models.CapabilityView)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCanAccessFileUploaderBypassesPermissionRows(t *testing.T) {
	svc := NewPermissionService(
		folderResolverStub{},
		fileResolverStub{files: map[string]*models.File{"file-1": {ID: "file-1", UploadedByID: "user-1"}}},
		permissionStoreStub{},
		nil,
	)

	allowed, err := svc.CanAccessFile(context.Background(), "user-1", "file-1", models.CapabilityDelete)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCanAccessFileUsesPermissionFlags(t *testing.T) {
	svc := NewPermissionService(
		folderResolverStub{},
		fileResolverStub{files: map[string]*models.File{"file-1": {ID: "file-1", UploadedByID: "owner"}}},
		permissionStoreStub{filePerms: map[string]*models.FilePermission{
			"user-2/file-1": {UserID: "user-2", FileID: "file-1", CanView: true},
		}},
		nil,
	)

	allowed, err := svc.CanAccessFile(context.Background(), "user-2", "file-1", models.CapabilityView)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.CanAccessFile(context.Background(), "user-2", "file-1", models.CapabilityShare)
	require.NoError(t, err)
	assert.False(t, allowed)
}
