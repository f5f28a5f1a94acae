package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/drive-api/internal/models"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

type fileRepoMock struct {
	files     map[string]*models.File
	created   []*models.File
	deleted   []string
	createErr error
	deleteErr error
}

func (m *fileRepoMock) Create(ctx context.Context, file *models.File) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, file)
	return nil
}

func (m *fileRepoMock) FindByID(ctx context.Context, id string) (*models.File, error) {
	if file, ok := m.files[id]; ok {
		return file, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fileRepoMock) DeleteWithPermissions(ctx context.Context, fileID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, fileID)
	return nil
}

type provisionerMock struct {
	root  *models.Folder
	calls int
	err   error
}

func (m *provisionerMock) EnsureUserRoot(ctx context.Context, userID string) (*models.Folder, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.root, nil
}

type filePermWriterMock struct {
	grants []*models.FilePermission
	err    error
}

func (m *filePermWriterMock) UpsertFilePermission(ctx context.Context, perm *models.FilePermission) error {
	if m.err != nil {
		return m.err
	}
	m.grants = append(m.grants, perm)
	return nil
}

func TestUploadToNamedFolderGrantsUploaderAndAdmin(t *testing.T) {
	repo := &fileRepoMock{}
	perms := &filePermWriterMock{}
	backend := &backendMock{}
	folderID := "docs"
	svc := NewFileService(repo, &provisionerMock{}, perms, adminResolverMock{admin: &models.User{ID: "admin-id"}}, accessCheckerStub{folderAllowed: true}, backend, nil, nil)

	file, err := svc.Upload(context.Background(), UploadInput{
		Filename: "q1.pdf",
		FolderID: &folderID,
		Size:     9,
		Reader:   strings.NewReader("pdf-bytes"),
	}, &models.JWTClaims{UserID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "docs", file.FolderID)
	assert.Equal(t, "docs/q1.pdf", file.StorageKey)
	assert.Equal(t, "alice", file.UploadedByID)
	require.NotNil(t, file.SizeBytes)
	assert.Equal(t, int64(9), *file.SizeBytes)

	require.Len(t, perms.grants, 2)
	grantedUsers := map[string]bool{}
	for _, g := range perms.grants {
		grantedUsers[g.UserID] = true
		assert.Equal(t, file.ID, g.FileID)
		assert.True(t, g.CanView && g.CanEdit && g.CanDelete && g.CanShare)
	}
	assert.True(t, grantedUsers["alice"])
	assert.True(t, grantedUsers["admin-id"])
}

func TestUploadWithoutFolderUsesDefaultRoot(t *testing.T) {
	repo := &fileRepoMock{}
	provisioner := &provisionerMock{root: &models.Folder{ID: "root-1", Name: "user-alice", OwnerID: "alice"}}
	svc := NewFileService(repo, provisioner, &filePermWriterMock{}, adminResolverMock{admin: &models.User{ID: "admin-id"}}, accessCheckerStub{}, &backendMock{}, nil, nil)

	file, err := svc.Upload(context.Background(), UploadInput{
		Filename: "memo.txt",
		Reader:   strings.NewReader("hi"),
		Size:     2,
	}, &models.JWTClaims{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "root-1", file.FolderID)
	assert.Equal(t, 1, provisioner.calls)
}

func TestUploadWithoutCreateCapabilityIsForbidden(t *testing.T) {
	folderID := "docs"
	svc := NewFileService(&fileRepoMock{}, &provisionerMock{}, &filePermWriterMock{}, adminResolverMock{}, accessCheckerStub{folderAllowed: false}, &backendMock{}, nil, nil)

	_, err := svc.Upload(context.Background(), UploadInput{
		Filename: "q1.pdf",
		FolderID: &folderID,
		Reader:   strings.NewReader("x"),
	}, &models.JWTClaims{UserID: "mallory"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestUploadMetadataFailureCleansUpObject(t *testing.T) {
	repo := &fileRepoMock{createErr: errors.New("db down")}
	backend := &backendMock{}
	folderID := "docs"
	svc := NewFileService(repo, &provisionerMock{}, &filePermWriterMock{}, adminResolverMock{admin: &models.User{ID: "admin-id"}}, accessCheckerStub{folderAllowed: true}, backend, nil, nil)

	_, err := svc.Upload(context.Background(), UploadInput{
		Filename: "q1.pdf",
		FolderID: &folderID,
		Reader:   strings.NewReader("x"),
	}, &models.JWTClaims{UserID: "alice"})
	require.Error(t, err)

	// The stored object does not outlive the failed metadata write.
	assert.Equal(t, []string{"docs/q1.pdf"}, backend.deletedObjects)
}

func TestDownloadURLRequiresViewCapability(t *testing.T) {
	svc := NewFileService(&fileRepoMock{}, &provisionerMock{}, &filePermWriterMock{}, adminResolverMock{}, accessCheckerStub{fileAllowed: false}, &backendMock{}, nil, nil)

	_, err := svc.DownloadURL(context.Background(), "f1", &models.JWTClaims{UserID: "mallory"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestDownloadURLReturnsBackendLink(t *testing.T) {
	repo := &fileRepoMock{files: map[string]*models.File{
		"f1": {ID: "f1", StorageKey: "docs/q1.pdf", UploadedByID: "alice"},
	}}
	svc := NewFileService(repo, &provisionerMock{}, &filePermWriterMock{}, adminResolverMock{}, accessCheckerStub{fileAllowed: true}, &backendMock{}, nil, nil)

	url, err := svc.DownloadURL(context.Background(), "f1", &models.JWTClaims{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs/q1.pdf", url)
}

func TestDeleteFileRemovesObjectThenMetadata(t *testing.T) {
	repo := &fileRepoMock{files: map[string]*models.File{
		"f1": {ID: "f1", StorageKey: "docs/q1.pdf", UploadedByID: "alice"},
	}}
	backend := &backendMock{}
	svc := NewFileService(repo, &provisionerMock{}, &filePermWriterMock{}, adminResolverMock{}, accessCheckerStub{fileAllowed: true}, backend, nil, nil)

	err := svc.Delete(context.Background(), "f1", &models.JWTClaims{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/q1.pdf"}, backend.deletedObjects)
	assert.Equal(t, []string{"f1"}, repo.deleted)
}

func TestDeleteFileStorageFailureKeepsMetadata(t *testing.T) {
	repo := &fileRepoMock{files: map[string]*models.File{
		"f1": {ID: "f1", StorageKey: "docs/q1.pdf", UploadedByID: "alice"},
	}}
	backend := &backendMock{deleteObjectErr: appErrors.NewStorage(errors.New("io"), "backend down")}
	svc := NewFileService(repo, &provisionerMock{}, &filePermWriterMock{}, adminResolverMock{}, accessCheckerStub{fileAllowed: true}, backend, nil, nil)

	err := svc.Delete(context.Background(), "f1", &models.JWTClaims{UserID: "alice"})
	require.Error(t, err)
	assert.True(t, appErrors.IsStorage(err))
	assert.Empty(t, repo.deleted)
}

func TestDeleteMissingFileIsNotFound(t *testing.T) {
	svc := NewFileService(&fileRepoMock{}, &provisionerMock{}, &filePermWriterMock{}, adminResolverMock{}, accessCheckerStub{fileAllowed: true}, &backendMock{}, nil, nil)

	err := svc.Delete(context.Background(), "ghost", &models.JWTClaims{UserID: "alice"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
