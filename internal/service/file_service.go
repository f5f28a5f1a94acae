package service

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/drive-api/internal/models"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
	"github.com/noah-isme/drive-api/pkg/storage"
)

type fileRepository interface {
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id string) (*models.File, error)
	DeleteWithPermissions(ctx context.Context, fileID string) error
}

type filePermissionWriter interface {
	UpsertFilePermission(ctx context.Context, perm *models.FilePermission) error
}

type fileAccessChecker interface {
	CanAccessFolder(ctx context.Context, userID, folderID string, capability models.Capability) (bool, error)
	CanAccessFile(ctx context.Context, userID, fileID string, capability models.Capability) (bool, error)
}

// folderProvisioner resolves the destination for uploads that name no
// folder, creating the caller's default root on first use.
type folderProvisioner interface {
	EnsureUserRoot(ctx context.Context, userID string) (*models.Folder, error)
}

// FileService handles the file lifecycle. Objects are written to storage
// before their metadata row exists; a metadata failure triggers a
// compensating object delete so storage never holds blobs the database
// cannot name for long.
type FileService struct {
	repo      fileRepository
	folders   folderProvisioner
	perms     filePermissionWriter
	admins    adminResolver
	access    fileAccessChecker
	backend   storage.Backend
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFileService constructs the service.
func NewFileService(repo fileRepository, folders folderProvisioner, perms filePermissionWriter, admins adminResolver, access fileAccessChecker, backend storage.Backend, validate *validator.Validate, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FileService{
		repo:      repo,
		folders:   folders,
		perms:     perms,
		admins:    admins,
		access:    access,
		backend:   backend,
		validator: validate,
		logger:    logger,
	}
}

// UploadInput carries one incoming file stream plus its metadata.
type UploadInput struct {
	Filename    string
	FolderID    *string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Upload stores the object, records its metadata and grants the uploader
// and the administrative principal full access. When no folder is named the
// caller's default root is used, created lazily.
func (s *FileService) Upload(ctx context.Context, in UploadInput, actor *models.JWTClaims) (*models.File, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if in.Filename == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "filename is required")
	}

	var folderID string
	if in.FolderID != nil && *in.FolderID != "" {
		allowed, err := s.access.CanAccessFolder(ctx, actor.UserID, *in.FolderID, models.CapabilityCreate)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "uploading to this folder is not allowed")
		}
		folderID = *in.FolderID
	} else {
		root, err := s.folders.EnsureUserRoot(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		folderID = root.ID
	}

	key, err := s.backend.StoreObject(ctx, folderID, in.Filename, in.Reader, in.Size)
	if err != nil {
		return nil, err
	}

	file := &models.File{
		ID:           uuid.NewString(),
		Filename:     in.Filename,
		StorageKey:   key,
		FolderID:     folderID,
		UploadedByID: actor.UserID,
	}
	if in.ContentType != "" {
		file.ContentType = &in.ContentType
	}
	if in.Size > 0 {
		size := in.Size
		file.SizeBytes = &size
	}

	if err := s.repo.Create(ctx, file); err != nil {
		if cleanupErr := s.backend.DeleteObject(ctx, key); cleanupErr != nil {
			s.logger.Error("failed to clean up stored object", zap.String("key", key), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record file")
	}

	if err := s.grantUploadPermissions(ctx, file, actor); err != nil {
		if cleanupErr := s.repo.DeleteWithPermissions(ctx, file.ID); cleanupErr != nil {
			s.logger.Error("failed to roll back file metadata", zap.String("file_id", file.ID), zap.Error(cleanupErr))
		}
		if cleanupErr := s.backend.DeleteObject(ctx, key); cleanupErr != nil {
			s.logger.Error("failed to clean up stored object", zap.String("key", key), zap.Error(cleanupErr))
		}
		return nil, err
	}

	s.logger.Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("folder_id", folderID),
		zap.String("filename", file.Filename),
		zap.Int64("size", in.Size),
	)
	return file, nil
}

// DownloadURL returns a short-lived URL for the file contents. The local
// backend yields a direct filesystem path instead of a signed link.
func (s *FileService) DownloadURL(ctx context.Context, fileID string, actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}

	allowed, err := s.access.CanAccessFile(ctx, actor.UserID, fileID, models.CapabilityView)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", appErrors.Clone(appErrors.ErrForbidden, "viewing this file is not allowed")
	}

	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file")
	}

	url, err := s.backend.PresignedURL(ctx, file.StorageKey, 0)
	if err != nil {
		return "", err
	}
	return url, nil
}

// Fetch returns the file metadata and full contents, used for inline
// downloads when a presigned redirect is not wanted.
func (s *FileService) Fetch(ctx context.Context, fileID string, actor *models.JWTClaims) (*models.File, []byte, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}

	allowed, err := s.access.CanAccessFile(ctx, actor.UserID, fileID, models.CapabilityView)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "viewing this file is not allowed")
	}

	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file")
	}

	data, err := s.backend.FetchObject(ctx, file.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return file, data, nil
}

// Delete removes a file. The physical object goes first: if storage refuses
// the delete the metadata stays intact and the operation fails, never the
// other way around.
func (s *FileService) Delete(ctx context.Context, fileID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}

	allowed, err := s.access.CanAccessFile(ctx, actor.UserID, fileID, models.CapabilityDelete)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "deleting this file is not allowed")
	}

	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file")
	}

	if err := s.backend.DeleteObject(ctx, file.StorageKey); err != nil {
		return err
	}
	if err := s.repo.DeleteWithPermissions(ctx, file.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete file metadata")
	}

	s.logger.Info("file deleted", zap.String("file_id", file.ID), zap.String("key", file.StorageKey))
	return nil
}

func (s *FileService) grantUploadPermissions(ctx context.Context, file *models.File, actor *models.JWTClaims) error {
	admin, err := s.admins.FindAdmin(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInternal, "administrative principal is not configured")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve administrative principal")
	}

	if err := s.perms.UpsertFilePermission(ctx, fullFilePermission(admin.ID, file.ID)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant admin permissions")
	}
	if actor.UserID != admin.ID {
		if err := s.perms.UpsertFilePermission(ctx, fullFilePermission(actor.UserID, file.ID)); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant uploader permissions")
		}
	}
	return nil
}

func fullFilePermission(userID, fileID string) *models.FilePermission {
	return &models.FilePermission{
		UserID:    userID,
		FileID:    fileID,
		CanView:   true,
		CanEdit:   true,
		CanDelete: true,
		CanShare:  true,
	}
}
