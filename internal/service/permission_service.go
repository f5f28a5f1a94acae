package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/drive-api/internal/models"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

type permissionFolderResolver interface {
	FindByID(ctx context.Context, id string) (*models.Folder, error)
}

type permissionFileResolver interface {
	FindByID(ctx context.Context, id string) (*models.File, error)
}

type permissionStore interface {
	GetFolderPermission(ctx context.Context, userID, folderID string) (*models.FolderPermission, error)
	GetFilePermission(ctx context.Context, userID, fileID string) (*models.FilePermission, error)
}

// PermissionService answers "can user U perform action A on resource R".
// Ownership is absolute and checked before any row lookup; otherwise the
// single permission row decides. The evaluator is stateless and performs
// exactly one lookup per check, never caching results.
type PermissionService struct {
	folders permissionFolderResolver
	files   permissionFileResolver
	perms   permissionStore
	logger  *zap.Logger
}

// NewPermissionService constructs the evaluator.
func NewPermissionService(folders permissionFolderResolver, files permissionFileResolver, perms permissionStore, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{folders: folders, files: files, perms: perms, logger: logger}
}

// CanAccessFolder checks one capability for one user on one folder. A
// missing folder yields NotFound, distinct from a plain "no" answer.
func (s *PermissionService) CanAccessFolder(ctx context.Context, userID, folderID string, capability models.Capability) (bool, error) {
	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve folder")
	}

	if folder.OwnerID == userID {
		return true, nil
	}

	perm, err := s.perms.GetFolderPermission(ctx, userID, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check folder permission")
	}

	return perm.Allows(capability), nil
}

// CanAccessFile checks one capability for one user on one file. The
// uploader holds implicit full access.
func (s *PermissionService) CanAccessFile(ctx context.Context, userID, fileID string, capability models.Capability) (bool, error) {
	file, err := s.files.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file")
	}

	if file.UploadedByID == userID {
		return true, nil
	}

	perm, err := s.perms.GetFilePermission(ctx, userID, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check file permission")
	}

	return perm.Allows(capability), nil
}
