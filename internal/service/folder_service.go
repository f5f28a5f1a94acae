package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/drive-api/internal/dto"
	"github.com/noah-isme/drive-api/internal/models"
	"github.com/noah-isme/drive-api/internal/repository"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
	"github.com/noah-isme/drive-api/pkg/storage"
)

// maxNameSuffix bounds the " (n)" collision retry budget before giving up
// with Conflict.
const maxNameSuffix = 100

type folderRepository interface {
	Create(ctx context.Context, folder *models.Folder) error
	FindByID(ctx context.Context, id string) (*models.Folder, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Folder, error)
	FindRootByOwnerAndName(ctx context.Context, ownerID, name string) (*models.Folder, error)
	ListSiblingNames(ctx context.Context, ownerID string, parentID *string) ([]string, error)
	ListSubtree(ctx context.Context, rootID string) ([]models.Folder, error)
	DeleteSubtree(ctx context.Context, folderIDs []string) error
}

type folderFileRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.File, error)
	ListByFolders(ctx context.Context, folderIDs []string) ([]models.File, error)
}

type folderPermissionWriter interface {
	UpsertFolderPermission(ctx context.Context, perm *models.FolderPermission) error
	ListFolderPermissionsByUser(ctx context.Context, userID string) ([]models.FolderPermission, error)
	ListFilePermissionsByUser(ctx context.Context, userID string) ([]models.FilePermission, error)
}

type adminResolver interface {
	FindAdmin(ctx context.Context) (*models.User, error)
}

type folderAccessChecker interface {
	CanAccessFolder(ctx context.Context, userID, folderID string, capability models.Capability) (bool, error)
}

// AccessibleResources lists the roots of visibility for one user: folders
// whose parent is not itself visible, plus files visible outside any
// visible folder.
type AccessibleResources struct {
	Folders []models.FolderTree `json:"folders"`
	Files   []models.File       `json:"files"`
}

// FolderService manages folder lifecycle: creation with name-collision
// resolution, cascade deletion, and tree materialization. Metadata and
// physical storage are kept consistent with compensating cleanup when one
// side fails.
type FolderService struct {
	repo      folderRepository
	files     folderFileRepository
	perms     folderPermissionWriter
	admins    adminResolver
	access    folderAccessChecker
	backend   storage.Backend
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFolderService constructs the service.
func NewFolderService(repo folderRepository, files folderFileRepository, perms folderPermissionWriter, admins adminResolver, access folderAccessChecker, backend storage.Backend, validate *validator.Validate, logger *zap.Logger) *FolderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FolderService{
		repo:      repo,
		files:     files,
		perms:     perms,
		admins:    admins,
		access:    access,
		backend:   backend,
		validator: validate,
		logger:    logger,
	}
}

// Create makes a new folder, resolves name collisions within the (owner,
// parent) scope, creates the physical container and materializes full
// permission rows for the administrative principal and the creator. The
// operation is all-or-nothing from the caller's perspective.
func (s *FolderService) Create(ctx context.Context, req dto.CreateFolderRequest, actor *models.JWTClaims) (*models.FolderTree, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}

	if req.ParentFolderID != nil {
		parent, err := s.repo.FindByID(ctx, *req.ParentFolderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "parent folder does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve parent folder")
		}
		allowed, err := s.access.CanAccessFolder(ctx, actor.UserID, parent.ID, models.CapabilityCreate)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "creating folders here is not allowed")
		}
	}

	folder, err := s.insertWithUniqueName(ctx, req.Name, req.ParentFolderID, actor.UserID)
	if err != nil {
		return nil, err
	}

	if _, err := s.backend.CreateContainer(ctx, folder.ID); err != nil {
		s.logger.Error("storage container creation failed, rolling back folder", zap.String("folder_id", folder.ID), zap.Error(err))
		if cleanupErr := s.repo.DeleteSubtree(ctx, []string{folder.ID}); cleanupErr != nil {
			s.logger.Error("failed to roll back folder metadata", zap.String("folder_id", folder.ID), zap.Error(cleanupErr))
		}
		return nil, err
	}

	if err := s.grantCreationPermissions(ctx, folder, actor); err != nil {
		if cleanupErr := s.backend.DeleteContainer(ctx, folder.ID); cleanupErr != nil {
			s.logger.Error("failed to clean up storage container", zap.String("folder_id", folder.ID), zap.Error(cleanupErr))
		}
		if cleanupErr := s.repo.DeleteSubtree(ctx, []string{folder.ID}); cleanupErr != nil {
			s.logger.Error("failed to roll back folder metadata", zap.String("folder_id", folder.ID), zap.Error(cleanupErr))
		}
		return nil, err
	}

	s.logger.Info("folder created", zap.String("folder_id", folder.ID), zap.String("name", folder.Name), zap.String("owner_id", folder.OwnerID))
	return &models.FolderTree{Folder: *folder, Files: []models.File{}, Subfolders: []models.FolderTree{}}, nil
}

// EnsureUserRoot resolves the per-user default root container, creating it
// lazily on first use. The name derives deterministically from the user
// identity.
func (s *FolderService) EnsureUserRoot(ctx context.Context, userID string) (*models.Folder, error) {
	name := defaultRootName(userID)
	folder, err := s.repo.FindRootByOwnerAndName(ctx, userID, name)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve default folder")
	}

	created, err := s.Create(ctx, dto.CreateFolderRequest{Name: name}, &models.JWTClaims{UserID: userID, Role: models.RoleUser})
	if err != nil {
		return nil, err
	}
	return &created.Folder, nil
}

// Delete removes a folder and its entire subtree: permission rows, file
// metadata and folder rows go in one transaction; physical objects and
// containers are deleted best-effort afterwards, since an orphaned blob is
// preferable to folder metadata that can never be cleaned up.
func (s *FolderService) Delete(ctx context.Context, folderID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}

	allowed, err := s.access.CanAccessFolder(ctx, actor.UserID, folderID, models.CapabilityDelete)
	if err != nil {
		return err
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "deleting this folder is not allowed")
	}

	subtree, err := s.repo.ListSubtree(ctx, folderID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand folder tree")
	}
	folderIDs := make([]string, len(subtree))
	for i, f := range subtree {
		folderIDs[i] = f.ID
	}
	files, err := s.files.ListByFolders(ctx, folderIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder files")
	}

	if err := s.repo.DeleteSubtree(ctx, folderIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete folder metadata")
	}

	for _, file := range files {
		if err := s.backend.DeleteObject(ctx, file.StorageKey); err != nil {
			s.logger.Warn("failed to delete stored object", zap.String("file_id", file.ID), zap.String("key", file.StorageKey), zap.Error(err))
		}
	}
	for _, f := range subtree {
		if err := s.backend.DeleteContainer(ctx, f.ID); err != nil {
			s.logger.Warn("failed to delete storage container", zap.String("folder_id", f.ID), zap.Error(err))
		}
	}

	s.logger.Info("folder deleted", zap.String("folder_id", folderID), zap.Int("folders", len(subtree)), zap.Int("files", len(files)))
	return nil
}

// GetTree materializes a folder with its nested subfolders and files. One
// subtree query plus one files query, assembled in memory.
func (s *FolderService) GetTree(ctx context.Context, folderID string, actor *models.JWTClaims) (*models.FolderTree, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	allowed, err := s.access.CanAccessFolder(ctx, actor.UserID, folderID, models.CapabilityView)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "viewing this folder is not allowed")
	}

	return s.materializeTree(ctx, folderID)
}

// ListAccessible returns the roots of visibility for a user: every folder
// with a can_view row whose parent is not itself visible, plus files whose
// owning folder is not in the visible set. Permission rows are the sole
// source of truth here.
func (s *FolderService) ListAccessible(ctx context.Context, userID string) (*AccessibleResources, error) {
	folderPerms, err := s.perms.ListFolderPermissionsByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder permissions")
	}

	visible := make(map[string]struct{})
	var visibleIDs []string
	for _, perm := range folderPerms {
		if perm.CanView {
			visible[perm.FolderID] = struct{}{}
			visibleIDs = append(visibleIDs, perm.FolderID)
		}
	}

	folders, err := s.repo.FindByIDs(ctx, visibleIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve visible folders")
	}

	result := &AccessibleResources{Folders: []models.FolderTree{}, Files: []models.File{}}
	for _, folder := range folders {
		if folder.ParentFolderID != nil {
			if _, parentVisible := visible[*folder.ParentFolderID]; parentVisible {
				continue
			}
		}
		tree, err := s.materializeTree(ctx, folder.ID)
		if err != nil {
			return nil, err
		}
		result.Folders = append(result.Folders, *tree)
	}

	filePerms, err := s.perms.ListFilePermissionsByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list file permissions")
	}
	var looseFileIDs []string
	for _, perm := range filePerms {
		if perm.CanView {
			looseFileIDs = append(looseFileIDs, perm.FileID)
		}
	}
	if len(looseFileIDs) > 0 {
		// Only files outside any visible folder are listed separately.
		files, err := s.filesOutsideVisible(ctx, looseFileIDs, visible)
		if err != nil {
			return nil, err
		}
		result.Files = files
	}

	return result, nil
}

// Archive assembles a zip of every file in the folder subtree, fetching
// full object contents from the storage backend.
func (s *FolderService) Archive(ctx context.Context, folderID string, actor *models.JWTClaims) ([]byte, string, error) {
	if actor == nil {
		return nil, "", appErrors.ErrUnauthorized
	}

	allowed, err := s.access.CanAccessFolder(ctx, actor.UserID, folderID, models.CapabilityView)
	if err != nil {
		return nil, "", err
	}
	if !allowed {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "viewing this folder is not allowed")
	}

	subtree, err := s.repo.ListSubtree(ctx, folderID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand folder tree")
	}
	byID := make(map[string]models.Folder, len(subtree))
	folderIDs := make([]string, len(subtree))
	for i, f := range subtree {
		byID[f.ID] = f
		folderIDs[i] = f.ID
	}
	files, err := s.files.ListByFolders(ctx, folderIDs)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder files")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, file := range files {
		data, err := s.backend.FetchObject(ctx, file.StorageKey)
		if err != nil {
			_ = zw.Close()
			return nil, "", err
		}
		entry, err := zw.Create(archivePath(byID, folderID, file))
		if err != nil {
			_ = zw.Close()
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build archive")
		}
		if _, err := entry.Write(data); err != nil {
			_ = zw.Close()
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build archive")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize archive")
	}

	name := byID[folderID].Name + ".zip"
	return buf.Bytes(), name, nil
}

// insertWithUniqueName resolves the collision-free name from the sibling
// set and inserts the folder. A unique-index violation means a concurrent
// insert won the race for that name; the loop retries with the next
// suffix instead of trusting the earlier read.
func (s *FolderService) insertWithUniqueName(ctx context.Context, baseName string, parentID *string, ownerID string) (*models.Folder, error) {
	siblings, err := s.repo.ListSiblingNames(ctx, ownerID, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check folder names")
	}
	taken := make(map[string]struct{}, len(siblings))
	for _, name := range siblings {
		taken[name] = struct{}{}
	}

	suffix := 0
	for attempt := 0; attempt <= maxNameSuffix; attempt++ {
		name := baseName
		if suffix > 0 {
			name = fmt.Sprintf("%s (%d)", baseName, suffix)
		}
		if _, exists := taken[name]; exists {
			suffix++
			continue
		}

		folder := &models.Folder{
			ID:             uuid.NewString(),
			Name:           name,
			ParentFolderID: parentID,
			OwnerID:        ownerID,
		}
		err := s.repo.Create(ctx, folder)
		if err == nil {
			return folder, nil
		}
		if repository.IsUniqueViolation(err) {
			taken[name] = struct{}{}
			suffix++
			continue
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create folder")
	}

	return nil, appErrors.Clone(appErrors.ErrConflict, "folder name collision retry budget exhausted")
}

// grantCreationPermissions materializes full-capability rows for the
// administrative principal and the creator. A missing admin principal is a
// configuration error, not a per-request failure.
func (s *FolderService) grantCreationPermissions(ctx context.Context, folder *models.Folder, actor *models.JWTClaims) error {
	admin, err := s.admins.FindAdmin(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInternal, "administrative principal is not configured")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve administrative principal")
	}

	if err := s.perms.UpsertFolderPermission(ctx, fullFolderPermission(admin.ID, folder.ID)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant admin permissions")
	}
	if actor.UserID != admin.ID {
		if err := s.perms.UpsertFolderPermission(ctx, fullFolderPermission(actor.UserID, folder.ID)); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant owner permissions")
		}
	}
	return nil
}

func (s *FolderService) materializeTree(ctx context.Context, folderID string) (*models.FolderTree, error) {
	subtree, err := s.repo.ListSubtree(ctx, folderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand folder tree")
	}
	if len(subtree) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
	}
	folderIDs := make([]string, len(subtree))
	for i, f := range subtree {
		folderIDs[i] = f.ID
	}
	files, err := s.files.ListByFolders(ctx, folderIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder files")
	}

	filesByFolder := make(map[string][]models.File)
	for _, file := range files {
		filesByFolder[file.FolderID] = append(filesByFolder[file.FolderID], file)
	}
	childrenByParent := make(map[string][]models.Folder)
	var root *models.Folder
	for i := range subtree {
		f := subtree[i]
		if f.ID == folderID {
			root = &subtree[i]
			continue
		}
		if f.ParentFolderID != nil {
			childrenByParent[*f.ParentFolderID] = append(childrenByParent[*f.ParentFolderID], f)
		}
	}
	if root == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
	}

	tree := buildTree(*root, childrenByParent, filesByFolder)
	return &tree, nil
}

// filesOutsideVisible filters granted files down to those not already
// covered by a visible folder tree, so a file never appears twice in one
// listing.
func (s *FolderService) filesOutsideVisible(ctx context.Context, fileIDs []string, visibleFolders map[string]struct{}) ([]models.File, error) {
	files, err := s.files.FindByIDs(ctx, fileIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve visible files")
	}
	loose := make([]models.File, 0, len(files))
	for _, file := range files {
		if _, covered := visibleFolders[file.FolderID]; covered {
			continue
		}
		loose = append(loose, file)
	}
	return loose, nil
}

func buildTree(folder models.Folder, children map[string][]models.Folder, files map[string][]models.File) models.FolderTree {
	tree := models.FolderTree{Folder: folder, Files: files[folder.ID], Subfolders: []models.FolderTree{}}
	if tree.Files == nil {
		tree.Files = []models.File{}
	}
	kids := children[folder.ID]
	sort.Slice(kids, func(i, j int) bool { return kids[i].CreatedAt.Before(kids[j].CreatedAt) })
	for _, child := range kids {
		tree.Subfolders = append(tree.Subfolders, buildTree(child, children, files))
	}
	return tree
}

func archivePath(folders map[string]models.Folder, rootID string, file models.File) string {
	segments := []string{file.Filename}
	current := file.FolderID
	for current != rootID {
		folder, ok := folders[current]
		if !ok {
			break
		}
		segments = append([]string{folder.Name}, segments...)
		if folder.ParentFolderID == nil {
			break
		}
		current = *folder.ParentFolderID
	}
	return path.Join(segments...)
}

func defaultRootName(userID string) string {
	return "user-" + userID
}

func fullFolderPermission(userID, folderID string) *models.FolderPermission {
	return &models.FolderPermission{
		UserID:    userID,
		FolderID:  folderID,
		CanView:   true,
		CanEdit:   true,
		CanDelete: true,
		CanCreate: true,
		CanShare:  true,
	}
}
