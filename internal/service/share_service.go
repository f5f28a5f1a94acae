package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/drive-api/internal/dto"
	"github.com/noah-isme/drive-api/internal/models"
	"github.com/noah-isme/drive-api/internal/repository"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

// Share types recorded on audit rows. A cascade share starts at a root
// folder and covers its whole subtree; a direct share covers one folder and
// its direct files, or a single file.
const (
	shareTypeCascade = "cascade"
	shareTypeDirect  = "direct"
)

type shareFolderRepository interface {
	FindByID(ctx context.Context, id string) (*models.Folder, error)
	ListSubtree(ctx context.Context, rootID string) ([]models.Folder, error)
}

type shareFileRepository interface {
	FindByID(ctx context.Context, id string) (*models.File, error)
	ListByFolders(ctx context.Context, folderIDs []string) ([]models.File, error)
}

type shareUserResolver interface {
	FindByEmails(ctx context.Context, emails []string) ([]models.User, error)
}

type shareBatchApplier interface {
	Apply(ctx context.Context, batch repository.ShareBatch) error
}

type shareAccessChecker interface {
	CanAccessFolder(ctx context.Context, userID, folderID string, capability models.Capability) (bool, error)
	CanAccessFile(ctx context.Context, userID, fileID string, capability models.Capability) (bool, error)
}

// ShareService is the propagation engine: it computes the resource set a
// share covers and overwrites permission grants for every target across
// that set in one transaction.
type ShareService struct {
	folders   shareFolderRepository
	files     shareFileRepository
	users     shareUserResolver
	batches   shareBatchApplier
	access    shareAccessChecker
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewShareService constructs the sharing engine. metrics may be nil.
func NewShareService(folders shareFolderRepository, files shareFileRepository, users shareUserResolver, batches shareBatchApplier, access shareAccessChecker, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ShareService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ShareService{
		folders:   folders,
		files:     files,
		users:     users,
		batches:   batches,
		access:    access,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// ShareFolder grants the requested capabilities on a folder to every
// resolvable target. Sharing a root folder cascades to the entire subtree;
// sharing a non-root folder covers the folder and its direct files only.
// The asymmetry is intentional and matches the share-record scope: the
// audit row always points at the folder the sharer named, never at
// descendants.
func (s *ShareService) ShareFolder(ctx context.Context, folderID string, req dto.ShareRequest, actor *models.JWTClaims) (*models.ShareResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid share payload")
	}

	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve folder")
	}

	allowed, err := s.access.CanAccessFolder(ctx, actor.UserID, folderID, models.CapabilityShare)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "sharing this folder is not allowed")
	}

	targets, skipped, err := s.resolveTargets(ctx, req.Emails)
	if err != nil {
		return nil, err
	}
	result := &models.ShareResult{Shared: make([]string, 0, len(targets)), Skipped: skipped}
	if len(targets) == 0 {
		return result, nil
	}

	// One subtree fetch plus one files fetch covers the whole propagation
	// set regardless of tree depth.
	scope := []models.Folder{*folder}
	shareType := shareTypeDirect
	if folder.IsRoot() {
		scope, err = s.folders.ListSubtree(ctx, folder.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand folder tree")
		}
		shareType = shareTypeCascade
	}
	folderIDs := make([]string, len(scope))
	for i, f := range scope {
		folderIDs[i] = f.ID
	}
	scopeFiles, err := s.files.ListByFolders(ctx, folderIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder files")
	}

	caps := parseCapabilities(req.Capabilities)
	batch := repository.ShareBatch{}
	for _, target := range targets {
		batch.Records = append(batch.Records, models.ShareRecord{
			ItemType:   models.ShareItemFolder,
			ItemID:     folder.ID,
			SharedBy:   actor.UserID,
			SharedWith: target.ID,
			ShareType:  shareType,
		})
		for _, f := range scope {
			batch.FolderGrants = append(batch.FolderGrants, folderGrant(target.ID, f.ID, caps))
		}
		for _, file := range scopeFiles {
			batch.FileGrants = append(batch.FileGrants, fileGrant(target.ID, file.ID, caps))
		}
		result.Shared = append(result.Shared, target.Email)
	}

	if err := s.batches.Apply(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply share")
	}
	s.metrics.ObserveShareFanout(len(batch.FolderGrants) + len(batch.FileGrants))

	s.logger.Info("folder shared",
		zap.String("folder_id", folder.ID),
		zap.String("shared_by", actor.UserID),
		zap.String("share_type", shareType),
		zap.Int("targets", len(targets)),
		zap.Int("folders", len(scope)),
		zap.Int("files", len(scopeFiles)),
	)
	return result, nil
}

// ShareFile grants the requested capabilities on a single file.
func (s *ShareService) ShareFile(ctx context.Context, fileID string, req dto.ShareRequest, actor *models.JWTClaims) (*models.ShareResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid share payload")
	}

	file, err := s.files.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file")
	}

	allowed, err := s.access.CanAccessFile(ctx, actor.UserID, fileID, models.CapabilityShare)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "sharing this file is not allowed")
	}

	targets, skipped, err := s.resolveTargets(ctx, req.Emails)
	if err != nil {
		return nil, err
	}
	result := &models.ShareResult{Shared: make([]string, 0, len(targets)), Skipped: skipped}
	if len(targets) == 0 {
		return result, nil
	}

	caps := parseCapabilities(req.Capabilities)
	batch := repository.ShareBatch{}
	for _, target := range targets {
		batch.Records = append(batch.Records, models.ShareRecord{
			ItemType:   models.ShareItemFile,
			ItemID:     file.ID,
			SharedBy:   actor.UserID,
			SharedWith: target.ID,
			ShareType:  shareTypeDirect,
		})
		batch.FileGrants = append(batch.FileGrants, fileGrant(target.ID, file.ID, caps))
		result.Shared = append(result.Shared, target.Email)
	}

	if err := s.batches.Apply(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply share")
	}
	s.metrics.ObserveShareFanout(len(batch.FileGrants))

	s.logger.Info("file shared",
		zap.String("file_id", file.ID),
		zap.String("shared_by", actor.UserID),
		zap.Int("targets", len(targets)),
	)
	return result, nil
}

// resolveTargets maps emails to users in one query. Unknown addresses are
// reported back to the caller, not treated as a hard failure.
func (s *ShareService) resolveTargets(ctx context.Context, emails []string) ([]models.User, []string, error) {
	users, err := s.users.FindByEmails(ctx, emails)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve share targets")
	}
	byEmail := make(map[string]models.User, len(users))
	for _, u := range users {
		byEmail[strings.ToLower(u.Email)] = u
	}

	var targets []models.User
	var skipped []string
	seen := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		key := strings.ToLower(strings.TrimSpace(email))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if user, ok := byEmail[key]; ok {
			targets = append(targets, user)
		} else {
			s.logger.Warn("share target not found", zap.String("email", email))
			skipped = append(skipped, email)
		}
	}
	return targets, skipped, nil
}

// parseCapabilities turns the requested flag names into the exact set to
// write. Every share overwrites the four grantable flags; names absent from
// the request come out false, which is how re-sharing narrows access.
func parseCapabilities(names []string) models.CapabilitySet {
	var caps models.CapabilitySet
	for _, name := range names {
		switch models.Capability(strings.ToLower(strings.TrimSpace(name))) {
		case models.CapabilityEdit:
			caps.Edit = true
		case models.CapabilityDelete:
			caps.Delete = true
		case models.CapabilityCreate:
			caps.Create = true
		case models.CapabilityShare:
			caps.Share = true
		}
	}
	return caps
}

func folderGrant(userID, folderID string, caps models.CapabilitySet) models.FolderPermission {
	return models.FolderPermission{
		UserID:    userID,
		FolderID:  folderID,
		CanView:   true,
		CanEdit:   caps.Edit,
		CanDelete: caps.Delete,
		CanCreate: caps.Create,
		CanShare:  caps.Share,
	}
}

func fileGrant(userID, fileID string, caps models.CapabilitySet) models.FilePermission {
	return models.FilePermission{
		UserID:    userID,
		FileID:    fileID,
		CanView:   true,
		CanEdit:   caps.Edit,
		CanDelete: caps.Delete,
		CanShare:  caps.Share,
	}
}
