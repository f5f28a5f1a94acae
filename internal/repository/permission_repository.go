package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/drive-api/internal/models"
)

// PermissionRepository provides database access for per-user capability
// rows on folders and files. All writes are atomic upserts keyed by the
// (user, resource) unique constraint, which makes concurrent grants
// last-writer-wins without read-then-write races.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository creates a new instance of PermissionRepository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

const upsertFolderPermissionQuery = `INSERT INTO user_folder_permissions (id, user_id, folder_id, can_view, can_edit, can_delete, can_create, can_share)
                VALUES (:id, :user_id, :folder_id, :can_view, :can_edit, :can_delete, :can_create, :can_share)
                ON CONFLICT (user_id, folder_id)
                DO UPDATE SET can_view = EXCLUDED.can_view, can_edit = EXCLUDED.can_edit, can_delete = EXCLUDED.can_delete, can_create = EXCLUDED.can_create, can_share = EXCLUDED.can_share`

const upsertFilePermissionQuery = `INSERT INTO user_file_permissions (id, user_id, file_id, can_view, can_edit, can_delete, can_share)
                VALUES (:id, :user_id, :file_id, :can_view, :can_edit, :can_delete, :can_share)
                ON CONFLICT (user_id, file_id)
                DO UPDATE SET can_view = EXCLUDED.can_view, can_edit = EXCLUDED.can_edit, can_delete = EXCLUDED.can_delete, can_share = EXCLUDED.can_share`

// GetFolderPermission returns the single permission row for a (user,
// folder) pair, or sql.ErrNoRows.
func (r *PermissionRepository) GetFolderPermission(ctx context.Context, userID, folderID string) (*models.FolderPermission, error) {
	const query = `SELECT id, user_id, folder_id, can_view, can_edit, can_delete, can_create, can_share FROM user_folder_permissions WHERE user_id = $1 AND folder_id = $2 LIMIT 1`
	var perm models.FolderPermission
	if err := r.db.GetContext(ctx, &perm, query, userID, folderID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get folder permission: %w", err)
	}
	return &perm, nil
}

// GetFilePermission returns the single permission row for a (user, file)
// pair, or sql.ErrNoRows.
func (r *PermissionRepository) GetFilePermission(ctx context.Context, userID, fileID string) (*models.FilePermission, error) {
	const query = `SELECT id, user_id, file_id, can_view, can_edit, can_delete, can_share FROM user_file_permissions WHERE user_id = $1 AND file_id = $2 LIMIT 1`
	var perm models.FilePermission
	if err := r.db.GetContext(ctx, &perm, query, userID, fileID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get file permission: %w", err)
	}
	return &perm, nil
}

// UpsertFolderPermission writes a folder permission row, replacing every
// flag on conflict.
func (r *PermissionRepository) UpsertFolderPermission(ctx context.Context, perm *models.FolderPermission) error {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	if _, err := r.db.NamedExecContext(ctx, upsertFolderPermissionQuery, perm); err != nil {
		return fmt.Errorf("upsert folder permission: %w", err)
	}
	return nil
}

// UpsertFilePermission writes a file permission row, replacing every flag
// on conflict.
func (r *PermissionRepository) UpsertFilePermission(ctx context.Context, perm *models.FilePermission) error {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	if _, err := r.db.NamedExecContext(ctx, upsertFilePermissionQuery, perm); err != nil {
		return fmt.Errorf("upsert file permission: %w", err)
	}
	return nil
}

// ListFolderPermissionsByUser returns every folder permission row held by a
// user.
func (r *PermissionRepository) ListFolderPermissionsByUser(ctx context.Context, userID string) ([]models.FolderPermission, error) {
	const query = `SELECT id, user_id, folder_id, can_view, can_edit, can_delete, can_create, can_share FROM user_folder_permissions WHERE user_id = $1`
	var perms []models.FolderPermission
	if err := r.db.SelectContext(ctx, &perms, query, userID); err != nil {
		return nil, fmt.Errorf("list folder permissions: %w", err)
	}
	return perms, nil
}

// ListFilePermissionsByUser returns every file permission row held by a
// user.
func (r *PermissionRepository) ListFilePermissionsByUser(ctx context.Context, userID string) ([]models.FilePermission, error) {
	const query = `SELECT id, user_id, file_id, can_view, can_edit, can_delete, can_share FROM user_file_permissions WHERE user_id = $1`
	var perms []models.FilePermission
	if err := r.db.SelectContext(ctx, &perms, query, userID); err != nil {
		return nil, fmt.Errorf("list file permissions: %w", err)
	}
	return perms, nil
}
