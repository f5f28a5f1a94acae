package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/drive-api/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation.
// Folder creation relies on this to retry name-suffix collisions instead of
// trusting the read-then-write probe.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// FolderRepository provides database access for the folder tree.
type FolderRepository struct {
	db *sqlx.DB
}

// NewFolderRepository creates a new instance of FolderRepository.
func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

// Create inserts a folder row.
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	const query = `INSERT INTO folders (id, name, parent_folder_id, owner_id, created_at)
                VALUES (:id, :name, :parent_folder_id, :owner_id, :created_at)`
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, folder); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create folder: %w", err)
	}
	return nil
}

// FindByID returns a folder by identifier.
func (r *FolderRepository) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	const query = `SELECT id, name, parent_folder_id, owner_id, created_at FROM folders WHERE id = $1 LIMIT 1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find folder by id: %w", err)
	}
	return &folder, nil
}

// ListSiblingNames returns every folder name in one (owner, parent) scope.
// IS NOT DISTINCT FROM matches NULL parents for root folders.
func (r *FolderRepository) ListSiblingNames(ctx context.Context, ownerID string, parentID *string) ([]string, error) {
	const query = `SELECT name FROM folders WHERE owner_id = $1 AND parent_folder_id IS NOT DISTINCT FROM $2`
	var names []string
	if err := r.db.SelectContext(ctx, &names, query, ownerID, parentID); err != nil {
		return nil, fmt.Errorf("list sibling folder names: %w", err)
	}
	return names, nil
}

// FindRootByOwnerAndName locates a root folder by exact name, used to
// resolve per-user default containers.
func (r *FolderRepository) FindRootByOwnerAndName(ctx context.Context, ownerID, name string) (*models.Folder, error) {
	const query = `SELECT id, name, parent_folder_id, owner_id, created_at FROM folders
                WHERE owner_id = $1 AND name = $2 AND parent_folder_id IS NULL LIMIT 1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, ownerID, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find root folder: %w", err)
	}
	return &folder, nil
}

// FindByIDs returns the folders matching the given identifiers in one
// query.
func (r *FolderRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Folder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, name, parent_folder_id, owner_id, created_at FROM folders WHERE id = ANY($1)`
	var folders []models.Folder
	if err := r.db.SelectContext(ctx, &folders, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find folders by ids: %w", err)
	}
	return folders, nil
}

// ListChildren returns the direct subfolders of a folder.
func (r *FolderRepository) ListChildren(ctx context.Context, parentID string) ([]models.Folder, error) {
	const query = `SELECT id, name, parent_folder_id, owner_id, created_at FROM folders WHERE parent_folder_id = $1 ORDER BY created_at ASC`
	var folders []models.Folder
	if err := r.db.SelectContext(ctx, &folders, query, parentID); err != nil {
		return nil, fmt.Errorf("list child folders: %w", err)
	}
	return folders, nil
}

// ListSubtree returns the folder and every descendant in one recursive
// query, so whole-tree operations cost a single round trip regardless of
// depth.
func (r *FolderRepository) ListSubtree(ctx context.Context, rootID string) ([]models.Folder, error) {
	const query = `
                WITH RECURSIVE subtree AS (
                        SELECT id, name, parent_folder_id, owner_id, created_at
                        FROM folders
                        WHERE id = $1
                        UNION ALL
                        SELECT f.id, f.name, f.parent_folder_id, f.owner_id, f.created_at
                        FROM folders f
                        JOIN subtree s ON f.parent_folder_id = s.id
                )
                SELECT id, name, parent_folder_id, owner_id, created_at FROM subtree`
	var folders []models.Folder
	if err := r.db.SelectContext(ctx, &folders, query, rootID); err != nil {
		return nil, fmt.Errorf("list folder subtree: %w", err)
	}
	return folders, nil
}

// DeleteSubtree removes the metadata of the given folders in dependency
// order inside one transaction: file permissions, file share records, file
// rows, folder permissions, folder share records, folder rows. Physical
// storage cleanup is the caller's concern.
func (r *FolderRepository) DeleteSubtree(ctx context.Context, folderIDs []string) error {
	if len(folderIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	ids := pq.Array(folderIDs)

	statements := []string{
		`DELETE FROM user_file_permissions WHERE file_id IN (SELECT id FROM files WHERE folder_id = ANY($1))`,
		`DELETE FROM shared_items WHERE item_type = 'file' AND item_id IN (SELECT id FROM files WHERE folder_id = ANY($1))`,
		`DELETE FROM files WHERE folder_id = ANY($1)`,
		`DELETE FROM user_folder_permissions WHERE folder_id = ANY($1)`,
		`DELETE FROM shared_items WHERE item_type = 'folder' AND item_id = ANY($1)`,
		`DELETE FROM folders WHERE id = ANY($1)`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, ids); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("delete folder subtree: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit folder delete: %w", err)
	}
	return nil
}
