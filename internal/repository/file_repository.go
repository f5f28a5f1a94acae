package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/drive-api/internal/models"
)

// FileRepository provides database access for file metadata.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository creates a new instance of FileRepository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a file row referencing an already stored object.
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	const query = `INSERT INTO files (id, filename, storage_key, folder_id, uploaded_by_id, uploaded_at, content_type, size_bytes)
                VALUES (:id, :filename, :storage_key, :folder_id, :uploaded_by_id, :uploaded_at, :content_type, :size_bytes)`
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// FindByID returns a file by identifier.
func (r *FileRepository) FindByID(ctx context.Context, id string) (*models.File, error) {
	const query = `SELECT id, filename, storage_key, folder_id, uploaded_by_id, uploaded_at, content_type, size_bytes FROM files WHERE id = $1 LIMIT 1`
	var file models.File
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find file by id: %w", err)
	}
	return &file, nil
}

// ListByFolder returns all files directly inside one folder.
func (r *FileRepository) ListByFolder(ctx context.Context, folderID string) ([]models.File, error) {
	const query = `SELECT id, filename, storage_key, folder_id, uploaded_by_id, uploaded_at, content_type, size_bytes FROM files WHERE folder_id = $1 ORDER BY uploaded_at ASC`
	var files []models.File
	if err := r.db.SelectContext(ctx, &files, query, folderID); err != nil {
		return nil, fmt.Errorf("list files by folder: %w", err)
	}
	return files, nil
}

// FindByIDs returns the files matching the given identifiers in one query.
func (r *FileRepository) FindByIDs(ctx context.Context, ids []string) ([]models.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, filename, storage_key, folder_id, uploaded_by_id, uploaded_at, content_type, size_bytes FROM files WHERE id = ANY($1)`
	var files []models.File
	if err := r.db.SelectContext(ctx, &files, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find files by ids: %w", err)
	}
	return files, nil
}

// ListByFolders returns all files inside any of the given folders in one
// query, used by subtree operations.
func (r *FileRepository) ListByFolders(ctx context.Context, folderIDs []string) ([]models.File, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, filename, storage_key, folder_id, uploaded_by_id, uploaded_at, content_type, size_bytes FROM files WHERE folder_id = ANY($1) ORDER BY uploaded_at ASC`
	var files []models.File
	if err := r.db.SelectContext(ctx, &files, query, pq.Array(folderIDs)); err != nil {
		return nil, fmt.Errorf("list files by folders: %w", err)
	}
	return files, nil
}

// DeleteWithPermissions removes one file's permission rows, share records
// and metadata row in a single transaction.
func (r *FileRepository) DeleteWithPermissions(ctx context.Context, fileID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin file delete: %w", err)
	}

	statements := []string{
		`DELETE FROM user_file_permissions WHERE file_id = $1`,
		`DELETE FROM shared_items WHERE item_type = 'file' AND item_id = $1`,
		`DELETE FROM files WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, fileID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("delete file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit file delete: %w", err)
	}
	return nil
}
