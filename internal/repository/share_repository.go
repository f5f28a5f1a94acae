package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/drive-api/internal/models"
)

// ShareBatch bundles everything one share call mutates: audit records plus
// the full set of permission rows to overwrite. The batch commits or rolls
// back as a unit, so concurrent shares never leave a partially propagated
// grant visible.
type ShareBatch struct {
	Records      []models.ShareRecord
	FolderGrants []models.FolderPermission
	FileGrants   []models.FilePermission
}

// ShareRepository persists share audit records and executes share batches.
type ShareRepository struct {
	db *sqlx.DB
}

// NewShareRepository creates a new instance of ShareRepository.
func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// Apply executes the whole batch inside one transaction. Share records are
// insert-once keyed by (item_type, item_id, shared_with) so re-sharing
// never duplicates audit rows; permission rows are full overwrites.
func (r *ShareRepository) Apply(ctx context.Context, batch ShareBatch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin share transaction: %w", err)
	}

	const recordQuery = `INSERT INTO shared_items (id, item_type, item_id, shared_by, shared_with, share_type, shared_at)
                VALUES (:id, :item_type, :item_id, :shared_by, :shared_with, :share_type, :shared_at)
                ON CONFLICT (item_type, item_id, shared_with) DO NOTHING`

	for i := range batch.Records {
		if batch.Records[i].ID == "" {
			batch.Records[i].ID = uuid.NewString()
		}
		if batch.Records[i].SharedAt.IsZero() {
			batch.Records[i].SharedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, recordQuery, batch.Records[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert share record: %w", err)
		}
	}

	for i := range batch.FolderGrants {
		if batch.FolderGrants[i].ID == "" {
			batch.FolderGrants[i].ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, upsertFolderPermissionQuery, batch.FolderGrants[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert folder grant: %w", err)
		}
	}

	for i := range batch.FileGrants {
		if batch.FileGrants[i].ID == "" {
			batch.FileGrants[i].ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, upsertFilePermissionQuery, batch.FileGrants[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert file grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit share batch: %w", err)
	}
	return nil
}
