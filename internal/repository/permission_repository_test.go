package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/drive-api/internal/models"
)

func newPermissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestPermissionRepositoryUpsertFolderPermission(t *testing.T) {
	db, mock, cleanup := newPermissionRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_folder_permissions")).
		WithArgs(sqlmock.AnyArg(), "bob", "docs", true, true, false, false, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	perm := &models.FolderPermission{UserID: "bob", FolderID: "docs", CanView: true, CanEdit: true}
	err := repo.UpsertFolderPermission(context.Background(), perm)
	require.NoError(t, err)
	assert.NotEmpty(t, perm.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepositoryUpsertFilePermission(t *testing.T) {
	db, mock, cleanup := newPermissionRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_file_permissions")).
		WithArgs(sqlmock.AnyArg(), "bob", "q1", true, false, false, true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	perm := &models.FilePermission{UserID: "bob", FileID: "q1", CanView: true, CanShare: true}
	err := repo.UpsertFilePermission(context.Background(), perm)
	require.NoError(t, err)
	assert.NotEmpty(t, perm.ID)
}

func TestPermissionRepositoryGetFolderPermissionNoRows(t *testing.T) {
	db, mock, cleanup := newPermissionRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_folder_permissions WHERE user_id = $1 AND folder_id = $2")).
		WithArgs("bob", "docs").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetFolderPermission(context.Background(), "bob", "docs")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestPermissionRepositoryListFolderPermissionsByUser(t *testing.T) {
	db, mock, cleanup := newPermissionRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "folder_id", "can_view", "can_edit", "can_delete", "can_create", "can_share"}).
		AddRow("p1", "bob", "docs", true, false, false, false, false).
		AddRow("p2", "bob", "reports", true, true, false, false, false)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_folder_permissions WHERE user_id = $1")).
		WithArgs("bob").
		WillReturnRows(rows)

	perms, err := repo.ListFolderPermissionsByUser(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "docs", perms[0].FolderID)
	assert.True(t, perms[1].CanEdit)
}
