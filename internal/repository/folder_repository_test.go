package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/drive-api/internal/models"
)

func newFolderRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

func TestFolderRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO folders")).
		WithArgs("folder-1", "Docs", nil, "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	folder := &models.Folder{ID: "folder-1", Name: "Docs", OwnerID: "alice"}
	err := repo.Create(context.Background(), folder)
	require.NoError(t, err)
	assert.False(t, folder.CreatedAt.IsZero())
}

func TestFolderRepositoryCreateUniqueViolationIsPassedThrough(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO folders")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Folder{ID: "folder-1", Name: "Docs", OwnerID: "alice"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestFolderRepositoryFindByIDNoRows(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, parent_folder_id, owner_id, created_at FROM folders WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestFolderRepositoryListSiblingNames(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	rows := sqlmock.NewRows([]string{"name"}).AddRow("X").AddRow("X (1)")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM folders WHERE owner_id = $1 AND parent_folder_id IS NOT DISTINCT FROM $2")).
		WithArgs("alice", nil).
		WillReturnRows(rows)

	names, err := repo.ListSiblingNames(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "X (1)"}, names)
}

func TestFolderRepositoryListSubtree(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "parent_folder_id", "owner_id", "created_at"}).
		AddRow("docs", "Docs", nil, "alice", now).
		AddRow("reports", "Reports", sql.NullString{String: "docs", Valid: true}, "alice", now)

	mock.ExpectQuery("WITH RECURSIVE subtree").
		WithArgs("docs").
		WillReturnRows(rows)

	folders, err := repo.ListSubtree(context.Background(), "docs")
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "docs", folders[0].ID)
	require.NotNil(t, folders[1].ParentFolderID)
	assert.Equal(t, "docs", *folders[1].ParentFolderID)
}

func TestFolderRepositoryDeleteSubtreeRunsInOneTransaction(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_file_permissions")).
		WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shared_items WHERE item_type = 'file'")).
		WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM files")).
		WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_folder_permissions")).
		WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shared_items WHERE item_type = 'folder'")).
		WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM folders")).
		WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.DeleteSubtree(context.Background(), []string{"docs", "reports"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryDeleteSubtreeRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_file_permissions")).
		WithArgs(sqlmock.AnyArg()).WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	err := repo.DeleteSubtree(context.Background(), []string{"docs"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryDeleteSubtreeEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	err := repo.DeleteSubtree(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
