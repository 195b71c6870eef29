package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var permissionColumnNames = []string{"id", "name", "description", "resource", "action", "created_at"}

const testPermissionID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"

func TestPermissionRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db)

	mock.ExpectExec("INSERT INTO permissions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "permissions_name_key"})

	err := repo.Create(context.Background(), &domain.Permission{Name: "users_read", Resource: "users", Action: "read"})
	assert.ErrorIs(t, err, ErrDuplicatePermission)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_ListByResource(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.resource = $1")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows(permissionColumnNames).
			AddRow(testPermissionID, "users_read", "Read users", "users", "read", now).
			AddRow("1b2c3d4e-5f60-4718-9a0b-1c2d3e4f5a6b", "users_write", nil, "users", "write", now))

	permissions, err := repo.List(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, permissions, 2)
	assert.Equal(t, "users:read", permissions[0].Key())
	assert.Nil(t, permissions[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_GetByIDsSkipsMalformed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db)

	permissions, err := repo.GetByIDs(context.Background(), []string{"bogus"})
	require.NoError(t, err)
	assert.Empty(t, permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_ListForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db)

	mock.ExpectQuery("JOIN user_permissions up").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(permissionColumnNames).
			AddRow(testPermissionID, "interviews_manage", nil, "interviews", "manage", time.Now()))

	permissions, err := repo.ListForUser(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, permissions, 1)
	assert.Equal(t, "interviews:manage", permissions[0].Key())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_SetForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_permissions WHERE user_id = $1")).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO user_permissions").
		WithArgs(testUserID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetForUser(context.Background(), testUserID, []string{testPermissionID}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_SetForUserUnknownPermission(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_permissions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO user_permissions").WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	err := repo.SetForUser(context.Background(), testUserID, []string{testPermissionID})
	assert.ErrorIs(t, err, ErrUnknownPermission)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_ClearForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_permissions").WithArgs(testUserID).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.SetForUser(context.Background(), testUserID, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
