package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumnNames = []string{
	"id", "email", "password_hash", "full_name", "role", "status", "is_superuser",
	"is_email_verified", "email_verified_at", "oauth_provider", "oauth_id",
	"failed_login_attempts", "last_failed_login", "locked_until", "last_login",
	"created_at", "updated_at",
}

const testUserID = "4f1c2a7e-8b0d-4c55-9f33-0a1b2c3d4e5f"

func newMockDB(t *testing.T) (*database.Postgres, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &database.Postgres{DB: db}, mock
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	locked := now.Add(10 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumnNames).AddRow(
			testUserID, "alice@example.com", "$2a$hash", nil, "admin", "active", false,
			true, now, nil, nil,
			3, now, locked, nil,
			now, now,
		))

	user, err := repo.GetByEmail(context.Background(), "Alice@Example.com")
	require.NoError(t, err)

	assert.Equal(t, testUserID, user.ID)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.Equal(t, domain.StatusActive, user.Status)
	require.NotNil(t, user.PasswordHash)
	assert.Equal(t, "$2a$hash", *user.PasswordHash)
	assert.Nil(t, user.FullName)
	assert.Equal(t, 3, user.FailedLoginAttempts)
	require.NotNil(t, user.LockedUntil)
	assert.True(t, user.IsLocked(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByIDRejectsMalformedID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByOAuth(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE oauth_provider = $1 AND oauth_id = $2")).
		WithArgs("github", "12345").
		WillReturnRows(sqlmock.NewRows(userColumnNames).AddRow(
			testUserID, "bob@example.com", nil, "Bob", "user", "active", false,
			true, now, "github", "12345",
			0, nil, nil, now,
			now, now,
		))

	user, err := repo.GetByOAuth(context.Background(), "github", "12345")
	require.NoError(t, err)

	assert.False(t, user.HasPassword())
	require.NotNil(t, user.OAuthProvider)
	assert.Equal(t, "github", *user.OAuthProvider)
	require.NotNil(t, user.FullName)
	assert.Equal(t, "Bob", *user.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateDefaultsAndLowercases(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	hash := "$2a$hash"
	user := &domain.User{Email: "New@Example.com", PasswordHash: &hash}

	args := make([]driver.Value, len(userColumnNames))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[1] = "new@example.com"
	args[4] = "user"
	args[5] = "pending_verification"

	mock.ExpectExec("INSERT INTO users").WithArgs(args...).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, domain.StatusPendingVerification, user.Status)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateDuplicates(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		want       error
	}{
		{name: "email", constraint: "users_email_key", want: ErrDuplicateEmail},
		{name: "oauth identity", constraint: oauthIdentityConstraint, want: ErrDuplicateOAuthIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewUserRepository(db)

			mock.ExpectExec("INSERT INTO users").
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			err := repo.Create(context.Background(), &domain.User{Email: "dup@example.com"})
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_WriteNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("UPDATE users").WillReturnError(sql.ErrNoRows)

	err := repo.TouchLastLogin(context.Background(), testUserID, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.SetStatus(context.Background(), testUserID, domain.StatusSuspended)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.SetPassword(context.Background(), "not-a-uuid", "$2a$hash")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CountByRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1")).
		WithArgs("super_admin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountByRole(context.Background(), domain.RoleSuperAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ListWithSearch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(userSearchClause)).
		WithArgs("%ali%", domain.MaxUserPageSize, 10).
		WillReturnRows(sqlmock.NewRows(userColumnNames).AddRow(
			testUserID, "alice@example.com", nil, "Alice", "user", "active", false,
			false, nil, nil, nil,
			0, nil, nil, nil,
			now, now,
		))

	users, err := repo.List(context.Background(), domain.UserFilter{Search: "ali", Skip: 10, Limit: 1000})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice@example.com", users[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Count(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE " + userSearchClause)).
		WithArgs("%ali%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(57))

	count, err := repo.Count(context.Background(), domain.UserFilter{Search: "ali", Skip: 40, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	count, err = repo.Count(context.Background(), domain.UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, 57, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// newRecordingMockDB keeps every statement sent so tests can inspect what a write touches
func newRecordingMockDB(t *testing.T) (*database.Postgres, sqlmock.Sqlmock, *[]string) {
	t.Helper()

	var statements []string
	matcher := sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
		statements = append(statements, actualSQL)
		return sqlmock.QueryMatcherRegexp.Match(expectedSQL, actualSQL)
	})

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &database.Postgres{DB: db}, mock, &statements
}

// setClause returns the column assignments of an UPDATE statement
func setClause(t *testing.T, statement string) string {
	t.Helper()

	set := strings.Index(statement, "SET")
	where := strings.Index(statement, "WHERE")
	require.True(t, set >= 0 && where > set, "not an UPDATE: %s", statement)
	return statement[set:where]
}

func returnedUser(role, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(userColumnNames).AddRow(
		testUserID, "alice@example.com", "$2a$hash", "Alice", role, status, false,
		true, now, "github", "12345",
		0, nil, nil, now,
		now, now,
	)
}

func TestUserRepository_TargetedWrites(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lockedUntil := at.Add(15 * time.Minute)

	tests := []struct {
		name      string
		expect    func(mock sqlmock.Sqlmock)
		write     func(repo UserRepository) error
		assigns   []string
		untouched []string
	}{
		{
			name: "login success",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE users").WithArgs(testUserID, at).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			write: func(repo UserRepository) error {
				return repo.RecordLoginSuccess(context.Background(), testUserID, at)
			},
			assigns:   []string{"failed_login_attempts = 0", "locked_until = NULL", "last_login = $2"},
			untouched: []string{"role", "status", "password_hash", "oauth_provider"},
		},
		{
			name: "login failure",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE users").WithArgs(testUserID, 5, at, lockedUntil).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			write: func(repo UserRepository) error {
				return repo.RecordLoginFailure(context.Background(), testUserID, 5, at, &lockedUntil)
			},
			assigns:   []string{"GREATEST(failed_login_attempts, $2)", "GREATEST(locked_until, $4)"},
			untouched: []string{"role", "status", "password_hash", "last_login ="},
		},
		{
			name: "last login",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE users").WithArgs(testUserID, at).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			write: func(repo UserRepository) error {
				return repo.TouchLastLogin(context.Background(), testUserID, at)
			},
			assigns:   []string{"last_login = $2"},
			untouched: []string{"role", "status", "locked_until", "failed_login_attempts"},
		},
		{
			name: "password",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE users").WithArgs(testUserID, "$2a$new", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			write: func(repo UserRepository) error {
				return repo.SetPassword(context.Background(), testUserID, "$2a$new")
			},
			assigns:   []string{"password_hash = $2", "locked_until = NULL"},
			untouched: []string{"role", "status", "last_login"},
		},
		{
			name: "role",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE users").WithArgs(testUserID, "admin", sqlmock.AnyArg()).WillReturnRows(returnedUser("admin", "active"))
			},
			write: func(repo UserRepository) error {
				_, err := repo.SetRole(context.Background(), testUserID, domain.RoleAdmin)
				return err
			},
			assigns:   []string{"role = $2"},
			untouched: []string{"status", "password_hash", "last_login", "locked_until"},
		},
		{
			name: "status",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE users").WithArgs(testUserID, "suspended", sqlmock.AnyArg()).WillReturnRows(returnedUser("user", "suspended"))
			},
			write: func(repo UserRepository) error {
				_, err := repo.SetStatus(context.Background(), testUserID, domain.StatusSuspended)
				return err
			},
			assigns:   []string{"status = $2"},
			untouched: []string{"role", "password_hash", "last_login", "locked_until"},
		},
		{
			name: "email verified",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE users").WithArgs(testUserID, at).WillReturnRows(returnedUser("user", "active"))
			},
			write: func(repo UserRepository) error {
				_, err := repo.MarkEmailVerified(context.Background(), testUserID, at)
				return err
			},
			assigns:   []string{"is_email_verified = TRUE", "WHEN status = 'pending_verification' THEN 'active'"},
			untouched: []string{"role", "password_hash", "last_login", "locked_until"},
		},
		{
			name: "oauth link",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE users").WithArgs(testUserID, "github", "12345", "Alice", at).WillReturnRows(returnedUser("user", "active"))
			},
			write: func(repo UserRepository) error {
				_, err := repo.LinkOAuth(context.Background(), testUserID, domain.OAuthLink{
					Provider: "github", OAuthID: "12345", FullName: "Alice", At: at,
				})
				return err
			},
			assigns:   []string{"oauth_provider = $2", "oauth_id = $3", "COALESCE(full_name, $4)"},
			untouched: []string{"role", "password_hash", "last_login", "locked_until"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, statements := newRecordingMockDB(t)
			repo := NewUserRepository(db)

			tt.expect(mock)
			require.NoError(t, tt.write(repo))
			require.NoError(t, mock.ExpectationsWereMet())
			require.NotEmpty(t, *statements)

			set := setClause(t, (*statements)[len(*statements)-1])
			for _, assign := range tt.assigns {
				assert.Contains(t, set, assign)
			}
			for _, column := range tt.untouched {
				assert.NotContains(t, set, column)
			}
		})
	}
}

func TestUserRepository_LinkOAuthSkipsLinkedAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND oauth_provider IS NULL")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LinkOAuth(context.Background(), testUserID, domain.OAuthLink{Provider: "google", OAuthID: "g-1", At: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_LinkOAuthIdentityTaken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("UPDATE users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: oauthIdentityConstraint})

	_, err := repo.LinkOAuth(context.Background(), testUserID, domain.OAuthLink{Provider: "google", OAuthID: "g-1", At: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateOAuthIdentity)
	assert.NoError(t, mock.ExpectationsWereMet())
}
