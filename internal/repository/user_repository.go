package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/pkg/database"
)

const (
	userColumns = `id, email, password_hash, full_name, role, status, is_superuser,
		is_email_verified, email_verified_at, oauth_provider, oauth_id,
		failed_login_attempts, last_failed_login, locked_until, last_login,
		created_at, updated_at`

	oauthIdentityConstraint = "users_oauth_identity_key"

	userSearchClause = `(email ILIKE $1 OR full_name ILIKE $1)`
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	// Generate UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	user.Email = strings.ToLower(user.Email)
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.Status == "" {
		user.Status = domain.StatusPendingVerification
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FullName,
		string(user.Role),
		string(user.Status),
		user.IsSuperuser,
		user.IsEmailVerified,
		user.EmailVerifiedAt,
		user.OAuthProvider,
		user.OAuthID,
		user.FailedLoginAttempts,
		user.LastFailedLogin,
		user.LockedUntil,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if dup := uniqueViolation(err, user.Email); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with email %s not found: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}

// GetByOAuth retrieves a user by linked provider identity
func (r *userRepository) GetByOAuth(ctx context.Context, provider, oauthID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oauth_provider = $1 AND oauth_id = $2`

	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, provider, oauthID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with %s identity not found: %w", provider, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by oauth identity: %w", err)
	}

	return user, nil
}

// RecordLoginSuccess clears the failure counters and stamps the login time
func (r *userRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1
	`
	return r.exec(ctx, "record login", id, query, id, at)
}

// RecordLoginFailure mirrors the failure counter onto the row. Counter and lock
// only move forward, so a failure written out of order cannot lift a newer lock.
func (r *userRepository) RecordLoginFailure(ctx context.Context, id string, attempts int, at time.Time, lockedUntil *time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = GREATEST(failed_login_attempts, $2),
			last_failed_login = GREATEST(last_failed_login, $3),
			locked_until = GREATEST(locked_until, $4),
			updated_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, "record login failure", id, query, id, attempts, at, lockedUntil)
}

// TouchLastLogin stamps the login time only
func (r *userRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	return r.exec(ctx, "touch last login", id, query, id, at)
}

// SetPassword stores a new password hash and lifts any lock the old one earned
func (r *userRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, failed_login_attempts = 0, locked_until = NULL, updated_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, "set password", id, query, id, passwordHash, time.Now().UTC())
}

// SetRole changes the role and returns the updated user
func (r *userRepository) SetRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	query := `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1 RETURNING ` + userColumns
	return r.updateReturning(ctx, "set role", id, query, id, string(role), time.Now().UTC())
}

// SetStatus changes the status and returns the updated user
func (r *userRepository) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error) {
	query := `UPDATE users SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + userColumns
	return r.updateReturning(ctx, "set status", id, query, id, string(status), time.Now().UTC())
}

// MarkEmailVerified flags the email as verified and activates a pending account
func (r *userRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) (*domain.User, error) {
	query := `
		UPDATE users
		SET is_email_verified = TRUE,
			email_verified_at = COALESCE(email_verified_at, $2),
			status = CASE WHEN status = 'pending_verification' THEN 'active' ELSE status END,
			updated_at = $2
		WHERE id = $1
		RETURNING ` + userColumns
	return r.updateReturning(ctx, "mark email verified", id, query, id, at)
}

// LinkOAuth attaches a provider identity to a user that has none yet. The
// provider vouched for the email, so the account counts as verified afterwards.
// Returns ErrNotFound when the user is gone or already linked.
func (r *userRepository) LinkOAuth(ctx context.Context, id string, link domain.OAuthLink) (*domain.User, error) {
	query := `
		UPDATE users
		SET oauth_provider = $2,
			oauth_id = $3,
			full_name = COALESCE(full_name, $4),
			is_email_verified = TRUE,
			email_verified_at = COALESCE(email_verified_at, $5),
			status = CASE WHEN status = 'pending_verification' THEN 'active' ELSE status END,
			updated_at = $5
		WHERE id = $1 AND oauth_provider IS NULL
		RETURNING ` + userColumns

	fullName := sql.NullString{String: link.FullName, Valid: link.FullName != ""}
	return r.updateReturning(ctx, "link oauth identity", id, query, id, link.Provider, link.OAuthID, fullName, link.At)
}

func (r *userRepository) exec(ctx context.Context, op, id, query string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	result, err := r.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

func (r *userRepository) updateReturning(ctx context.Context, op, id, query string, args ...any) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	user, err := scanUser(r.db.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
		}
		if dup := uniqueViolation(err, ""); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	return user, nil
}

// CountByRole counts users holding the given role
func (r *userRepository) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	var count int
	err := r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(role)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users by role: %w", err)
	}

	return count, nil
}

// List returns a page of users, optionally filtered by email or name
func (r *userRepository) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	filter = filter.Page()

	var (
		rows *sql.Rows
		err  error
	)
	if filter.Search != "" {
		query := `SELECT ` + userColumns + ` FROM users
			WHERE ` + userSearchClause + `
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`
		rows, err = r.db.DB.QueryContext(ctx, query, searchPattern(filter.Search), filter.Limit, filter.Skip)
	} else {
		query := `SELECT ` + userColumns + ` FROM users
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`
		rows, err = r.db.DB.QueryContext(ctx, query, filter.Limit, filter.Skip)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// Count returns how many users match the filter, ignoring paging
func (r *userRepository) Count(ctx context.Context, filter domain.UserFilter) (int, error) {
	var (
		count int
		err   error
	)
	if filter.Search != "" {
		err = r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+userSearchClause, searchPattern(filter.Search)).Scan(&count)
	} else {
		err = r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}

func searchPattern(search string) string {
	return "%" + search + "%"
}

// uniqueViolation maps a unique constraint failure to a repository error, or returns nil
func uniqueViolation(err error, email string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	if pqErr.Constraint == oauthIdentityConstraint {
		return fmt.Errorf("oauth identity already linked to another user: %w", ErrDuplicateOAuthIdentity)
	}
	return fmt.Errorf("user with email %s already exists: %w", email, ErrDuplicateEmail)
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var (
		passwordHash, fullName, oauthProvider, oauthID      sql.NullString
		role, status                                        string
		emailVerifiedAt, lastFailed, lockedUntil, lastLogin sql.NullTime
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&fullName,
		&role,
		&status,
		&user.IsSuperuser,
		&user.IsEmailVerified,
		&emailVerifiedAt,
		&oauthProvider,
		&oauthID,
		&user.FailedLoginAttempts,
		&lastFailed,
		&lockedUntil,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = domain.Role(role)
	user.Status = domain.Status(status)
	user.PasswordHash = nullString(passwordHash)
	user.FullName = nullString(fullName)
	user.OAuthProvider = nullString(oauthProvider)
	user.OAuthID = nullString(oauthID)
	user.EmailVerifiedAt = nullTime(emailVerifiedAt)
	user.LastFailedLogin = nullTime(lastFailed)
	user.LockedUntil = nullTime(lockedUntil)
	user.LastLoginAt = nullTime(lastLogin)

	return user, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
