package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/pkg/database"
)

const permissionColumns = `p.id, p.name, p.description, p.resource, p.action, p.created_at`

// permissionRepository implements PermissionRepository interface
type permissionRepository struct {
	db *database.Postgres
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *database.Postgres) PermissionRepository {
	return &permissionRepository{db: db}
}

// Create creates a new permission
func (r *permissionRepository) Create(ctx context.Context, permission *domain.Permission) error {
	query := `
		INSERT INTO permissions (id, name, description, resource, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if permission.ID == "" {
		permission.ID = uuid.New().String()
	}
	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		permission.ID,
		permission.Name,
		permission.Description,
		permission.Resource,
		permission.Action,
		permission.CreatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return fmt.Errorf("permission %s (%s) already exists: %w", permission.Name, permission.Key(), ErrDuplicatePermission)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}

	return nil
}

// GetByIDs returns the permissions matching ids; unknown ids are skipped
func (r *permissionRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Permission, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	query := `SELECT ` + permissionColumns + ` FROM permissions p WHERE p.id = ANY($1) ORDER BY p.name`

	rows, err := r.db.DB.QueryContext(ctx, query, pq.Array(valid))
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions by ids: %w", err)
	}

	return collectPermissions(rows)
}

// List returns all permissions, optionally only those for one resource
func (r *permissionRepository) List(ctx context.Context, resource string) ([]*domain.Permission, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if resource != "" {
		query := `SELECT ` + permissionColumns + ` FROM permissions p WHERE p.resource = $1 ORDER BY p.resource, p.action`
		rows, err = r.db.DB.QueryContext(ctx, query, resource)
	} else {
		query := `SELECT ` + permissionColumns + ` FROM permissions p ORDER BY p.resource, p.action`
		rows, err = r.db.DB.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	return collectPermissions(rows)
}

// ListForUser returns the permissions granted directly to a user
func (r *permissionRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1
		ORDER BY p.resource, p.action
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user permissions: %w", err)
	}

	return collectPermissions(rows)
}

// SetForUser replaces the direct grants of a user in one transaction
func (r *permissionRepository) SetForUser(ctx context.Context, userID string, permissionIDs []string) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear user permissions: %w", err)
	}

	if len(permissionIDs) > 0 {
		query := `
			INSERT INTO user_permissions (user_id, permission_id)
			SELECT $1, unnest($2::uuid[])
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, query, userID, pq.Array(permissionIDs)); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
				return fmt.Errorf("failed to grant permissions: %w", ErrUnknownPermission)
			}
			return fmt.Errorf("failed to grant permissions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user permissions: %w", err)
	}

	return nil
}

func collectPermissions(rows *sql.Rows) ([]*domain.Permission, error) {
	defer rows.Close()

	var permissions []*domain.Permission
	for rows.Next() {
		p := &domain.Permission{}
		var description sql.NullString

		if err := rows.Scan(&p.ID, &p.Name, &description, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Description = nullString(description)

		permissions = append(permissions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}

	return permissions, nil
}
