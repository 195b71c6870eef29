package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
)

// UserRepository defines methods for user operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByOAuth(ctx context.Context, provider, oauthID string) (*domain.User, error)
	CountByRole(ctx context.Context, role domain.Role) (int, error)
	List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error)
	Count(ctx context.Context, filter domain.UserFilter) (int, error)

	// Writes touch only their own columns so concurrent requests never
	// overwrite each other with stale copies of the row.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	RecordLoginFailure(ctx context.Context, id string, attempts int, at time.Time, lockedUntil *time.Time) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	SetRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	SetStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, id string, at time.Time) (*domain.User, error)
	LinkOAuth(ctx context.Context, id string, link domain.OAuthLink) (*domain.User, error)
}

// PermissionRepository defines methods for permission operations
type PermissionRepository interface {
	Create(ctx context.Context, permission *domain.Permission) error
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Permission, error)
	List(ctx context.Context, resource string) ([]*domain.Permission, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Permission, error)
	SetForUser(ctx context.Context, userID string, permissionIDs []string) error
}
