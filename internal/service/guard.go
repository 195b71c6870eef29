package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/repository"
	"github.com/prperemyshlev/interview-auth/internal/utils"
)

// Guard resolves the current principal from an access token and evaluates requirements
type Guard struct {
	jwt         *utils.JWTManager
	revocation  *RevocationService
	users       repository.UserRepository
	permissions repository.PermissionRepository
	now         func() time.Time
}

// NewGuard creates a new authorization guard
func NewGuard(
	jwt *utils.JWTManager,
	revocation *RevocationService,
	users repository.UserRepository,
	permissions repository.PermissionRepository,
) *Guard {
	return &Guard{
		jwt:         jwt,
		revocation:  revocation,
		users:       users,
		permissions: permissions,
		now:         time.Now,
	}
}

// CurrentPrincipal decodes an access token and loads the principal it names
func (g *Guard) CurrentPrincipal(ctx context.Context, token string) (*domain.User, *domain.TokenClaims, error) {
	claims, err := g.jwt.Decode(token)
	if err != nil {
		return nil, nil, err
	}

	if claims.Type != domain.TokenTypeAccess || claims.Subject == "" {
		return nil, nil, fmt.Errorf("not an access token: %w", domain.ErrInvalidToken)
	}

	revoked, err := g.revocation.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, fmt.Errorf("token revoked: %w", domain.ErrInvalidToken)
	}

	user, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.ErrUnauthenticated
		}
		return nil, nil, fmt.Errorf("failed to load principal: %w", err)
	}

	if user.IsLocked(g.now()) {
		return nil, nil, domain.ErrAccountLocked
	}
	if user.Status.Disabled() {
		return nil, nil, domain.ErrAccountDisabled
	}

	return user, claims, nil
}

// GuardContext is the input of a requirement. Direct grants load lazily.
type GuardContext struct {
	ctx         context.Context
	User        *domain.User
	Claims      *domain.TokenClaims
	permissions repository.PermissionRepository
	granted     []string
	loaded      bool
}

// NewContext prepares a GuardContext for an authenticated principal
func (g *Guard) NewContext(ctx context.Context, user *domain.User, claims *domain.TokenClaims) *GuardContext {
	return &GuardContext{
		ctx:         ctx,
		User:        user,
		Claims:      claims,
		permissions: g.permissions,
	}
}

// Granted returns the direct grants of the principal
func (gc *GuardContext) Granted() ([]string, error) {
	if gc.loaded {
		return gc.granted, nil
	}

	direct, err := gc.permissions.ListForUser(gc.ctx, gc.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}

	gc.granted = make([]string, 0, len(direct))
	for _, p := range direct {
		gc.granted = append(gc.granted, p.Key())
	}
	gc.loaded = true

	return gc.granted, nil
}

// Requirement is a composable authorization predicate
type Requirement func(gc *GuardContext) error

// Check evaluates requirements in order and returns the first failure
func Check(gc *GuardContext, requirements ...Requirement) error {
	if gc == nil || gc.User == nil {
		return domain.ErrUnauthenticated
	}
	for _, req := range requirements {
		if err := req(gc); err != nil {
			return err
		}
	}
	return nil
}

// RequireRole passes for the exact role or a superuser-equivalent principal
func RequireRole(role domain.Role) Requirement {
	return func(gc *GuardContext) error {
		if gc.User.Role == role || gc.User.IsSuperuserEquivalent() {
			return nil
		}
		return domain.ErrForbidden
	}
}

// RequirePermission passes for a direct grant, the role bundle, or a superuser-equivalent principal
func RequirePermission(resource, action string) Requirement {
	return func(gc *GuardContext) error {
		if gc.User.IsSuperuserEquivalent() {
			return nil
		}

		granted, err := gc.Granted()
		if err != nil {
			return err
		}

		if HasPermission(gc.User, granted, resource, action) {
			return nil
		}
		return domain.ErrForbidden
	}
}
