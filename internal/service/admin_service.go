package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/prperemyshlev/interview-auth/internal/repository"
	"github.com/prperemyshlev/interview-auth/internal/utils"
	"go.uber.org/zap"
)

// adminService implements AdminService interface
type adminService struct {
	users       repository.UserRepository
	permissions repository.PermissionRepository
	hasher      *utils.PasswordHasher
	logger      *zap.Logger
	now         func() time.Time

	// roleMu serializes role changes so two demotions cannot both see a second super admin.
	roleMu sync.Mutex
}

// NewAdminService creates a new admin service
func NewAdminService(users repository.UserRepository, permissions repository.PermissionRepository, hasher *utils.PasswordHasher, logger *zap.Logger) AdminService {
	return &adminService{
		users:       users,
		permissions: permissions,
		hasher:      hasher,
		logger:      logger,
		now:         time.Now,
	}
}

// UpdateRole changes the role of a user, keeping at least one super admin
func (s *adminService) UpdateRole(ctx context.Context, userID string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrValidation)
	}

	s.roleMu.Lock()
	defer s.roleMu.Unlock()

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.Role == domain.RoleSuperAdmin && role != domain.RoleSuperAdmin {
		count, err := s.users.CountByRole(ctx, domain.RoleSuperAdmin)
		if err != nil {
			return nil, err
		}
		if count <= 1 {
			return nil, fmt.Errorf("cannot demote the last super admin: %w", domain.ErrConflict)
		}
	}

	updated, err := s.users.SetRole(ctx, user.ID, role)
	if err != nil {
		return nil, s.writeError("update role", userID, err)
	}

	s.logger.Info("User role changed",
		zap.String("user_id", updated.ID),
		zap.String("from", string(user.Role)),
		zap.String("to", string(role)),
	)

	return updated, nil
}

// UpdateStatus changes the lifecycle status of a user
func (s *adminService) UpdateStatus(ctx context.Context, userID string, status domain.Status) (*domain.User, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrValidation)
	}

	updated, err := s.users.SetStatus(ctx, userID, status)
	if err != nil {
		return nil, s.writeError("update status", userID, err)
	}

	s.logger.Info("User status changed", zap.String("user_id", updated.ID), zap.String("status", string(status)))

	return updated, nil
}

// ListPermissions lists permissions, optionally for one resource
func (s *adminService) ListPermissions(ctx context.Context, resource string) ([]*domain.Permission, error) {
	return s.permissions.List(ctx, strings.TrimSpace(resource))
}

// CreatePermission defines a new permission
func (s *adminService) CreatePermission(ctx context.Context, req *dto.CreatePermissionRequest) (*domain.Permission, error) {
	permission := &domain.Permission{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Resource:    strings.TrimSpace(req.Resource),
		Action:      strings.TrimSpace(req.Action),
	}

	if permission.Name == "" || permission.Resource == "" || permission.Action == "" {
		return nil, fmt.Errorf("name, resource and action are required: %w", domain.ErrValidation)
	}
	if strings.Contains(permission.Resource, ":") || strings.Contains(permission.Action, ":") {
		return nil, fmt.Errorf("resource and action must not contain ':': %w", domain.ErrValidation)
	}

	if err := s.permissions.Create(ctx, permission); err != nil {
		if errors.Is(err, repository.ErrDuplicatePermission) {
			return nil, fmt.Errorf("permission %s already exists: %w", permission.Key(), domain.ErrConflict)
		}
		return nil, err
	}

	return permission, nil
}

// SetUserPermissions replaces the direct grants of a user
func (s *adminService) SetUserPermissions(ctx context.Context, userID string, permissionIDs []string) ([]*domain.Permission, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := slices.Clone(permissionIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	found, err := s.permissions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(found) != len(ids) {
		return nil, fmt.Errorf("unknown permission ids: %w", domain.ErrValidation)
	}

	if err := s.permissions.SetForUser(ctx, user.ID, ids); err != nil {
		if errors.Is(err, repository.ErrUnknownPermission) {
			return nil, fmt.Errorf("unknown permission ids: %w", domain.ErrValidation)
		}
		return nil, err
	}

	return found, nil
}

// ListUsers returns a page of users and how many match the filter overall
func (s *adminService) ListUsers(ctx context.Context, filter domain.UserFilter) (*domain.UserPage, error) {
	filter = filter.Page()

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &domain.UserPage{
		Users: users,
		Total: total,
		Skip:  filter.Skip,
		Limit: filter.Limit,
	}, nil
}

// CreateUser creates an account on behalf of actor. Any role above user
// needs roles:manage, the same permission role changes need.
func (s *adminService) CreateUser(ctx context.Context, actor *domain.User, req *dto.CreateUserRequest) (*domain.User, error) {
	role := domain.Role(req.Role)
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrValidation)
	}

	status := domain.Status(req.Status)
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrValidation)
	}

	if role != domain.RoleUser {
		allowed, err := s.canManageRoles(ctx, actor)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("creating a %s requires roles:manage: %w", role, domain.ErrForbidden)
		}
	}

	user, err := s.createUser(ctx, req.Email, req.Password, req.FullName, role, status, req.EmailVerified)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User created by administrator",
		zap.String("user_id", user.ID),
		zap.String("actor_id", actor.ID),
		zap.String("role", string(role)),
	)

	return user, nil
}

// EnsureSuperAdmin makes the account at email a super admin unless one exists
// already, creating it with password when missing. Reports whether it acted.
func (s *adminService) EnsureSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	s.roleMu.Lock()
	defer s.roleMu.Unlock()

	count, err := s.users.CountByRole(ctx, domain.RoleSuperAdmin)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	existing, err := s.users.GetByEmail(ctx, utils.SanitizeEmail(email))
	switch {
	case err == nil:
		if _, err := s.users.SetRole(ctx, existing.ID, domain.RoleSuperAdmin); err != nil {
			return false, fmt.Errorf("failed to promote bootstrap admin: %w", err)
		}
		if existing.Status != domain.StatusActive {
			if _, err := s.users.SetStatus(ctx, existing.ID, domain.StatusActive); err != nil {
				return false, fmt.Errorf("failed to activate bootstrap admin: %w", err)
			}
		}
		s.logger.Info("Existing user promoted to super admin", zap.String("user_id", existing.ID))
		return true, nil

	case errors.Is(err, repository.ErrNotFound):
		user, err := s.createUser(ctx, email, password, nil, domain.RoleSuperAdmin, domain.StatusActive, true)
		if err != nil {
			return false, fmt.Errorf("failed to create bootstrap admin: %w", err)
		}
		s.logger.Info("Bootstrap super admin created", zap.String("user_id", user.ID))
		return true, nil

	default:
		return false, fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}
}

func (s *adminService) createUser(ctx context.Context, email, password string, fullName *string, role domain.Role, status domain.Status, verified bool) (*domain.User, error) {
	email = utils.SanitizeEmail(email)
	if !utils.ValidateEmail(email) {
		return nil, fmt.Errorf("invalid email format: %w", domain.ErrValidation)
	}
	if err := utils.CheckPassword(password); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:           email,
		PasswordHash:    &hash,
		FullName:        fullName,
		Role:            role,
		Status:          status,
		IsEmailVerified: verified,
	}
	if verified {
		now := s.now().UTC()
		user.EmailVerifiedAt = &now
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (s *adminService) canManageRoles(ctx context.Context, actor *domain.User) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.IsSuperuserEquivalent() {
		return true, nil
	}

	direct, err := s.permissions.ListForUser(ctx, actor.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load permissions: %w", err)
	}

	granted := make([]string, 0, len(direct))
	for _, p := range direct {
		granted = append(granted, p.Key())
	}
	return HasPermission(actor, granted, "roles", "manage"), nil
}

// GetUser returns a user with its effective permissions
func (s *adminService) GetUser(ctx context.Context, userID string) (*domain.User, []string, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	direct, err := s.permissions.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, EffectivePermissions(user, direct), nil
}

func (s *adminService) writeError(op, userID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (s *adminService) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}
