package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/prperemyshlev/interview-auth/internal/repository"
	"github.com/prperemyshlev/interview-auth/internal/utils"
	"github.com/prperemyshlev/interview-auth/pkg/observability"
	"go.uber.org/zap"
)

const loginRateScope = "login"

// AuthConfig holds login throttling and lockout policy
type AuthConfig struct {
	LoginRateLimit  int
	LoginRateWindow time.Duration
	MaxFailedLogins int
	LockoutDuration time.Duration
}

// authService implements AuthService interface
type authService struct {
	users       repository.UserRepository
	jwt         *utils.JWTManager
	hasher      *utils.PasswordHasher
	revocation  *RevocationService
	rateLimiter *RateLimiter
	lockout     *LockoutTracker
	csrf        *CSRFService
	recovery    *RecoveryService
	sessions    *sessionIssuer
	metrics     *observability.AuthMetrics
	logger      *zap.Logger
	cfg         AuthConfig
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(
	users repository.UserRepository,
	permissions repository.PermissionRepository,
	jwt *utils.JWTManager,
	hasher *utils.PasswordHasher,
	revocation *RevocationService,
	rateLimiter *RateLimiter,
	lockout *LockoutTracker,
	csrf *CSRFService,
	recovery *RecoveryService,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
	cfg AuthConfig,
) AuthService {
	return &authService{
		users:       users,
		jwt:         jwt,
		hasher:      hasher,
		revocation:  revocation,
		rateLimiter: rateLimiter,
		lockout:     lockout,
		csrf:        csrf,
		recovery:    recovery,
		sessions:    newSessionIssuer(jwt, permissions, csrf),
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Register registers a new user
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*AuthResult, error) {
	email := utils.SanitizeEmail(req.Email)

	// Validate email format
	if !utils.ValidateEmail(email) {
		return nil, fmt.Errorf("invalid email format: %w", domain.ErrValidation)
	}

	// Validate password
	if err := utils.CheckPassword(req.Password); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	// Check if user already exists
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil, domain.ErrEmailTaken
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: &passwordHash,
		FullName:     req.FullName,
		Role:         domain.RoleUser,
		Status:       domain.StatusPendingVerification,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.recovery.SendVerification(ctx, user); err != nil {
		s.logger.Warn("Failed to issue verification token on registration", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.sessions.issue(ctx, user)
}

// Login authenticates a user: rate limit, lockout check, credential check
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, clientIP string) (*AuthResult, error) {
	allowed, err := s.rateLimiter.CheckAndIncrement(ctx, RateLimitKey(loginRateScope, clientIP), s.cfg.LoginRateLimit, s.cfg.LoginRateWindow)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.metrics.LoginAttempt(ctx, observability.LoginRateLimited)
		return nil, domain.ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, utils.SanitizeEmail(req.Identifier()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Keep timing close to a real password check.
			s.hasher.Verify(req.Password, s.dummyPasswordHash())
			s.metrics.LoginAttempt(ctx, observability.LoginInvalidCredentials)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		s.metrics.LoginAttempt(ctx, observability.LoginLocked)
		return nil, domain.ErrAccountLocked
	}

	if !user.HasPassword() || !s.hasher.Verify(req.Password, *user.PasswordHash) {
		return nil, s.registerFailure(ctx, user, now)
	}

	if user.Status.Disabled() {
		s.metrics.LoginAttempt(ctx, observability.LoginDisabled)
		return nil, domain.ErrAccountDisabled
	}

	if err := s.lockout.Reset(ctx, user.ID); err != nil {
		s.logger.Warn("Failed to reset login failures", zap.String("user_id", user.ID), zap.Error(err))
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	result, err := s.sessions.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.LoginAttempt(ctx, observability.LoginSuccess)
	return result, nil
}

// registerFailure counts a failed password and arms the lock at the threshold
func (s *authService) registerFailure(ctx context.Context, user *domain.User, now time.Time) error {
	s.metrics.LoginAttempt(ctx, observability.LoginInvalidCredentials)

	count, err := s.lockout.RegisterFailure(ctx, user.ID)
	if err != nil {
		return err
	}

	var lockedUntil *time.Time
	if count >= s.cfg.MaxFailedLogins {
		until := now.Add(s.cfg.LockoutDuration)
		lockedUntil = &until
		s.metrics.Lockout(ctx)
		s.logger.Warn("Account locked after failed logins",
			zap.String("user_id", user.ID),
			zap.Int("failed_attempts", count),
			zap.Time("locked_until", until),
		)
	}

	if err := s.users.RecordLoginFailure(ctx, user.ID, count, now, lockedUntil); err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}

	return domain.ErrInvalidCredentials
}

// Refresh rotates a refresh token into a new session
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, domain.ErrUnauthenticated
	}

	claims, err := s.jwt.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != domain.TokenTypeRefresh {
		return nil, fmt.Errorf("not a refresh token: %w", domain.ErrInvalidToken)
	}

	revoked, err := s.revocation.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		s.logger.Warn("Revoked refresh token presented", zap.String("user_id", claims.Subject), zap.String("jti", claims.ID))
		return nil, fmt.Errorf("refresh token revoked: %w", domain.ErrInvalidToken)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		return nil, domain.ErrAccountLocked
	}
	if user.Status.Disabled() {
		return nil, domain.ErrAccountDisabled
	}

	result, err := s.sessions.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	// The old token is claimed only once the new pair exists. Of two requests
	// presenting the same token exactly one wins the claim.
	claimed, err := s.revocation.Claim(ctx, claims)
	if err != nil {
		s.discard(ctx, result)
		return nil, err
	}
	if !claimed {
		s.discard(ctx, result)
		s.logger.Warn("Refresh token replayed", zap.String("user_id", claims.Subject), zap.String("jti", claims.ID))
		return nil, fmt.Errorf("refresh token already used: %w", domain.ErrInvalidToken)
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to update last login on refresh", zap.String("user_id", user.ID), zap.Error(err))
	}

	return result, nil
}

// discard invalidates a freshly minted pair that is never handed out
func (s *authService) discard(ctx context.Context, result *AuthResult) {
	if err := s.csrf.Drop(ctx, result.AccessClaims.ID); err != nil {
		s.logger.Warn("Failed to drop csrf token of discarded session", zap.Error(err))
	}
	if err := s.revocation.RevokeClaims(ctx, result.AccessClaims); err != nil {
		s.logger.Warn("Failed to revoke discarded access token", zap.Error(err))
	}
	if err := s.revocation.Revoke(ctx, result.RefreshToken); err != nil {
		s.logger.Warn("Failed to revoke discarded refresh token", zap.Error(err))
	}
}

// Logout revokes the presented tokens and drops the CSRF binding
func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		if claims, err := s.jwt.Decode(accessToken); err == nil {
			if err := s.revocation.RevokeClaims(ctx, claims); err != nil {
				s.logger.Error("Failed to revoke access token on logout", zap.Error(err))
			}
			if err := s.csrf.Drop(ctx, claims.ID); err != nil {
				s.logger.Warn("Failed to drop csrf token on logout", zap.Error(err))
			}
		}
	}

	if refreshToken != "" {
		if err := s.revocation.Revoke(ctx, refreshToken); err != nil {
			s.logger.Error("Failed to revoke refresh token on logout", zap.Error(err))
		}
	}

	return nil
}

// Me returns the current user with effective permissions
func (s *authService) Me(ctx context.Context, user *domain.User) (*dto.UserResponse, error) {
	permissions, err := s.sessions.effectivePermissions(ctx, user)
	if err != nil {
		return nil, err
	}

	response := dto.NewUserResponse(user, permissions)
	return &response, nil
}

// ChangePassword verifies the current password and stores a new one
func (s *authService) ChangePassword(ctx context.Context, user *domain.User, req *dto.ChangePasswordRequest) error {
	if !user.HasPassword() || !s.hasher.Verify(req.CurrentPassword, *user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	if err := utils.CheckPassword(req.NewPassword); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = &hash

	return nil
}

// IssueCSRFToken binds a fresh CSRF token to the presented access token
func (s *authService) IssueCSRFToken(ctx context.Context, access *domain.TokenClaims) (string, error) {
	return s.csrf.Issue(ctx, access)
}

func (s *authService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("dummy-password-for-timing")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
