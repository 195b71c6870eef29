package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/prperemyshlev/interview-auth/internal/repository"
	"github.com/prperemyshlev/interview-auth/internal/utils"
)

// AuthResult contains the auth response and what the transport needs to set cookies
type AuthResult struct {
	AuthResponse     *dto.AuthResponse
	AccessToken      string
	RefreshToken     string
	CSRFToken        string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
	AccessClaims     *domain.TokenClaims
}

// sessionIssuer mints the token pair and CSRF binding for an authenticated principal
type sessionIssuer struct {
	jwt         *utils.JWTManager
	permissions repository.PermissionRepository
	csrf        *CSRFService
}

func newSessionIssuer(jwt *utils.JWTManager, permissions repository.PermissionRepository, csrf *CSRFService) *sessionIssuer {
	return &sessionIssuer{jwt: jwt, permissions: permissions, csrf: csrf}
}

// effectivePermissions computes the role bundle plus direct grants of user
func (s *sessionIssuer) effectivePermissions(ctx context.Context, user *domain.User) ([]string, error) {
	direct, err := s.permissions.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	return EffectivePermissions(user, direct), nil
}

// issue generates access and refresh tokens and binds a CSRF token to the access token
func (s *sessionIssuer) issue(ctx context.Context, user *domain.User) (*AuthResult, error) {
	permissions, err := s.effectivePermissions(ctx, user)
	if err != nil {
		return nil, err
	}

	accessToken, accessClaims, err := s.jwt.IssueAccess(user.ID, user.Role, permissions, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, _, err := s.jwt.IssueRefresh(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	csrfToken, err := s.csrf.Issue(ctx, accessClaims)
	if err != nil {
		return nil, err
	}

	accessTTL := s.jwt.GetAccessTokenExpiry()

	return &AuthResult{
		AuthResponse: &dto.AuthResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    int(accessTTL.Seconds()),
			CSRFToken:    csrfToken,
			User:         dto.NewUserResponse(user, permissions),
		},
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		CSRFToken:        csrfToken,
		AccessExpiresIn:  accessTTL,
		RefreshExpiresIn: s.jwt.GetRefreshTokenExpiry(),
		AccessClaims:     accessClaims,
	}, nil
}
