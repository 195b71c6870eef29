package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/kvstore"
	"github.com/prperemyshlev/interview-auth/internal/utils"
	"github.com/prperemyshlev/interview-auth/pkg/observability"
)

const revokedKeyPrefix = "revoked:"

// RevocationService records revoked token ids until their natural expiry
type RevocationService struct {
	store   kvstore.Store
	jwt     *utils.JWTManager
	metrics *observability.AuthMetrics
	now     func() time.Time
}

// NewRevocationService creates a new revocation registry
func NewRevocationService(store kvstore.Store, jwt *utils.JWTManager, metrics *observability.AuthMetrics) *RevocationService {
	return &RevocationService{
		store:   store,
		jwt:     jwt,
		metrics: metrics,
		now:     time.Now,
	}
}

// Revoke revokes a raw token. Undecodable or already expired tokens are ignored.
func (s *RevocationService) Revoke(ctx context.Context, token string) error {
	claims, err := s.jwt.Decode(token)
	if err != nil {
		return nil
	}
	return s.RevokeClaims(ctx, claims)
}

// RevokeClaims revokes an already decoded token for the rest of its lifetime
func (s *RevocationService) RevokeClaims(ctx context.Context, claims *domain.TokenClaims) error {
	remaining := claims.Remaining(s.now())
	if remaining <= 0 || claims.ID == "" {
		return nil
	}

	if err := s.store.Set(ctx, revokedKeyPrefix+claims.ID, "1", remaining); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	s.metrics.TokenRevoked(ctx, string(claims.Type))
	return nil
}

// Claim revokes the token unless it is revoked already and reports whether this
// call did it. Expired tokens cannot be claimed.
func (s *RevocationService) Claim(ctx context.Context, claims *domain.TokenClaims) (bool, error) {
	remaining := claims.Remaining(s.now())
	if remaining <= 0 || claims.ID == "" {
		return false, nil
	}

	claimed, err := s.store.SetNX(ctx, revokedKeyPrefix+claims.ID, "1", remaining)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}

	if claimed {
		s.metrics.TokenRevoked(ctx, string(claims.Type))
	}
	return claimed, nil
}

// IsRevoked checks if a token id has been revoked
func (s *RevocationService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := s.store.Exists(ctx, revokedKeyPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}
