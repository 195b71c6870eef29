package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/kvstore"
	"github.com/prperemyshlev/interview-auth/internal/utils"
)

const csrfKeyPrefix = "csrf:"

// CSRFService binds CSRF tokens to access token ids
type CSRFService struct {
	store kvstore.Store
	now   func() time.Time
}

// NewCSRFService creates a new CSRF service
func NewCSRFService(store kvstore.Store) *CSRFService {
	return &CSRFService{store: store, now: time.Now}
}

// Issue creates a CSRF token bound to the access token for its remaining lifetime
func (s *CSRFService) Issue(ctx context.Context, access *domain.TokenClaims) (string, error) {
	ttl := access.Remaining(s.now())
	if ttl <= 0 {
		return "", domain.ErrInvalidToken
	}

	token, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}

	if err := s.store.Set(ctx, csrfKeyPrefix+access.ID, token, ttl); err != nil {
		return "", fmt.Errorf("failed to bind csrf token: %w", err)
	}

	return token, nil
}

// Validate checks presented against the token bound to the access token id
func (s *CSRFService) Validate(ctx context.Context, accessJTI, presented string) error {
	if presented == "" {
		return domain.ErrCSRFMismatch
	}

	expected, err := s.store.Get(ctx, csrfKeyPrefix+accessJTI)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return domain.ErrCSRFMismatch
		}
		return fmt.Errorf("failed to load csrf token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		return domain.ErrCSRFMismatch
	}

	return nil
}

// Drop removes the binding of an access token id
func (s *CSRFService) Drop(ctx context.Context, accessJTI string) error {
	if err := s.store.Delete(ctx, csrfKeyPrefix+accessJTI); err != nil {
		return fmt.Errorf("failed to drop csrf token: %w", err)
	}
	return nil
}
