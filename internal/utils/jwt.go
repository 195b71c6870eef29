package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prperemyshlev/interview-auth/internal/domain"
)

// JWTManager manages JWT token operations
type JWTManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// JWTOption configures a JWTManager
type JWTOption func(*JWTManager)

// WithJWTClock overrides the time source used for issuing and verifying tokens
func WithJWTClock(now func() time.Time) JWTOption {
	return func(j *JWTManager) { j.now = now }
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessTokenExpiry, refreshTokenExpiry time.Duration, opts ...JWTOption) *JWTManager {
	j := &JWTManager{
		secret:             []byte(secret),
		accessTokenExpiry:  accessTokenExpiry,
		refreshTokenExpiry: refreshTokenExpiry,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// IssueAccess signs an access token; ttl <= 0 uses the configured access expiry
func (j *JWTManager) IssueAccess(subject string, role domain.Role, permissions []string, ttl time.Duration) (string, *domain.TokenClaims, error) {
	if ttl <= 0 {
		ttl = j.accessTokenExpiry
	}

	claims := j.newClaims(subject, domain.TokenTypeAccess, role, ttl)
	claims.Permissions = permissions

	token, err := j.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return token, claims, nil
}

// IssueRefresh signs a refresh token with the configured refresh expiry
func (j *JWTManager) IssueRefresh(subject string, role domain.Role) (string, *domain.TokenClaims, error) {
	claims := j.newClaims(subject, domain.TokenTypeRefresh, role, j.refreshTokenExpiry)

	token, err := j.sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return token, claims, nil
}

// Decode verifies signature and expiry and returns the claims. Every failure
// is reported as domain.ErrInvalidToken.
func (j *JWTManager) Decode(tokenString string) (*domain.TokenClaims, error) {
	claims := &domain.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return j.secret, nil
		},
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token is expired: %w", domain.ErrInvalidToken)
		}
		return nil, fmt.Errorf("failed to parse token: %w", domain.ErrInvalidToken)
	}

	if !token.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims: %w", domain.ErrInvalidToken)
	}

	return claims, nil
}

// GetAccessTokenExpiry returns the access token expiry duration
func (j *JWTManager) GetAccessTokenExpiry() time.Duration {
	return j.accessTokenExpiry
}

// GetRefreshTokenExpiry returns the refresh token expiry duration
func (j *JWTManager) GetRefreshTokenExpiry() time.Duration {
	return j.refreshTokenExpiry
}

func (j *JWTManager) newClaims(subject string, typ domain.TokenType, role domain.Role, ttl time.Duration) *domain.TokenClaims {
	now := j.now()
	return &domain.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
		Role: role,
	}
}

func (j *JWTManager) sign(claims *domain.TokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}
