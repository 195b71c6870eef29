package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims represents JWT token claims
type TokenClaims struct {
	jwt.RegisteredClaims
	Type        TokenType `json:"type"`
	Role        Role      `json:"role,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// Remaining returns how long the token stays valid after now
func (tc *TokenClaims) Remaining(now time.Time) time.Duration {
	if tc.ExpiresAt == nil {
		return 0
	}
	return tc.ExpiresAt.Sub(now)
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
