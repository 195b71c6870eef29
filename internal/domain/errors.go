package domain

import (
	"errors"
	"fmt"
)

// Authentication and authorization errors shared by services and handlers
var (
	ErrInvalidCredentials  = errors.New("incorrect email or password")
	ErrAccountLocked       = errors.New("account is temporarily locked due to too many failed login attempts")
	ErrAccountDisabled     = errors.New("account is disabled")
	ErrRateLimited         = errors.New("too many requests")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrForbidden           = errors.New("insufficient permissions")
	ErrTokenExpiredOneShot = errors.New("token is invalid, expired or already used")
	ErrProviderError       = errors.New("oauth provider request failed")
	ErrInvalidOAuthState   = errors.New("invalid oauth state")
	ErrUnknownProvider     = errors.New("unknown or unconfigured oauth provider")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrCSRFMismatch        = errors.New("csrf token missing or invalid")

	// ErrEmailTaken is a conflict surfaced to clients as a bad request
	ErrEmailTaken = fmt.Errorf("email already registered: %w", ErrConflict)
)
