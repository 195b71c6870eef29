package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Login outcomes recorded on auth.login.attempts
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginLocked             = "locked"
	LoginDisabled           = "disabled"
	LoginRateLimited        = "rate_limited"
)

// AuthMetrics holds the security counters of the service. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	loginAttempts metric.Int64Counter
	lockouts      metric.Int64Counter
	revocations   metric.Int64Counter
	kvFallbacks   metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	loginAttempts, err := meter.Int64Counter("auth.login.attempts",
		metric.WithDescription("Login attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create login attempts counter: %w", err)
	}

	lockouts, err := meter.Int64Counter("auth.lockouts",
		metric.WithDescription("Accounts locked after repeated failed logins"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lockouts counter: %w", err)
	}

	revocations, err := meter.Int64Counter("auth.tokens.revoked",
		metric.WithDescription("Tokens added to the revocation registry"))
	if err != nil {
		return nil, fmt.Errorf("failed to create revocations counter: %w", err)
	}

	kvFallbacks, err := meter.Int64Counter("auth.kv.fallbacks",
		metric.WithDescription("Key-value operations served by the in-process fallback"))
	if err != nil {
		return nil, fmt.Errorf("failed to create kv fallback counter: %w", err)
	}

	return &AuthMetrics{
		loginAttempts: loginAttempts,
		lockouts:      lockouts,
		revocations:   revocations,
		kvFallbacks:   kvFallbacks,
	}, nil
}

// LoginAttempt counts one login attempt with its outcome
func (m *AuthMetrics) LoginAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Lockout counts an account lock
func (m *AuthMetrics) Lockout(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockouts.Add(ctx, 1)
}

// TokenRevoked counts a revoked token of the given type
func (m *AuthMetrics) TokenRevoked(ctx context.Context, tokenType string) {
	if m == nil {
		return
	}
	m.revocations.Add(ctx, 1, metric.WithAttributes(attribute.String("type", tokenType)))
}

// KVFallback counts a key-value operation that fell back to process memory
func (m *AuthMetrics) KVFallback(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.kvFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
