package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/kvstore"
	"github.com/prperemyshlev/interview-auth/internal/repository"
	"github.com/prperemyshlev/interview-auth/internal/utils"
	"github.com/prperemyshlev/interview-auth/pkg/observability"
	"golang.org/x/oauth2"
	"go.uber.org/zap"
)

const oauthStateKeyPrefix = "oauthstate:"

// OAuthConfig holds the federated login policy
type OAuthConfig struct {
	AllowedOrigins []string
	StateTTL       time.Duration
	HTTPTimeout    time.Duration
}

type oauthState struct {
	Provider    string    `json:"provider"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// oauthService implements OAuthService interface
type oauthService struct {
	providers map[string]*Provider
	store     kvstore.Store
	users     repository.UserRepository
	sessions  *sessionIssuer
	metrics   *observability.AuthMetrics
	logger    *zap.Logger
	cfg       OAuthConfig
	now       func() time.Time
}

// NewOAuthService creates a new OAuth service over the given providers
func NewOAuthService(
	providers []*Provider,
	store kvstore.Store,
	users repository.UserRepository,
	permissions repository.PermissionRepository,
	jwt *utils.JWTManager,
	csrf *CSRFService,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
	cfg OAuthConfig,
) OAuthService {
	byName := make(map[string]*Provider, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}

	return &oauthService{
		providers: byName,
		store:     store,
		users:     users,
		sessions:  newSessionIssuer(jwt, permissions, csrf),
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Providers returns the names of configured providers
func (s *oauthService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// Initiate stores a one-shot state and returns the provider authorization URL
func (s *oauthService) Initiate(ctx context.Context, providerName, redirectURI string) (string, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return "", domain.ErrUnknownProvider
	}

	if redirectURI != "" && !s.redirectAllowed(redirectURI) {
		return "", fmt.Errorf("redirect_uri is not an allowed origin: %w", domain.ErrValidation)
	}

	state, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(oauthState{
		Provider:    providerName,
		RedirectURI: redirectURI,
		ExpiresAt:   s.now().Add(s.cfg.StateTTL).UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth state: %w", err)
	}

	if err := s.store.Set(ctx, oauthStateKeyPrefix+state, string(payload), s.cfg.StateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	return provider.Config.AuthCodeURL(state), nil
}

// Callback completes the authorization code flow and signs the user in.
// It also returns the redirect URI stored at initiation, if any.
func (s *oauthService) Callback(ctx context.Context, providerName, code, state string) (*AuthResult, string, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return nil, "", domain.ErrUnknownProvider
	}

	stored, err := s.consumeState(ctx, providerName, state)
	if err != nil {
		return nil, "", err
	}

	if code == "" {
		return nil, "", fmt.Errorf("missing authorization code: %w", domain.ErrValidation)
	}

	identity, err := s.exchange(ctx, provider, code)
	if err != nil {
		s.logger.Warn("OAuth provider request failed", zap.String("provider", providerName), zap.Error(err))
		return nil, "", fmt.Errorf("%s: %w", providerName, domain.ErrProviderError)
	}

	if identity.ID == "" || identity.Email == "" {
		s.logger.Warn("OAuth provider returned incomplete identity", zap.String("provider", providerName))
		return nil, "", fmt.Errorf("%s returned no email: %w", providerName, domain.ErrProviderError)
	}

	user, err := s.resolveUser(ctx, providerName, identity)
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		s.metrics.LoginAttempt(ctx, observability.LoginLocked)
		return nil, "", domain.ErrAccountLocked
	}
	if user.Status.Disabled() {
		s.metrics.LoginAttempt(ctx, observability.LoginDisabled)
		return nil, "", domain.ErrAccountDisabled
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now

	result, err := s.sessions.issue(ctx, user)
	if err != nil {
		return nil, "", err
	}

	s.metrics.LoginAttempt(ctx, observability.LoginSuccess)
	return result, stored.RedirectURI, nil
}

func (s *oauthService) consumeState(ctx context.Context, providerName, state string) (*oauthState, error) {
	if state == "" {
		return nil, domain.ErrInvalidOAuthState
	}

	raw, err := s.store.GetDel(ctx, oauthStateKeyPrefix+state)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, domain.ErrInvalidOAuthState
		}
		return nil, fmt.Errorf("failed to load oauth state: %w", err)
	}

	var stored oauthState
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, domain.ErrInvalidOAuthState
	}

	if stored.Provider != providerName || !s.now().Before(stored.ExpiresAt) {
		return nil, domain.ErrInvalidOAuthState
	}

	return &stored, nil
}

// exchange trades the code for a token and fetches the identity within the configured timeout
func (s *oauthService) exchange(ctx context.Context, provider *Provider, code string) (*ProviderUser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HTTPTimeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: s.cfg.HTTPTimeout})

	token, err := provider.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	return provider.fetchUser(ctx, token)
}

// resolveUser finds the user by linked identity, then by email, and otherwise creates one
func (s *oauthService) resolveUser(ctx context.Context, providerName string, identity *ProviderUser) (*domain.User, error) {
	user, err := s.users.GetByOAuth(ctx, providerName, identity.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up oauth identity: %w", err)
	}

	email := utils.SanitizeEmail(identity.Email)
	now := s.now().UTC()

	user, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		// Linking on an unproven address would hand the account to whoever controls the provider login.
		if !identity.EmailVerified {
			return nil, fmt.Errorf("provider email is unverified and already registered: %w", domain.ErrConflict)
		}
		// An account keeps the first identity linked to it.
		if user.OAuthProvider != nil {
			return user, nil
		}
		return s.link(ctx, user, providerName, identity, now)

	case errors.Is(err, repository.ErrNotFound):
		user = &domain.User{
			Email:  email,
			Role:   domain.RoleUser,
			Status: domain.StatusPendingVerification,
		}
		provider, oauthID := providerName, identity.ID
		user.OAuthProvider = &provider
		user.OAuthID = &oauthID
		if identity.Name != "" {
			name := identity.Name
			user.FullName = &name
		}
		if identity.EmailVerified {
			user.IsEmailVerified = true
			user.EmailVerifiedAt = &now
			user.Status = domain.StatusActive
		}

		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateOAuthIdentity) {
				return nil, fmt.Errorf("concurrent oauth sign-up: %w", domain.ErrConflict)
			}
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return user, nil

	default:
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
}

// link attaches the provider identity to an unlinked account, backfilling its
// name and marking the email verified
func (s *oauthService) link(ctx context.Context, user *domain.User, providerName string, identity *ProviderUser, now time.Time) (*domain.User, error) {
	linked, err := s.users.LinkOAuth(ctx, user.ID, domain.OAuthLink{
		Provider: providerName,
		OAuthID:  identity.ID,
		FullName: identity.Name,
		At:       now,
	})
	switch {
	case err == nil:
		s.logger.Info("OAuth identity linked", zap.String("user_id", linked.ID), zap.String("provider", providerName))
		return linked, nil
	case errors.Is(err, repository.ErrDuplicateOAuthIdentity):
		return nil, fmt.Errorf("identity already linked: %w", domain.ErrConflict)
	case errors.Is(err, repository.ErrNotFound):
		// Linked by a concurrent callback in the meantime.
		current, err := s.users.GetByID(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload user: %w", err)
		}
		return current, nil
	default:
		return nil, fmt.Errorf("failed to link oauth identity: %w", err)
	}
}

func (s *oauthService) redirectAllowed(redirectURI string) bool {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.TrimRight(allowed, "/") == origin {
			return true
		}
	}
	return false
}
