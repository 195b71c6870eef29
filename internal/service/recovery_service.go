package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/kvstore"
	"github.com/prperemyshlev/interview-auth/internal/repository"
	"github.com/prperemyshlev/interview-auth/internal/utils"
	"go.uber.org/zap"
)

const (
	passwordResetKeyPrefix = "pwreset:"
	emailVerifyKeyPrefix   = "emailverify:"
)

// RecoveryConfig holds the lifetimes and link base of recovery tokens
type RecoveryConfig struct {
	FrontendURL          string
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
}

// RecoveryService issues and redeems one-shot password reset and email verification tokens
type RecoveryService struct {
	store   kvstore.Store
	users   repository.UserRepository
	hasher  *utils.PasswordHasher
	lockout *LockoutTracker
	mailer  Mailer
	logger  *zap.Logger
	cfg     RecoveryConfig
	now     func() time.Time
}

// oneShotPayload is stored under a one-shot token key
type oneShotPayload struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRecoveryService creates a new recovery service
func NewRecoveryService(
	store kvstore.Store,
	users repository.UserRepository,
	hasher *utils.PasswordHasher,
	lockout *LockoutTracker,
	mailer Mailer,
	logger *zap.Logger,
	cfg RecoveryConfig,
) *RecoveryService {
	return &RecoveryService{
		store:   store,
		users:   users,
		hasher:  hasher,
		lockout: lockout,
		mailer:  mailer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RequestPasswordReset mails a reset link when the email is known. It never reveals whether it is.
func (s *RecoveryService) RequestPasswordReset(ctx context.Context, email string) {
	user, err := s.users.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("Failed to look up user for password reset", zap.Error(err))
		}
		return
	}

	token, err := s.storeOneShot(ctx, passwordResetKeyPrefix, user.ID, s.cfg.PasswordResetTTL)
	if err != nil {
		s.logger.Error("Failed to issue password reset token", zap.String("user_id", user.ID), zap.Error(err))
		return
	}

	link := s.link("/reset-password", token)
	sendAsync(ctx, s.logger, "password_reset", func(ctx context.Context) error {
		return s.mailer.SendPasswordReset(ctx, user.Email, link)
	})
}

// ConfirmPasswordReset redeems a reset token and sets a new password.
// The token is consumed even when it turns out to be expired.
func (s *RecoveryService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := utils.CheckPassword(newPassword); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	payload, err := s.redeemOneShot(ctx, passwordResetKeyPrefix, token)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.SetPassword(ctx, payload.UserID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrTokenExpiredOneShot
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.lockout.Reset(ctx, payload.UserID); err != nil {
		s.logger.Warn("Failed to reset login failures after password reset", zap.String("user_id", payload.UserID), zap.Error(err))
	}

	return nil
}

// RequestEmailVerification mails a verification link to an unverified address. It never reveals whether it exists.
func (s *RecoveryService) RequestEmailVerification(ctx context.Context, email string) {
	user, err := s.users.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("Failed to look up user for email verification", zap.Error(err))
		}
		return
	}

	if user.IsEmailVerified {
		return
	}

	if err := s.SendVerification(ctx, user); err != nil {
		s.logger.Error("Failed to issue email verification token", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// SendVerification issues a verification token for user and mails it in the background
func (s *RecoveryService) SendVerification(ctx context.Context, user *domain.User) error {
	token, err := s.storeOneShot(ctx, emailVerifyKeyPrefix, user.ID, s.cfg.EmailVerificationTTL)
	if err != nil {
		return err
	}

	link := s.link("/verify-email", token)
	sendAsync(ctx, s.logger, "email_verification", func(ctx context.Context) error {
		return s.mailer.SendEmailVerification(ctx, user.Email, link)
	})

	return nil
}

// ConfirmEmailVerification redeems a verification token and activates a pending account
func (s *RecoveryService) ConfirmEmailVerification(ctx context.Context, token string) (*domain.User, error) {
	payload, err := s.redeemOneShot(ctx, emailVerifyKeyPrefix, token)
	if err != nil {
		return nil, err
	}

	verified, err := s.users.MarkEmailVerified(ctx, payload.UserID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrTokenExpiredOneShot
		}
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	return verified, nil
}

func (s *RecoveryService) storeOneShot(ctx context.Context, prefix, userID string, ttl time.Duration) (string, error) {
	token, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(oneShotPayload{UserID: userID, ExpiresAt: s.now().Add(ttl).UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}

	if err := s.store.Set(ctx, prefix+token, string(payload), ttl); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	return token, nil
}

// redeemOneShot deletes the token before inspecting it so it can never be used twice
func (s *RecoveryService) redeemOneShot(ctx context.Context, prefix, token string) (*oneShotPayload, error) {
	if token == "" {
		return nil, domain.ErrTokenExpiredOneShot
	}

	raw, err := s.store.GetDel(ctx, prefix+token)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, domain.ErrTokenExpiredOneShot
		}
		return nil, fmt.Errorf("failed to redeem token: %w", err)
	}

	var payload oneShotPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, domain.ErrTokenExpiredOneShot
	}

	if !s.now().Before(payload.ExpiresAt) {
		return nil, domain.ErrTokenExpiredOneShot
	}

	return &payload, nil
}

func (s *RecoveryService) link(path, token string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}
