package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const mailTimeout = 30 * time.Second

// Mailer delivers transactional email
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
	SendEmailVerification(ctx context.Context, email, link string) error
}

// LogMailer writes outgoing mail to the log instead of delivering it
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that only logs
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendPasswordReset logs a password reset mail
func (m *LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.logger.Info("Password reset mail", zap.String("to", email), zap.String("link", link))
	return nil
}

// SendEmailVerification logs a verification mail
func (m *LogMailer) SendEmailVerification(_ context.Context, email, link string) error {
	m.logger.Info("Email verification mail", zap.String("to", email), zap.String("link", link))
	return nil
}

// sendAsync runs send in the background; failures are logged and dropped
func sendAsync(ctx context.Context, logger *zap.Logger, kind string, send func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, mailTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			logger.Error("Failed to send mail", zap.String("kind", kind), zap.Error(err))
		}
	}()
}
