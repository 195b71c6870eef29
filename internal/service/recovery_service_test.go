package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveMail(t *testing.T, m *fakeMailer) sentMail {
	t.Helper()
	select {
	case mail := <-m.sent:
		return mail
	case <-time.After(time.Second):
		t.Fatal("no mail sent")
		return sentMail{}
	}
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestPasswordReset_OneShot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	user := e.createUser(t, "alice@example.com", domain.RoleUser, domain.StatusActive)

	stored := e.users.get(user.ID)
	until := e.clock.Now().Add(time.Hour)
	stored.LockedUntil = &until
	stored.FailedLoginAttempts = 5
	e.users.put(stored)

	e.recovery.RequestPasswordReset(ctx, "ALICE@example.com")
	mail := receiveMail(t, e.mailer)
	assert.Equal(t, "reset", mail.kind)
	assert.Contains(t, mail.link, "http://localhost:3000/reset-password?token=")
	token := tokenFromLink(t, mail.link)

	err := e.recovery.ConfirmPasswordReset(ctx, token, "weak")
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, e.recovery.ConfirmPasswordReset(ctx, token, "NewSecret456"))

	stored = e.users.get(user.ID)
	assert.Nil(t, stored.LockedUntil)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.True(t, e.hasher.Verify("NewSecret456", *stored.PasswordHash))

	err = e.recovery.ConfirmPasswordReset(ctx, token, "Another789")
	assert.ErrorIs(t, err, domain.ErrTokenExpiredOneShot)
}

func TestPasswordReset_ExpiredAndUnknown(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createUser(t, "alice@example.com", domain.RoleUser, domain.StatusActive)

	e.recovery.RequestPasswordReset(ctx, "nobody@example.com")
	select {
	case <-e.mailer.sent:
		t.Fatal("unknown email must not receive mail")
	case <-time.After(50 * time.Millisecond):
	}

	e.recovery.RequestPasswordReset(ctx, "alice@example.com")
	token := tokenFromLink(t, receiveMail(t, e.mailer).link)

	e.clock.Advance(time.Hour)
	err := e.recovery.ConfirmPasswordReset(ctx, token, "NewSecret456")
	assert.ErrorIs(t, err, domain.ErrTokenExpiredOneShot)

	err = e.recovery.ConfirmPasswordReset(ctx, "made-up", "NewSecret456")
	assert.ErrorIs(t, err, domain.ErrTokenExpiredOneShot)
}

func TestEmailVerification(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	user := e.createUser(t, "alice@example.com", domain.RoleUser, domain.StatusPendingVerification)

	e.recovery.RequestEmailVerification(ctx, "alice@example.com")
	mail := receiveMail(t, e.mailer)
	assert.Equal(t, "verify", mail.kind)
	token := tokenFromLink(t, mail.link)

	verified, err := e.recovery.ConfirmEmailVerification(ctx, token)
	require.NoError(t, err)
	assert.True(t, verified.IsEmailVerified)
	assert.Equal(t, domain.StatusActive, verified.Status)

	stored := e.users.get(user.ID)
	assert.True(t, stored.IsEmailVerified)
	require.NotNil(t, stored.EmailVerifiedAt)

	_, err = e.recovery.ConfirmEmailVerification(ctx, token)
	assert.ErrorIs(t, err, domain.ErrTokenExpiredOneShot)

	e.recovery.RequestEmailVerification(ctx, "alice@example.com")
	select {
	case <-e.mailer.sent:
		t.Fatal("verified address must not receive another mail")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmailVerification_KeepsSuspendedStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	user := e.createUser(t, "alice@example.com", domain.RoleUser, domain.StatusSuspended)

	require.NoError(t, e.recovery.SendVerification(ctx, user))
	token := tokenFromLink(t, receiveMail(t, e.mailer).link)

	verified, err := e.recovery.ConfirmEmailVerification(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, verified.Status)
}
