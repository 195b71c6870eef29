package service

import (
	"context"
	"testing"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/kvstore"
	"github.com/prperemyshlev/interview-auth/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "test-secret-key-that-is-at-least-32-characters-long"
	testPassword = "Secret123"
)

type testEnv struct {
	clock  *testClock
	store  *kvstore.MemoryStore
	users  *fakeUserRepo
	perms  *fakePermissionRepo
	mailer *fakeMailer
	jwt    *utils.JWTManager
	hasher *utils.PasswordHasher

	revocation  *RevocationService
	rateLimiter *RateLimiter
	lockout     *LockoutTracker
	csrf        *CSRFService
	recovery    *RecoveryService
	guard       *Guard
	auth        *authService
	admin       AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Now().UTC()}
	logger := zap.NewNop()

	e := &testEnv{
		clock:  clock,
		store:  kvstore.NewMemoryStore(1000, kvstore.WithClock(clock.Now)),
		users:  newFakeUserRepo(),
		perms:  newFakePermissionRepo(),
		mailer: newFakeMailer(),
		jwt:    utils.NewJWTManager(testSecret, 30*time.Minute, 30*24*time.Hour, utils.WithJWTClock(clock.Now)),
		hasher: utils.NewPasswordHasher(bcrypt.MinCost),
	}

	e.revocation = NewRevocationService(e.store, e.jwt, nil)
	e.revocation.now = clock.Now
	e.rateLimiter = NewRateLimiter(e.store)
	e.lockout = NewLockoutTracker(e.store, time.Hour)
	e.csrf = NewCSRFService(e.store)
	e.csrf.now = clock.Now

	e.recovery = NewRecoveryService(e.store, e.users, e.hasher, e.lockout, e.mailer, logger, RecoveryConfig{
		FrontendURL:          "http://localhost:3000",
		PasswordResetTTL:     time.Hour,
		EmailVerificationTTL: 48 * time.Hour,
	})
	e.recovery.now = clock.Now

	e.guard = NewGuard(e.jwt, e.revocation, e.users, e.perms)
	e.guard.now = clock.Now

	e.auth = NewAuthService(e.users, e.perms, e.jwt, e.hasher, e.revocation, e.rateLimiter, e.lockout, e.csrf, e.recovery, nil, logger, AuthConfig{
		LoginRateLimit:  5,
		LoginRateWindow: time.Minute,
		MaxFailedLogins: 5,
		LockoutDuration: 30 * time.Minute,
	}).(*authService)
	e.auth.now = clock.Now

	e.admin = NewAdminService(e.users, e.perms, e.hasher, logger)

	return e
}

func (e *testEnv) createUser(t *testing.T, email string, role domain.Role, status domain.Status) *domain.User {
	t.Helper()

	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)

	user := &domain.User{
		Email:        email,
		PasswordHash: &hash,
		Role:         role,
		Status:       status,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}
