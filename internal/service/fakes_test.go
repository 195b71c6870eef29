package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/repository"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User

	// afterGetByID runs once the record was read, outside the lock
	afterGetByID func(id string)
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.Status == "" {
		user.Status = domain.StatusPendingVerification
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	u, ok := r.users[id]
	var found *domain.User
	if ok {
		found = cloneUser(u)
	}
	hook := r.afterGetByID
	r.mu.Unlock()

	if !ok {
		return nil, repository.ErrNotFound
	}
	if hook != nil {
		hook(id)
	}
	return found, nil
}

func (r *fakeUserRepo) GetByOAuth(_ context.Context, provider, oauthID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.OAuthProvider != nil && *u.OAuthProvider == provider && u.OAuthID != nil && *u.OAuthID == oauthID {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

// put replaces the stored record, for test setup only
func (r *fakeUserRepo) put(user *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = cloneUser(user)
}

// modify applies fn to the stored record under the lock
func (r *fakeUserRepo) modify(id string, fn func(u *domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !fn(u) {
		return nil, repository.ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (r *fakeUserRepo) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	_, err := r.modify(id, func(u *domain.User) bool {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &at
		return true
	})
	return err
}

func (r *fakeUserRepo) RecordLoginFailure(_ context.Context, id string, attempts int, at time.Time, lockedUntil *time.Time) error {
	_, err := r.modify(id, func(u *domain.User) bool {
		u.FailedLoginAttempts = max(u.FailedLoginAttempts, attempts)
		if u.LastFailedLogin == nil || at.After(*u.LastFailedLogin) {
			u.LastFailedLogin = &at
		}
		if lockedUntil != nil && (u.LockedUntil == nil || lockedUntil.After(*u.LockedUntil)) {
			until := *lockedUntil
			u.LockedUntil = &until
		}
		return true
	})
	return err
}

func (r *fakeUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	_, err := r.modify(id, func(u *domain.User) bool {
		u.LastLoginAt = &at
		return true
	})
	return err
}

func (r *fakeUserRepo) SetPassword(_ context.Context, id, passwordHash string) error {
	_, err := r.modify(id, func(u *domain.User) bool {
		u.PasswordHash = &passwordHash
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		return true
	})
	return err
}

func (r *fakeUserRepo) SetRole(_ context.Context, id string, role domain.Role) (*domain.User, error) {
	return r.modify(id, func(u *domain.User) bool {
		u.Role = role
		return true
	})
}

func (r *fakeUserRepo) SetStatus(_ context.Context, id string, status domain.Status) (*domain.User, error) {
	return r.modify(id, func(u *domain.User) bool {
		u.Status = status
		return true
	})
}

func (r *fakeUserRepo) MarkEmailVerified(_ context.Context, id string, at time.Time) (*domain.User, error) {
	return r.modify(id, func(u *domain.User) bool {
		markVerified(u, at)
		return true
	})
}

func (r *fakeUserRepo) LinkOAuth(_ context.Context, id string, link domain.OAuthLink) (*domain.User, error) {
	r.mu.Lock()
	for _, u := range r.users {
		if u.OAuthProvider != nil && *u.OAuthProvider == link.Provider && u.OAuthID != nil && *u.OAuthID == link.OAuthID {
			r.mu.Unlock()
			return nil, repository.ErrDuplicateOAuthIdentity
		}
	}
	r.mu.Unlock()

	return r.modify(id, func(u *domain.User) bool {
		if u.OAuthProvider != nil {
			return false
		}
		provider, oauthID := link.Provider, link.OAuthID
		u.OAuthProvider, u.OAuthID = &provider, &oauthID
		if u.FullName == nil && link.FullName != "" {
			name := link.FullName
			u.FullName = &name
		}
		markVerified(u, link.At)
		return true
	})
}

func markVerified(u *domain.User, at time.Time) {
	u.IsEmailVerified = true
	if u.EmailVerifiedAt == nil {
		u.EmailVerifiedAt = &at
	}
	if u.Status == domain.StatusPendingVerification {
		u.Status = domain.StatusActive
	}
}

func (r *fakeUserRepo) CountByRole(_ context.Context, role domain.Role) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, u := range r.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (r *fakeUserRepo) matching(filter domain.UserFilter) []*domain.User {
	var out []*domain.User
	for _, u := range r.users {
		if filter.Search == "" || strings.Contains(u.Email, filter.Search) {
			out = append(out, cloneUser(u))
		}
	}
	slices.SortFunc(out, func(a, b *domain.User) int { return strings.Compare(a.Email, b.Email) })
	return out
}

func (r *fakeUserRepo) List(_ context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter = filter.Page()
	out := r.matching(filter)
	if filter.Skip >= len(out) {
		return nil, nil
	}
	out = out[filter.Skip:]
	return out[:min(filter.Limit, len(out))], nil
}

func (r *fakeUserRepo) Count(_ context.Context, filter domain.UserFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(filter)), nil
}

// get returns the stored record, bypassing the copy a service works on
func (r *fakeUserRepo) get(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.users[id])
}

type fakePermissionRepo struct {
	mu          sync.Mutex
	permissions map[string]*domain.Permission
	grants      map[string][]string
}

func newFakePermissionRepo() *fakePermissionRepo {
	return &fakePermissionRepo{
		permissions: make(map[string]*domain.Permission),
		grants:      make(map[string][]string),
	}
}

func (r *fakePermissionRepo) seed(resource, action string) *domain.Permission {
	p := &domain.Permission{
		ID:       uuid.New().String(),
		Name:     action + "_" + resource,
		Resource: resource,
		Action:   action,
	}
	r.mu.Lock()
	r.permissions[p.ID] = p
	r.mu.Unlock()
	return p
}

func (r *fakePermissionRepo) Create(_ context.Context, permission *domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.permissions {
		if p.Name == permission.Name || p.Key() == permission.Key() {
			return repository.ErrDuplicatePermission
		}
	}
	if permission.ID == "" {
		permission.ID = uuid.New().String()
	}
	c := *permission
	r.permissions[c.ID] = &c
	return nil
}

func (r *fakePermissionRepo) GetByIDs(_ context.Context, ids []string) ([]*domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Permission
	for _, id := range ids {
		if p, ok := r.permissions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePermissionRepo) List(_ context.Context, resource string) ([]*domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Permission
	for _, p := range r.permissions {
		if resource == "" || p.Resource == resource {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePermissionRepo) ListForUser(_ context.Context, userID string) ([]*domain.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Permission
	for _, id := range r.grants[userID] {
		out = append(out, r.permissions[id])
	}
	return out, nil
}

func (r *fakePermissionRepo) SetForUser(_ context.Context, userID string, permissionIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range permissionIDs {
		if _, ok := r.permissions[id]; !ok {
			return repository.ErrUnknownPermission
		}
	}
	r.grants[userID] = append([]string(nil), permissionIDs...)
	return nil
}

type sentMail struct {
	kind  string
	email string
	link  string
}

// fakeMailer delivers mail into a channel
type fakeMailer struct {
	sent chan sentMail
	err  error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{sent: make(chan sentMail, 16)}
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.sent <- sentMail{kind: "reset", email: email, link: link}
	return m.err
}

func (m *fakeMailer) SendEmailVerification(_ context.Context, email, link string) error {
	m.sent <- sentMail{kind: "verify", email: email, link: link}
	return m.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
