package domain

import "time"

// Role is a coarse authorization level attached to a principal
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Status is the lifecycle state of a principal
type Status string

const (
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusSuspended           Status = "suspended"
	StatusPendingVerification Status = "pending_verification"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPendingVerification:
		return true
	}
	return false
}

// Disabled reports whether the status forbids authentication
func (s Status) Disabled() bool {
	return s == StatusInactive || s == StatusSuspended
}

// User represents an authenticated principal in the system
type User struct {
	ID                  string     `json:"id" db:"id"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        *string    `json:"-" db:"password_hash"`
	FullName            *string    `json:"full_name,omitempty" db:"full_name"`
	Role                Role       `json:"role" db:"role"`
	Status              Status     `json:"status" db:"status"`
	IsSuperuser         bool       `json:"is_superuser" db:"is_superuser"`
	IsEmailVerified     bool       `json:"is_email_verified" db:"is_email_verified"`
	EmailVerifiedAt     *time.Time `json:"email_verified_at,omitempty" db:"email_verified_at"`
	OAuthProvider       *string    `json:"oauth_provider,omitempty" db:"oauth_provider"`
	OAuthID             *string    `json:"-" db:"oauth_id"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LastFailedLogin     *time.Time `json:"-" db:"last_failed_login"`
	LockedUntil         *time.Time `json:"-" db:"locked_until"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty" db:"last_login"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// IsSuperuserEquivalent reports whether the user bypasses permission checks
func (u *User) IsSuperuserEquivalent() bool {
	return u.Role == RoleSuperAdmin || u.IsSuperuser
}

// IsLocked reports whether the account lock is still in effect at now
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// HasPassword reports whether the user can authenticate with a password
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// OAuthLink attaches a provider identity whose email the provider verified
type OAuthLink struct {
	Provider string
	OAuthID  string
	FullName string
	At       time.Time
}

// Permission is a named grant on a (resource, action) pair
type Permission struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Resource    string    `json:"resource" db:"resource"`
	Action      string    `json:"action" db:"action"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Key returns the resource:action form used inside tokens
func (p Permission) Key() string {
	return PermissionKey(p.Resource, p.Action)
}

// PermissionKey joins resource and action into a permission key
func PermissionKey(resource, action string) string {
	return resource + ":" + action
}

// MaxUserPageSize caps a user listing and is used when none is requested
const MaxUserPageSize = 100

// UserFilter narrows a user listing
type UserFilter struct {
	Search string
	Skip   int
	Limit  int
}

// Page returns the filter with skip and limit clamped to what a listing serves
func (f UserFilter) Page() UserFilter {
	if f.Limit <= 0 || f.Limit > MaxUserPageSize {
		f.Limit = MaxUserPageSize
	}
	f.Skip = max(f.Skip, 0)
	return f
}

// UserPage is one page of a user listing with the total matching the filter
type UserPage struct {
	Users []*User
	Total int
	Skip  int
	Limit int
}
