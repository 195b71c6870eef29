package service

import (
	"slices"

	"github.com/prperemyshlev/interview-auth/internal/domain"
)

var adminBundle = []string{
	domain.PermissionKey("users", "read"),
	domain.PermissionKey("users", "write"),
	domain.PermissionKey("statistics", "read"),
}

var superAdminBundle = append(slices.Clone(adminBundle),
	domain.PermissionKey("system", "manage"),
	domain.PermissionKey("roles", "manage"),
)

// RoleBundle returns the permission keys implied by a role
func RoleBundle(role domain.Role) []string {
	switch role {
	case domain.RoleSuperAdmin:
		return slices.Clone(superAdminBundle)
	case domain.RoleAdmin:
		return slices.Clone(adminBundle)
	}
	return nil
}

// EffectivePermissions merges the role bundle with direct grants, sorted and deduplicated
func EffectivePermissions(user *domain.User, direct []*domain.Permission) []string {
	keys := RoleBundle(user.Role)
	for _, p := range direct {
		keys = append(keys, p.Key())
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// HasPermission reports whether user may perform action on resource given its direct grants.
// Superuser-equivalent principals pass every check.
func HasPermission(user *domain.User, granted []string, resource, action string) bool {
	if user == nil {
		return false
	}
	if user.IsSuperuserEquivalent() {
		return true
	}

	key := domain.PermissionKey(resource, action)
	return slices.Contains(granted, key) || slices.Contains(RoleBundle(user.Role), key)
}
