package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when trying to create a user with an existing email
	ErrDuplicateEmail = errors.New("user with this email already exists")

	// ErrDuplicateOAuthIdentity is returned when an oauth provider identity is already linked
	ErrDuplicateOAuthIdentity = errors.New("oauth identity already linked")

	// ErrDuplicatePermission is returned when a permission name or resource/action pair exists
	ErrDuplicatePermission = errors.New("permission already exists")

	// ErrUnknownPermission is returned when a grant references a missing permission
	ErrUnknownPermission = errors.New("unknown permission")
)
