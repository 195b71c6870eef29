package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string  `json:"email" binding:"required"`
	Password string  `json:"password" binding:"required"`
	FullName *string `json:"full_name"`
}

// LoginRequest represents a login request, sent as JSON or as an OAuth2 password form
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Identifier returns the email, falling back to the form username field
func (r LoginRequest) Identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

// RefreshRequest carries a refresh token when no cookie is available
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest optionally names a refresh token to revoke
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// EmailRequest starts a password reset or email verification
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetConfirmRequest completes a password reset
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// EmailVerifyConfirmRequest completes email verification
type EmailVerifyConfirmRequest struct {
	Token string `json:"token" binding:"required"`
}

// ChangePasswordRequest changes the password of the current user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// UpdateRoleRequest sets the role of a user
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateStatusRequest sets the status of a user
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateUserRequest creates an account from the admin surface
type CreateUserRequest struct {
	Email         string  `json:"email" binding:"required"`
	Password      string  `json:"password" binding:"required"`
	FullName      *string `json:"full_name"`
	Role          string  `json:"role"`
	Status        string  `json:"status"`
	EmailVerified bool    `json:"is_email_verified"`
}

// CreatePermissionRequest defines a new permission
type CreatePermissionRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Resource    string  `json:"resource" binding:"required"`
	Action      string  `json:"action" binding:"required"`
}

// SetUserPermissionsRequest replaces the direct grants of a user
type SetUserPermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

// ListUsersQuery is the query string of the admin user listing
type ListUsersQuery struct {
	Skip   int    `form:"skip"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
}
