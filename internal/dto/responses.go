package dto

import (
	"time"

	"github.com/prperemyshlev/interview-auth/internal/domain"
)

// AuthResponse represents an authentication response
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	CSRFToken    string       `json:"csrf_token"`
	User         UserResponse `json:"user"`
}

// UserResponse represents a user response
type UserResponse struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	FullName        *string  `json:"full_name,omitempty"`
	Role            string   `json:"role"`
	Status          string   `json:"status"`
	IsSuperuser     bool     `json:"is_superuser"`
	IsEmailVerified bool     `json:"is_email_verified"`
	EmailVerifiedAt *string  `json:"email_verified_at,omitempty"`
	OAuthProvider   *string  `json:"oauth_provider,omitempty"`
	LastLoginAt     *string  `json:"last_login_at"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	Permissions     []string `json:"permissions,omitempty"`
}

// NewUserResponse converts a user and its effective permissions into a response
func NewUserResponse(user *domain.User, permissions []string) UserResponse {
	return UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		FullName:        user.FullName,
		Role:            string(user.Role),
		Status:          string(user.Status),
		IsSuperuser:     user.IsSuperuser,
		IsEmailVerified: user.IsEmailVerified,
		EmailVerifiedAt: formatTime(user.EmailVerifiedAt),
		OAuthProvider:   user.OAuthProvider,
		LastLoginAt:     formatTime(user.LastLoginAt),
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       user.UpdatedAt.Format(time.RFC3339),
		Permissions:     permissions,
	}
}

// PermissionResponse represents a permission
type PermissionResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Resource    string  `json:"resource"`
	Action      string  `json:"action"`
	Key         string  `json:"key"`
}

// NewPermissionResponses converts permissions into responses
func NewPermissionResponses(permissions []*domain.Permission) []PermissionResponse {
	out := make([]PermissionResponse, 0, len(permissions))
	for _, p := range permissions {
		out = append(out, PermissionResponse{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Resource:    p.Resource,
			Action:      p.Action,
			Key:         p.Key(),
		})
	}
	return out
}

// UserListResponse is a page of users
type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// CSRFTokenResponse carries a freshly bound CSRF token
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// OAuthRedirectResponse is returned when a client asks for the provider URL instead of a redirect
type OAuthRedirectResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
