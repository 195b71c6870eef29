package service

import (
	"context"

	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
)

// AuthService defines methods for authentication operations
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req *dto.LoginRequest, clientIP string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Me(ctx context.Context, user *domain.User) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, user *domain.User, req *dto.ChangePasswordRequest) error
	IssueCSRFToken(ctx context.Context, access *domain.TokenClaims) (string, error)
}

// OAuthService defines methods for federated login
type OAuthService interface {
	Initiate(ctx context.Context, provider, redirectURI string) (string, error)
	Callback(ctx context.Context, provider, code, state string) (*AuthResult, string, error)
	Providers() []string
}

// AdminService defines methods for user and permission administration
type AdminService interface {
	UpdateRole(ctx context.Context, userID string, role domain.Role) (*domain.User, error)
	UpdateStatus(ctx context.Context, userID string, status domain.Status) (*domain.User, error)
	ListPermissions(ctx context.Context, resource string) ([]*domain.Permission, error)
	CreatePermission(ctx context.Context, req *dto.CreatePermissionRequest) (*domain.Permission, error)
	SetUserPermissions(ctx context.Context, userID string, permissionIDs []string) ([]*domain.Permission, error)
	ListUsers(ctx context.Context, filter domain.UserFilter) (*domain.UserPage, error)
	GetUser(ctx context.Context, userID string) (*domain.User, []string, error)
	CreateUser(ctx context.Context, actor *domain.User, req *dto.CreateUserRequest) (*domain.User, error)
	EnsureSuperAdmin(ctx context.Context, email, password string) (bool, error)
}
