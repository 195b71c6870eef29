package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/prperemyshlev/interview-auth/internal/service"
	"go.uber.org/zap"
)

const (
	passwordResetRequested     = "If the email is registered, a password reset link has been sent"
	emailVerificationRequested = "If the email is registered and unverified, a verification link has been sent"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService     service.AuthService
	recovery        *service.RecoveryService
	cookies         SessionCookies
	loginRateWindow time.Duration
	logger          *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService service.AuthService,
	recovery *service.RecoveryService,
	cookies SessionCookies,
	loginRateWindow time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:     authService,
		recovery:        recovery,
		cookies:         cookies,
		loginRateWindow: loginRateWindow,
		logger:          logger,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user in the system
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.cookies.Set(c, result)
	c.JSON(http.StatusCreated, result.AuthResponse)
}

// Login handles user login
// @Summary Login user
// @Description Authenticate user with email and password, as JSON or as an OAuth2 password form
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithBindError(c, err)
		return
	}
	if strings.TrimSpace(req.Identifier()) == "" {
		abortWithBindError(c, errors.New("email is required"))
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			c.Header("Retry-After", strconv.Itoa(int(h.loginRateWindow.Seconds())))
		}
		abortWithError(c, err)
		return
	}

	h.cookies.Set(c, result)
	c.JSON(http.StatusOK, result.AuthResponse)
}

// Refresh handles token refresh
// @Summary Refresh tokens
// @Description Rotate the refresh token from the body or cookie into a new session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshRequest false "Refresh request"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		abortWithBindError(c, err)
		return
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(RefreshTokenCookie)
	}

	result, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.cookies.Set(c, result)
	c.JSON(http.StatusOK, result.AuthResponse)
}

// Logout handles user logout
// @Summary Logout user
// @Description Revoke the presented access and refresh tokens and clear session cookies
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.LogoutRequest false "Logout request"
// @Success 200 {object} dto.SuccessResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req dto.LogoutRequest
	_ = bindOptionalJSON(c, &req)

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(RefreshTokenCookie)
	}

	if err := h.authService.Logout(c.Request.Context(), extractToken(c), refreshToken); err != nil {
		h.logger.Error("Logout failed", zap.Error(err))
	}

	if user, _, ok := CurrentUser(c); ok {
		h.logger.Info("User logged out", zap.String("user_id", user.ID))
	}

	h.cookies.Clear(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Logged out successfully",
	})
}

// GetMe handles getting current user profile
// @Summary Get current user profile
// @Description Get information about the current authenticated user with effective permissions
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.UserResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, _, ok := CurrentUser(c)
	if !ok {
		abortWithError(c, domain.ErrUnauthenticated)
		return
	}

	response, err := h.authService.Me(c.Request.Context(), user)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// CSRFToken issues a fresh CSRF token for the current access token
// @Summary Issue CSRF token
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.CSRFTokenResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/csrf-token [post]
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	_, claims, ok := CurrentUser(c)
	if !ok || claims == nil {
		abortWithError(c, domain.ErrUnauthenticated)
		return
	}

	token, err := h.authService.IssueCSRFToken(c.Request.Context(), claims)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.cookies.SetCSRF(c, token, claims.Remaining(time.Now()))
	c.JSON(http.StatusOK, dto.CSRFTokenResponse{CSRFToken: token})
}

// RequestPasswordReset starts a password reset
// @Summary Request password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "Email"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/password-reset/request [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	h.recovery.RequestPasswordReset(c.Request.Context(), req.Email)

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: passwordResetRequested})
}

// ConfirmPasswordReset completes a password reset
// @Summary Confirm password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.PasswordResetConfirmRequest true "Reset token and new password"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/password-reset/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req dto.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	if err := h.recovery.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Password has been reset"})
}

// RequestEmailVerification resends the verification link
// @Summary Request email verification
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.EmailRequest true "Email"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/email/verify/request [post]
func (h *AuthHandler) RequestEmailVerification(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	h.recovery.RequestEmailVerification(c.Request.Context(), req.Email)

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: emailVerificationRequested})
}

// ConfirmEmailVerification marks the email of the token owner as verified
// @Summary Confirm email verification
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.EmailVerifyConfirmRequest true "Verification token"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/email/verify/confirm [post]
func (h *AuthHandler) ConfirmEmailVerification(c *gin.Context) {
	var req dto.EmailVerifyConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	if _, err := h.recovery.ConfirmEmailVerification(c.Request.Context(), req.Token); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Email has been verified"})
}

// ChangePassword changes the password of the current user
// @Summary Change password
// @Tags account
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.ChangePasswordRequest true "Current and new password"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /account/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user, _, ok := CurrentUser(c)
	if !ok {
		abortWithError(c, domain.ErrUnauthenticated)
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithBindError(c, err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), user, &req); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Password changed"})
}

// bindOptionalJSON binds a JSON body when one is present
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
