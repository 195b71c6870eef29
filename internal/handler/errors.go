package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
)

const defaultRetryAfter = 60

type errorMapping struct {
	target  error
	status  int
	title   string
	message string
}

// errorMappings is ordered: more specific errors come before the kinds they wrap.
// An empty message exposes the error text itself.
var errorMappings = []errorMapping{
	{domain.ErrEmailTaken, http.StatusBadRequest, "Bad request", "Email already registered"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "Unauthorized", "Incorrect email or password"},
	{domain.ErrAccountLocked, http.StatusUnauthorized, "Unauthorized", "Account is temporarily locked due to too many failed login attempts"},
	{domain.ErrAccountDisabled, http.StatusForbidden, "Forbidden", "Account is disabled"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "Unauthorized", "Authentication required"},
	{domain.ErrForbidden, http.StatusForbidden, "Forbidden", "Insufficient permissions"},
	{domain.ErrCSRFMismatch, http.StatusForbidden, "Forbidden", "CSRF token missing or invalid"},
	{domain.ErrTokenExpiredOneShot, http.StatusBadRequest, "Bad request", "Token is invalid, expired or already used"},
	{domain.ErrProviderError, http.StatusBadGateway, "Bad gateway", "OAuth provider request failed"},
	{domain.ErrInvalidOAuthState, http.StatusBadRequest, "Bad request", "Invalid or expired OAuth state"},
	{domain.ErrUnknownProvider, http.StatusNotFound, "Not found", "Unknown OAuth provider"},
	{domain.ErrConflict, http.StatusConflict, "Conflict", ""},
	{domain.ErrValidation, http.StatusBadRequest, "Validation failed", ""},
	{domain.ErrNotFound, http.StatusNotFound, "Not found", ""},
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// abortWithError writes the error response for err and stops the chain.
// Unmapped errors are attached to the context for the access log and never shown to clients.
func abortWithError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}

		message := m.message
		if message == "" {
			message = err.Error()
		}

		if m.status == http.StatusTooManyRequests && c.Writer.Header().Get("Retry-After") == "" {
			c.Header("Retry-After", strconv.Itoa(defaultRetryAfter))
		}

		c.AbortWithStatusJSON(m.status, dto.ErrorResponse{
			Error:   m.title,
			Message: message,
		})
		return
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "Internal server error",
		Message: "An unexpected error occurred",
	})
}

// abortWithBindError rejects a request body that failed to bind
func abortWithBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Validation failed",
		Message: err.Error(),
	})
}
