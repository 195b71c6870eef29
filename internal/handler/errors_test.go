package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrAccountLocked, http.StatusUnauthorized},
		{domain.ErrAccountDisabled, http.StatusForbidden},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("decode: %w", domain.ErrInvalidToken), http.StatusUnauthorized},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrCSRFMismatch, http.StatusForbidden},
		{domain.ErrTokenExpiredOneShot, http.StatusBadRequest},
		{domain.ErrProviderError, http.StatusBadGateway},
		{domain.ErrInvalidOAuthState, http.StatusBadRequest},
		{domain.ErrUnknownProvider, http.StatusNotFound},
		{domain.ErrEmailTaken, http.StatusBadRequest},
		{fmt.Errorf("last super admin: %w", domain.ErrConflict), http.StatusConflict},
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestAbortWithError_HidesInternalErrors(t *testing.T) {
	var recorded []*gin.Error
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		abortWithError(c, errors.New("pq: password authentication failed"))
		recorded = c.Errors
	})

	rec := perform(router, http.MethodGet, "/", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	require.Len(t, recorded, 1)
}

func TestAbortWithError_RateLimitedSetsRetryAfter(t *testing.T) {
	router := gin.New()
	router.GET("/", func(c *gin.Context) { abortWithError(c, domain.ErrRateLimited) })

	rec := perform(router, http.MethodGet, "/", nil, nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestAbortWithError_ExposesValidationDetail(t *testing.T) {
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		abortWithError(c, fmt.Errorf("invalid email format: %w", domain.ErrValidation))
	})

	rec := perform(router, http.MethodGet, "/", nil, nil)

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Validation failed", body.Error)
	assert.Contains(t, body.Message, "invalid email format")
}
