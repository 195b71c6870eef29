package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/service"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"
	CSRFHeader         = "X-CSRF-Token"

	refreshCookiePath = "/api/v1/auth/refresh"
)

// SessionCookies writes and clears the session cookies
type SessionCookies struct {
	Secure bool
	Domain string
}

// Set writes the access, refresh and CSRF cookies of an authenticated session
func (s SessionCookies) Set(c *gin.Context, result *service.AuthResult) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, result.AccessToken, seconds(result.AccessExpiresIn), "/", s.Domain, s.Secure, true)
	c.SetCookie(RefreshTokenCookie, result.RefreshToken, seconds(result.RefreshExpiresIn), refreshCookiePath, s.Domain, s.Secure, true)
	// Readable by scripts so the frontend can echo it in the header.
	c.SetCookie(CSRFTokenCookie, result.CSRFToken, seconds(result.AccessExpiresIn), "/", s.Domain, s.Secure, false)
}

// SetCSRF rewrites only the CSRF cookie
func (s SessionCookies) SetCSRF(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CSRFTokenCookie, token, seconds(ttl), "/", s.Domain, s.Secure, false)
}

// Clear expires all session cookies on their own paths
func (s SessionCookies) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, "", -1, "/", s.Domain, s.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, refreshCookiePath, s.Domain, s.Secure, true)
	c.SetCookie(CSRFTokenCookie, "", -1, "/", s.Domain, s.Secure, false)
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
