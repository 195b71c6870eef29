package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/service"
)

const (
	userKey   = "user"
	claimsKey = "claims"
)

// extractToken returns the bearer token, falling back to the access token cookie
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	token, err := c.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	return token
}

// AuthMiddleware resolves the principal of the request and rejects anonymous callers
func AuthMiddleware(guard *service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abortWithError(c, domain.ErrUnauthenticated)
			return
		}

		user, claims, err := guard.CurrentPrincipal(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		// Add user info to context
		c.Set(userKey, user)
		c.Set(claimsKey, claims)

		c.Next()
	}
}

// OptionalAuthMiddleware resolves the principal when a valid token is presented
// and lets the request through without one otherwise
func OptionalAuthMiddleware(guard *service.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if user, claims, err := guard.CurrentPrincipal(c.Request.Context(), token); err == nil {
				c.Set(userKey, user)
				c.Set(claimsKey, claims)
			}
		}

		c.Next()
	}
}

// CurrentUser returns the principal resolved by the auth middleware
func CurrentUser(c *gin.Context) (*domain.User, *domain.TokenClaims, bool) {
	u, ok := c.Get(userKey)
	if !ok {
		return nil, nil, false
	}
	user, ok := u.(*domain.User)
	if !ok {
		return nil, nil, false
	}

	value, _ := c.Get(claimsKey)
	claims, _ := value.(*domain.TokenClaims)
	return user, claims, true
}

// Require enforces requirements against the principal set by AuthMiddleware
func Require(guard *service.Guard, requirements ...service.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, ok := CurrentUser(c)
		if !ok {
			abortWithError(c, domain.ErrUnauthenticated)
			return
		}

		gc := guard.NewContext(c.Request.Context(), user, claims)
		if err := service.Check(gc, requirements...); err != nil {
			abortWithError(c, err)
			return
		}

		c.Next()
	}
}

// RequireRole allows the given role and superuser-equivalent principals
func RequireRole(guard *service.Guard, role domain.Role) gin.HandlerFunc {
	return Require(guard, service.RequireRole(role))
}

// RequirePermission allows principals granted resource:action
func RequirePermission(guard *service.Guard, resource, action string) gin.HandlerFunc {
	return Require(guard, service.RequirePermission(resource, action))
}
