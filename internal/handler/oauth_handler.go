package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/dto"
	"github.com/prperemyshlev/interview-auth/internal/service"
	"go.uber.org/zap"
)

// OAuthHandler handles federated login
type OAuthHandler struct {
	oauthService service.OAuthService
	cookies      SessionCookies
	logger       *zap.Logger
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(oauthService service.OAuthService, cookies SessionCookies, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		cookies:      cookies,
		logger:       logger,
	}
}

// Initiate redirects to the provider authorization page
// @Summary Start OAuth login
// @Description Redirects to the provider, or returns the URL when JSON is accepted
// @Tags oauth
// @Produce json
// @Param provider path string true "google, facebook or github"
// @Param redirect_uri query string false "Where to send the browser after the callback"
// @Success 302
// @Success 200 {object} dto.OAuthRedirectResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /auth/oauth/{provider} [get]
func (h *OAuthHandler) Initiate(c *gin.Context) {
	authURL, err := h.oauthService.Initiate(c.Request.Context(), c.Param("provider"), c.Query("redirect_uri"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON) {
		c.JSON(http.StatusOK, dto.OAuthRedirectResponse{AuthorizationURL: authURL})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the provider login
// @Summary OAuth callback
// @Description Exchanges the code, signs the user in and redirects to the stored redirect URI if any
// @Tags oauth
// @Produce json
// @Param provider path string true "google, facebook or github"
// @Param code query string true "Authorization code"
// @Param state query string true "State issued at initiation"
// @Success 200 {object} dto.AuthResponse
// @Success 302
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /auth/oauth/{provider}/callback [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	if denied := c.Query("error"); denied != "" {
		h.logger.Info("OAuth authorization denied", zap.String("provider", provider), zap.String("error", denied))
		abortWithError(c, fmt.Errorf("authorization denied by provider: %w", domain.ErrValidation))
		return
	}

	result, redirectURI, err := h.oauthService.Callback(c.Request.Context(), provider, c.Query("code"), c.Query("state"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.cookies.Set(c, result)

	if redirectURI != "" {
		c.Redirect(http.StatusFound, redirectURI)
		return
	}

	c.JSON(http.StatusOK, result.AuthResponse)
}

// Providers lists the configured providers
// @Summary List OAuth providers
// @Tags oauth
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /auth/oauth/providers [get]
func (h *OAuthHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.oauthService.Providers()})
}
