package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/interview-auth/internal/domain"
	"github.com/prperemyshlev/interview-auth/internal/service"
)

const maxCSRFBodyBytes = 1 << 20

// CSRFMiddleware requires a CSRF token bound to the access token on state-changing requests.
// It runs after AuthMiddleware. Requests under exemptPrefix are not checked.
func CSRFMiddleware(csrf *service.CSRFService, exemptPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) || (exemptPrefix != "" && strings.HasPrefix(c.Request.URL.Path, exemptPrefix)) {
			c.Next()
			return
		}

		_, claims, ok := CurrentUser(c)
		if !ok || claims == nil {
			abortWithError(c, domain.ErrUnauthenticated)
			return
		}

		if err := csrf.Validate(c.Request.Context(), claims.ID, presentedCSRFToken(c)); err != nil {
			abortWithError(c, err)
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// presentedCSRFToken reads the token from the header, a form field or a JSON body field
func presentedCSRFToken(c *gin.Context) string {
	if token := c.GetHeader(CSRFHeader); token != "" {
		return token
	}

	switch c.ContentType() {
	case gin.MIMEPOSTForm, gin.MIMEMultipartPOSTForm:
		return c.PostForm(CSRFTokenCookie)
	case gin.MIMEJSON:
		return csrfFromJSONBody(c)
	}
	return ""
}

// csrfFromJSONBody peeks at the body and restores it for the handler
func csrfFromJSONBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCSRFBodyBytes))
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var payload struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.CSRFToken
}
