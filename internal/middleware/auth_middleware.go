// internal/middleware/auth_middleware.go
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"salesbridge-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	apiToken string
}

func NewAuthMiddleware(apiToken string) *AuthMiddleware {
	return &AuthMiddleware{apiToken: apiToken}
}

// Auth validates the static bearer token shared with the CRM callers.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.apiToken == "" {
			response.Error(c, http.StatusInternalServerError, "api token not configured", nil)
			return
		}

		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.apiToken)) != 1 {
			response.Error(c, http.StatusUnauthorized, "invalid token", nil)
			return
		}

		c.Next()
	}
}

// extractToken reads the bearer token from the Authorization header,
// falling back to the X-API-Token header.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.GetHeader("X-API-Token")
}
