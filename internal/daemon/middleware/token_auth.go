package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenAuthConfig contains the configuration for token-based authentication.
type TokenAuthConfig struct {
	Token string
}

// TokenAuth guards routes with a shared bearer token. An empty token
// disables authentication, which is the default for localhost binds.
func TokenAuth(config TokenAuthConfig) gin.HandlerFunc {
	if config.Token == "" {
		slog.Info("auth disabled")
		return func(c *gin.Context) {
			c.Next()
		}
	}
	slog.Info("auth enabled")

	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}

		if token != config.Token {
			slog.Debug("invalid auth token", "ip", c.ClientIP(), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
			})
			return
		}

		c.Set("authenticated", true)
		c.Next()
	}
}
