package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
)

// securityHeaders sets standard security response headers on every
// response.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// bearerAuth enforces an optional shared-secret bearer token on every
// route in the group it is attached to. When cfg is nil or disabled, it
// is a no-op — authorization is optional per the external-interface
// contract, not mandatory.
func bearerAuth(cfg *config.AuthConfig) gin.HandlerFunc {
	if cfg == nil || !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	token := os.Getenv(cfg.TokenEnv)
	return func(c *gin.Context) {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		presented := strings.TrimPrefix(header, prefix)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}
		c.Next()
	}
}

// requestedBy extracts the acting user for CreatedBy/RequestedBy fields.
// Priority: X-Forwarded-User (set by an upstream auth proxy) > an
// explicit username form/JSON field > "api-client".
func requestedBy(c *gin.Context, explicit string) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if explicit != "" {
		return explicit
	}
	return "api-client"
}
