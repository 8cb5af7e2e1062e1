package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "auth.user_id"

// Middleware trusts the identity header injected by the edge gateway and
// stores the caller's user id on the gin context. Infra endpoints stay open.
// When `required` is false (local development), unauthenticated reads pass
// through and only mutating routes demand an identity.
func Middleware(header string, required bool) gin.HandlerFunc {
	if header == "" {
		header = "X-User-ID"
	}
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if p == "/healthz" || p == "/readyz" {
			c.Next()
			return
		}
		raw := strings.TrimSpace(c.GetHeader(header))
		if raw != "" {
			if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
				c.Set(userIDKey, id)
			}
		}
		if _, ok := c.Get(userIDKey); !ok {
			needsIdentity := required || c.Request.Method != http.MethodGet
			if needsIdentity && strings.HasPrefix(p, "/api/") && p != "/api/users/register" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
				return
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated caller's id, or 0 when absent.
func UserID(c *gin.Context) uint64 {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uint64); ok {
			return id
		}
	}
	return 0
}
