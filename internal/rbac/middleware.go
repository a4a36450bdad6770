package rbac

import (
	"net/http"

	"callqa/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Passthrough stands in for RequireAnyRole when auth is disabled.
func Passthrough() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

// AgentScope returns the agent id an authenticated agent is limited to, or
// "" when the caller may see every agent's calls.
func AgentScope(c *gin.Context) string {
	id, ok := auth.FromContext(c.Request.Context())
	if !ok || id.Role != RoleAgent {
		return ""
	}
	return id.AgentID
}
