package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyCapability is the key for storing the capability in gin context
	ContextKeyCapability = "capability"
	// ContextKeyCallerAddr is the key for storing the authenticated caller address
	ContextKeyCallerAddr = "authCallerAddr"
)

// Middleware extracts and resolves a capability token from the request.
// Sets capability and authCallerAddr in context if valid.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.GetHeader("X-Capability-Token")
		}

		if token != "" {
			cap, err := m.Resolve(c.Request.Context(), token)
			if err == nil {
				c.Set(ContextKeyCapability, cap)
				c.Set(ContextKeyCallerAddr, cap.OwnerAddr)
			}
		}

		c.Next()
	}
}

// RequireAuth middleware rejects requests without a valid capability token
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyCapability); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Capability token required. Include 'Authorization: Bearer agt_...' header.",
			})
			return
		}
		c.Next()
	}
}

// GetCapability returns the capability from context (if authenticated)
func GetCapability(c *gin.Context) (*Capability, bool) {
	cap, exists := c.Get(ContextKeyCapability)
	if !exists {
		return nil, false
	}
	return cap.(*Capability), true
}

// CallerAddress returns the authenticated caller's address, or "" if anonymous
func CallerAddress(c *gin.Context) string {
	addr, exists := c.Get(ContextKeyCallerAddr)
	if !exists {
		return ""
	}
	return addr.(string)
}

// IsAuthenticated checks if the request carries a valid capability
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyCapability)
	return exists
}
