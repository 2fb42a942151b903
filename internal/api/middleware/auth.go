package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/shared/paths"
)

const (
	// HeaderInternalToken carries the shared gateway token
	HeaderInternalToken = "X-Internal-Token"
	// DefaultUserHeader carries the authenticated caller id
	DefaultUserHeader = "X-User-ID"

	callerKey = "terminal.caller"
)

// Identify reads the caller id set by the upstream gateway. Requests without
// the header pass through anonymous; a malformed id is rejected.
func Identify(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultUserHeader
	}
	return func(c *gin.Context) {
		caller := strings.TrimSpace(c.GetHeader(header))
		if caller == "" {
			c.Next()
			return
		}
		if err := paths.ValidateOwnerID(caller); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid caller identity",
				"details": err.Error(),
			})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireToken rejects requests that do not present the shared token, either
// as a bearer token or in X-Internal-Token. An empty token disables the check.
func RequireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		presented := c.GetHeader(HeaderInternalToken)
		if presented == "" {
			auth := c.GetHeader("Authorization")
			if bearer, ok := strings.CutPrefix(auth, "Bearer "); ok {
				presented = bearer
			}
		}
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

// RequireIdentity aborts requests that Identify left anonymous.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Caller(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

// Caller returns the identified caller for the request
func Caller(c *gin.Context) (string, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return "", false
	}
	caller, ok := v.(string)
	return caller, ok && caller != ""
}
