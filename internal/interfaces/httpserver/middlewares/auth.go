package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tutor-server/services/voice-api/internal/infrastructure/auth"
)

// IdentityKey is the context key for the verified caller identity.
const IdentityKey = "identity"

// RequireAuth verifies the bearer token and stores the identity in the
// context. Verification failures abort with 401; there are no retries.
func RequireAuth(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing bearer token", "type": "unauthorized_error"},
			})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid token", "type": "unauthorized_error"},
			})
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// GetIdentity retrieves the verified identity from the context.
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}

// BearerToken extracts the caller token from the Authorization header or,
// for websocket upgrades where browsers cannot set headers, the token query
// parameter.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}
