package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"program-chat-service/internal/auth"
)

// UserEmailKey is the gin context key carrying the authenticated identity.
const UserEmailKey = "userEmail"

// AuthMiddleware validates the Authorization header using the auth verifier.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		email, err := verifier.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserEmailKey, email)
		c.Next()
	}
}
