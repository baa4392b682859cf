package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const userIDKey = "user_id"

// Auth returns an API key authentication middleware
func Auth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip auth if no API key configured
		if apiKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" && websocket.IsWebSocketUpgrade(c.Request) {
			key = c.Query("api_key")
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

// RequireUser rejects requests without an X-User-ID header. Papers and
// conversations are scoped to this identity. Browsers cannot set headers on
// a websocket handshake, so upgrades may pass user_id as a query parameter.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" && websocket.IsWebSocketUpgrade(c.Request) {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the identity stored by RequireUser
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
