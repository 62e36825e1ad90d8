// Package auth authenticates API requests and scopes them to an owner.
package auth

import (
	"crypto/subtle"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

const (
	apiKeyHeader  = "X-API-Key"
	ownerHeader   = "X-Owner-ID"
	ownerQuery    = "owner_id"
	ownerCtxKey   = "owner_id"
	maxOwnerIDLen = 128
)

// Owner ids end up in object keys and NATS subjects, so they are limited to a
// conservative alphabet.
var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9@_+-][A-Za-z0-9@._+-]*$`)

// APIKeyMiddleware validates the API key from the X-API-Key header.
// If apiKey is empty, authentication is disabled.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}

// OwnerMiddleware reads the owner from the X-Owner-ID header, or the owner_id
// query parameter for clients that cannot set headers (browser WebSockets).
func OwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader(ownerHeader)
		if owner == "" {
			owner = c.Query(ownerQuery)
		}
		if !ValidOwnerID(owner) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "missing or invalid owner id",
			})
			return
		}
		c.Set(ownerCtxKey, owner)
		c.Next()
	}
}

func ValidOwnerID(owner string) bool {
	return len(owner) <= maxOwnerIDLen && ownerPattern.MatchString(owner)
}

// OwnerID returns the owner set by OwnerMiddleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerCtxKey)
}
