package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/code-100-precent/calltrack/pkg/response"
	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "X-API-Key"

var errInvalidAPIKey = errors.New("invalid api key")

// APIKeyAuth guards the read API with a shared key. An empty key rejects everything.
func APIKeyAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if secret == "" || key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			response.AbortWithStatusJSON(c, http.StatusUnauthorized, errInvalidAPIKey)
			return
		}
		c.Next()
	}
}
