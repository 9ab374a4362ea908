package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"stablepay.backend/pkg/crypto"
	"stablepay.backend/pkg/logger"
)

// OperatorKeyHeader carries the operator API key for admin routes
const OperatorKeyHeader = "X-Operator-Key"

var checkOperatorKey = crypto.CheckOperatorKey

// OperatorKeyMiddleware guards admin routes with a bcrypt-hashed operator key.
// An empty hash disables the routes entirely.
func OperatorKeyMiddleware(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    "ERR_ADMIN_DISABLED",
				"message": "Operator access is not configured",
			})
			return
		}
		if !checkOperatorKey(c.GetHeader(OperatorKeyHeader), keyHash) {
			logger.Warn(c.Request.Context(), "Operator key rejected", zap.String("path", c.Request.URL.Path), zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "ERR_UNAUTHORIZED",
				"message": "Invalid operator key",
			})
			return
		}
		c.Next()
	}
}
