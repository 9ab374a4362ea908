package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"stablepay.backend/pkg/jwt"
	"stablepay.backend/pkg/logger"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens
	BearerPrefix = "Bearer "
	// FlowHolderKey is the context key for the wallet that owns the flow
	FlowHolderKey = "flowHolder"
	// FlowIDKey is the context key for the authorized flow id
	FlowIDKey = "flowId"
)

type flowTokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// FlowTokenMiddleware authorizes requests against the flow token issued at
// flow start. The token must belong to the flow named by the :id route param.
func FlowTokenMiddleware(validator flowTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			logger.Warn(c.Request.Context(), "Flow request rejected: authorization header missing", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "ERR_UNAUTHORIZED",
				"message": "Authorization header is required",
			})
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "ERR_UNAUTHORIZED",
				"message": "Invalid authorization format. Use: Bearer <token>",
			})
			return
		}

		claims, err := validator.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				message = "Token has expired"
			}
			logger.Warn(c.Request.Context(), "Flow request rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "ERR_UNAUTHORIZED",
				"message": message,
			})
			return
		}

		if param := c.Param("id"); param != "" {
			id, err := uuid.Parse(param)
			if err != nil || id != claims.FlowID {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"code":    "ERR_FORBIDDEN",
					"message": "Token does not grant access to this flow",
				})
				return
			}
		}

		c.Set(FlowHolderKey, claims.Holder)
		c.Set(FlowIDKey, claims.FlowID)
		c.Request = c.Request.WithContext(logger.WithFlowID(c.Request.Context(), claims.FlowID.String()))

		c.Next()
	}
}

// GetFlowHolder gets the authorized holder address from context
func GetFlowHolder(c *gin.Context) (string, bool) {
	holder, exists := c.Get(FlowHolderKey)
	if !exists {
		return "", false
	}
	return holder.(string), true
}

// GetFlowID gets the authorized flow id from context
func GetFlowID(c *gin.Context) (uuid.UUID, bool) {
	id, exists := c.Get(FlowIDKey)
	if !exists {
		return uuid.Nil, false
	}
	return id.(uuid.UUID), true
}
