package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	// LockDuration is the time we hold the key while the request runs
	LockDuration = 2 * time.Minute
	// RetentionDuration is how long we keep the response
	RetentionDuration = 24 * time.Hour

	processingMarker = "processing"
)

var (
	redisGet   = redis.Get
	redisSet   = redis.Set
	redisSetNX = redis.SetNX
	redisDel   = redis.Del
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

type storedResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key so a retried decide or confirm never moves funds twice.
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		scope := c.GetString(FlowHolderKey)
		if scope == "" {
			scope = c.ClientIP()
		}
		storageKey := fmt.Sprintf("idempotency:%s:%s:%s:%s", scope, c.Request.Method, c.FullPath(), key)
		ctx := c.Request.Context()

		val, err := redisGet(ctx, storageKey)
		if err == nil {
			if val == processingMarker {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"code":    "ERR_IDEMPOTENCY_CONFLICT",
					"message": "Request already in progress",
				})
				return
			}
			var stored storedResponse
			if jsonErr := json.Unmarshal([]byte(val), &stored); jsonErr != nil || stored.Status == 0 {
				stored = storedResponse{Status: http.StatusOK, Body: val}
			}
			c.Header("Content-Type", "application/json")
			c.Header("X-Idempotency-Hit", "true")
			c.String(stored.Status, stored.Body)
			c.Abort()
			return
		} else if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "Idempotency store unavailable, processing without replay", zap.Error(err))
			c.Next()
			return
		}

		acquired, err := redisSetNX(ctx, storageKey, processingMarker, LockDuration)
		if err != nil || !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code":    "ERR_IDEMPOTENCY_CONFLICT",
				"message": "Request in progress",
			})
			return
		}

		w := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			encoded, _ := json.Marshal(storedResponse{Status: status, Body: w.body.String()})
			_ = redisSet(ctx, storageKey, string(encoded), RetentionDuration)
		} else {
			// let the client retry failures with the same key
			_ = redisDel(ctx, storageKey)
		}
	}
}
