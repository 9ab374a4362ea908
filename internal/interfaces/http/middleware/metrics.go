package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"stablepay.backend/pkg/metrics"
)

// MetricsMiddleware records request latency and status per route
func MetricsMiddleware(recorder metrics.Recorder) gin.HandlerFunc {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		recorder.ObserveLatency(metrics.HTTPRequestDuration, time.Since(start), map[string]string{"kind": route})
		recorder.IncCounter(metrics.HTTPRequestDuration, map[string]string{
			"kind":   route,
			"result": strconv.Itoa(c.Writer.Status()),
		})
	}
}
