package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type readinessProbe interface {
	Ready() bool
}

// HealthHandler reports liveness and quote readiness
type HealthHandler struct {
	quotes readinessProbe
}

func NewHealthHandler(quotes readinessProbe) *HealthHandler {
	return &HealthHandler{quotes: quotes}
}

// Health reports liveness. quoteReady stays false until the broker
// exchange list has loaded.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ready := h.quotes.Ready()
	status := "ok"
	if !ready {
		status = "starting"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"quoteReady": ready,
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}
