package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/interfaces/http/response"
	"stablepay.backend/internal/usecases"
)

type flowAdminService interface {
	List(ctx context.Context, state entities.FlowState, page, limit int) (*usecases.FlowListOutput, error)
	ExpireStale(ctx context.Context) (int, error)
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	flows flowAdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(flows *usecases.PaymentFlowUsecase) *AdminHandler {
	return &AdminHandler{flows: flows}
}

// ListFlows lists flows, optionally filtered by state
// GET /api/v1/admin/flows?state=CONFIRM&page=1&limit=20
func (h *AdminHandler) ListFlows(c *gin.Context) {
	state := entities.FlowState(strings.ToUpper(c.Query("state")))
	if state != "" && !state.Valid() {
		response.Error(c, domainerrors.BadRequest("invalid state filter"))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	out, err := h.flows.List(c.Request.Context(), state, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// ExpireFlows runs the stale flow sweep immediately
// POST /api/v1/admin/flows/expire
func (h *AdminHandler) ExpireFlows(c *gin.Context) {
	expired, err := h.flows.ExpireStale(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"expired": expired})
}
