package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/interfaces/http/middleware"
	"stablepay.backend/internal/interfaces/http/response"
	"stablepay.backend/internal/usecases"
)

type flowService interface {
	Start(ctx context.Context, input usecases.StartFlowInput) (*usecases.StartFlowOutput, error)
	Get(ctx context.Context, id uuid.UUID) (*usecases.FlowView, error)
	Decide(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error)
	Confirm(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error)
	Abandon(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error)
}

// FlowHandler drives a payer's settlement flow
type FlowHandler struct {
	flows flowService
}

// NewFlowHandler creates a new flow handler
func NewFlowHandler(flows *usecases.PaymentFlowUsecase) *FlowHandler {
	return &FlowHandler{flows: flows}
}

type StartFlowRequest struct {
	Holder  string `json:"holder" binding:"required"`
	Payload string `json:"payload" binding:"required"`
}

// StartFlow decodes a scanned payload and opens a flow
// POST /api/v1/flows
func (h *FlowHandler) StartFlow(c *gin.Context) {
	var req StartFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	out, err := h.flows.Start(c.Request.Context(), usecases.StartFlowInput{Holder: req.Holder, Payload: req.Payload})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, out)
}

// GetFlow returns a flow with its audit trail
// GET /api/v1/flows/:id
func (h *FlowHandler) GetFlow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid flow ID"))
		return
	}

	view, err := h.flows.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// Decide reads balances and picks a plan. A direct plan settles in the
// same call; fallback and swap plans come back as 202 awaiting confirm.
// POST /api/v1/flows/:id/decide
func (h *FlowHandler) Decide(c *gin.Context) {
	h.drive(c, h.flows.Decide)
}

// Confirm executes an accepted fallback or swap plan
// POST /api/v1/flows/:id/confirm
func (h *FlowHandler) Confirm(c *gin.Context) {
	h.drive(c, h.flows.Confirm)
}

// Abandon cancels a live flow
// POST /api/v1/flows/:id/abandon
func (h *FlowHandler) Abandon(c *gin.Context) {
	h.drive(c, h.flows.Abandon)
}

func (h *FlowHandler) drive(c *gin.Context, step func(ctx context.Context, id uuid.UUID, holder string) (*entities.SettlementFlow, error)) {
	id, ok := middleware.GetFlowID(c)
	if !ok {
		response.Error(c, domainerrors.Unauthorized("flow token required"))
		return
	}
	holder, _ := middleware.GetFlowHolder(c)

	flow, err := step(c.Request.Context(), id, holder)
	switch {
	case errors.Is(err, usecases.ErrConfirmationPending):
		response.Success(c, http.StatusAccepted, gin.H{
			"flow":    flow,
			"message": "Swap submitted. Waiting for the converted balance to arrive, confirm again shortly.",
		})
		return
	case err != nil:
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if flow.State == entities.FlowStateConfirm {
		status = http.StatusAccepted
	}
	response.Success(c, status, gin.H{"flow": flow})
}
