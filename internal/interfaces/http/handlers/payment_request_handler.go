package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/interfaces/http/response"
	"stablepay.backend/internal/usecases"
)

type paymentRequestService interface {
	CreatePaymentRequest(ctx context.Context, input usecases.CreatePaymentRequestInput) (*usecases.EncodedPayment, error)
	PreviewPaymentRequest(ctx context.Context, raw string) (*usecases.PreviewPaymentRequestOutput, error)
}

type PaymentRequestHandler struct {
	usecase paymentRequestService
}

func NewPaymentRequestHandler(usecase *usecases.PaymentRequestUsecase) *PaymentRequestHandler {
	return &PaymentRequestHandler{usecase: usecase}
}

type PreviewPaymentRequestRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// EncodePaymentRequest builds the QR payload and payment link for a merchant
// POST /api/v1/payment-requests/encode
func (h *PaymentRequestHandler) EncodePaymentRequest(c *gin.Context) {
	var input usecases.CreatePaymentRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	result, err := h.usecase.CreatePaymentRequest(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// PreviewPaymentRequest decodes a scanned payload without starting a flow
// POST /api/v1/payment-requests/preview
func (h *PaymentRequestHandler) PreviewPaymentRequest(c *gin.Context) {
	var req PreviewPaymentRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	preview, err := h.usecase.PreviewPaymentRequest(c.Request.Context(), req.Payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preview)
}
