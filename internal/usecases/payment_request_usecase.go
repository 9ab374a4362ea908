package usecases

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/pkg/logger"
)

// PaymentRequestUsecase lets merchants build payment payloads and payers
// preview a scanned one before starting a flow.
type PaymentRequestUsecase struct {
	codec    *PaymentPayloadCodec
	registry *TokenRegistry
}

func NewPaymentRequestUsecase(codec *PaymentPayloadCodec, registry *TokenRegistry) *PaymentRequestUsecase {
	return &PaymentRequestUsecase{codec: codec, registry: registry}
}

type CreatePaymentRequestInput struct {
	MerchantAddress string `json:"merchant" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	CurrencyCode    string `json:"token" binding:"required"`
	Description     string `json:"description"`
	AllowFallback   bool   `json:"allowFallback"`
}

type PreviewPaymentRequestOutput struct {
	Request entities.PaymentRequest  `json:"request"`
	Token   entities.TokenDescriptor `json:"token"`
}

// CreatePaymentRequest validates the merchant's input and renders the QR
// payload and payment link.
func (uc *PaymentRequestUsecase) CreatePaymentRequest(ctx context.Context, input CreatePaymentRequestInput) (*EncodedPayment, error) {
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q is not a decimal", domainerrors.ErrInvalidPayload, input.Amount)
	}
	encoded, err := uc.codec.Encode(entities.PaymentRequest{
		MerchantAddress: input.MerchantAddress,
		Amount:          amount,
		CurrencyCode:    input.CurrencyCode,
		Description:     input.Description,
		AllowFallback:   input.AllowFallback,
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Payment request encoded",
		zap.String("merchant", encoded.Request.MerchantAddress),
		zap.String("currency", encoded.Request.CurrencyCode),
		zap.String("amount", encoded.Request.Amount.String()),
	)
	return encoded, nil
}

// PreviewPaymentRequest decodes a scanned payload or link without opening a flow.
func (uc *PaymentRequestUsecase) PreviewPaymentRequest(ctx context.Context, raw string) (*PreviewPaymentRequestOutput, error) {
	req, err := uc.codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	token, err := uc.registry.Resolve(req.CurrencyCode)
	if err != nil {
		return nil, err
	}
	return &PreviewPaymentRequestOutput{Request: req, Token: token}, nil
}
