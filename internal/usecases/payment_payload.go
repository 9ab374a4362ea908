package usecases

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

const paymentLinkDataParam = "data"

// PaymentPayloadCodec converts payment requests to and from the JSON payload
// carried by QR codes and payment links.
type PaymentPayloadCodec struct {
	registry *TokenRegistry
	validate *validator.Validate
	linkBase string
}

func NewPaymentPayloadCodec(registry *TokenRegistry, linkBase string) *PaymentPayloadCodec {
	return &PaymentPayloadCodec{
		registry: registry,
		validate: validator.New(),
		linkBase: linkBase,
	}
}

// EncodedPayment is a merchant request ready to be shown as a QR or link
type EncodedPayment struct {
	Payload string                  `json:"payload"`
	Link    string                  `json:"link"`
	Request entities.PaymentRequest `json:"request"`
}

// Encode validates req and renders its payload and payment link.
func (c *PaymentPayloadCodec) Encode(req entities.PaymentRequest) (*EncodedPayment, error) {
	token, err := c.registry.Resolve(req.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	payload := entities.PaymentPayload{
		Merchant:      req.MerchantAddress,
		Amount:        req.Amount.String(),
		Token:         token.CurrencyCode,
		Description:   req.Description,
		AllowFallback: req.AllowFallback,
	}
	normalized, err := c.toRequest(payload)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EncodedPayment{
		Payload: string(raw),
		Link:    BuildPaymentLink(c.linkBase, string(raw)),
		Request: normalized,
	}, nil
}

// Decode accepts a raw JSON payload or a link carrying it in the data parameter.
func (c *PaymentPayloadCodec) Decode(raw string) (entities.PaymentRequest, error) {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "{") {
		extracted, err := extractLinkPayload(body)
		if err != nil {
			return entities.PaymentRequest{}, err
		}
		body = extracted
	}

	var payload entities.PaymentPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return entities.PaymentRequest{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	return c.toRequest(payload)
}

func (c *PaymentPayloadCodec) toRequest(payload entities.PaymentPayload) (entities.PaymentRequest, error) {
	payload.Merchant = strings.TrimSpace(payload.Merchant)
	payload.Amount = strings.TrimSpace(payload.Amount)
	payload.Token = strings.TrimSpace(payload.Token)

	if err := c.validate.Struct(payload); err != nil {
		return entities.PaymentRequest{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || !amount.IsPositive() {
		return entities.PaymentRequest{}, fmt.Errorf("%w: amount must be a positive decimal", domainerrors.ErrInvalidPayload)
	}
	token, err := c.registry.Resolve(payload.Token)
	if err != nil {
		return entities.PaymentRequest{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	if !amount.Truncate(token.Decimals).Equal(amount) {
		return entities.PaymentRequest{}, fmt.Errorf("%w: amount has more than %d decimals", domainerrors.ErrInvalidPayload, token.Decimals)
	}

	return entities.PaymentRequest{
		MerchantAddress: common.HexToAddress(payload.Merchant).Hex(),
		Amount:          amount,
		CurrencyCode:    token.CurrencyCode,
		Description:     payload.Description,
		AllowFallback:   payload.AllowFallback,
	}, nil
}

// BuildPaymentLink appends the payload as the data query parameter of base.
func BuildPaymentLink(base, payload string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + paymentLinkDataParam + "=" + url.QueryEscape(payload)
}

// extractLinkPayload finds the data parameter of a payment link. Links
// wrapped by a wallet (…?url=<escaped link>) are unwrapped a few levels deep.
func extractLinkPayload(link string) (string, error) {
	if data, ok := findDataParam(link, 3); ok {
		return data, nil
	}
	return "", fmt.Errorf("%w: no %s parameter in link", domainerrors.ErrInvalidPayload, paymentLinkDataParam)
}

func findDataParam(link string, depth int) (string, bool) {
	if depth <= 0 {
		return "", false
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	query := parsed.Query()
	if data := strings.TrimSpace(query.Get(paymentLinkDataParam)); strings.HasPrefix(data, "{") {
		return data, true
	}
	for _, values := range query {
		for _, value := range values {
			if strings.Contains(value, "?") {
				if data, ok := findDataParam(value, depth-1); ok {
					return data, true
				}
			}
		}
	}
	return "", false
}
