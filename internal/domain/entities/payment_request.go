package entities

import (
	"github.com/shopspring/decimal"
)

// PaymentRequest is a merchant's request to be paid, decoded from a scanned
// or link-carried payload. It is never mutated after decoding.
type PaymentRequest struct {
	MerchantAddress string          `json:"merchant"`
	Amount          decimal.Decimal `json:"amount"`
	CurrencyCode    string          `json:"token"`
	Description     string          `json:"description,omitempty"`
	AllowFallback   bool            `json:"allowFallback"`
}

// PaymentPayload is the wire form of a PaymentRequest as carried by QR codes
// and the `data` query parameter of payment links.
type PaymentPayload struct {
	Merchant      string `json:"merchant" validate:"required,eth_addr"`
	Amount        string `json:"amount" validate:"required,numeric"`
	Token         string `json:"token" validate:"required,alphanum,min=2,max=10"`
	Description   string `json:"description,omitempty" validate:"max=280"`
	AllowFallback bool   `json:"allowFallback"`
}
