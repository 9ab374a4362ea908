package entities

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var errNegativeAmount = errors.New("amount must not be negative")

// TokenDescriptor binds a currency code to its stable token contract.
type TokenDescriptor struct {
	CurrencyCode    string `json:"currencyCode"`
	ContractAddress string `json:"contractAddress"`
	Decimals        int32  `json:"decimals"`
}

// ToMinorUnits scales a decimal amount into the token's integer representation.
// Digits beyond the token precision are truncated.
func (t TokenDescriptor) ToMinorUnits(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, errNegativeAmount
	}
	return amount.Shift(t.Decimals).Truncate(0).BigInt(), nil
}

// FromMinorUnits converts a raw on-chain integer into a decimal amount.
func (t TokenDescriptor) FromMinorUnits(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -t.Decimals)
}

// SameContract reports whether both descriptors point at the same token contract.
func (t TokenDescriptor) SameContract(other TokenDescriptor) bool {
	return strings.EqualFold(t.ContractAddress, other.ContractAddress)
}

// TradingPair identifies an exchange that can trade two tokens.
type TradingPair struct {
	ExchangeProvider string   `json:"exchangeProvider"`
	ExchangeID       [32]byte `json:"exchangeId"`
	Assets           []string `json:"assets"`
}

// BuiltTx is an unsigned call ready for submission by the holder's account.
type BuiltTx struct {
	From string
	To   string
	Data []byte
}

// BalanceSheet holds a holder's balance per currency code.
type BalanceSheet map[string]decimal.Decimal

// Of returns the balance for a currency code, zero when absent.
func (b BalanceSheet) Of(code string) decimal.Decimal {
	if b == nil {
		return decimal.Zero
	}
	if v, ok := b[strings.ToUpper(code)]; ok {
		return v
	}
	return decimal.Zero
}
