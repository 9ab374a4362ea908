package usecases

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	"stablepay.backend/pkg/logger"
)

// FeePrecision is the number of decimals both settlement legs are cut to.
const FeePrecision = 3

var maxFeeRate = decimal.RequireFromString("0.5")

// FeeSplit is the nominal division of a settled amount
type FeeSplit struct {
	Fee        decimal.Decimal `json:"fee"`
	ToMerchant decimal.Decimal `json:"toMerchant"`
}

// Settlement is what FeeSplitter.Settle actually transferred
type Settlement struct {
	MerchantTxHash string          `json:"merchantTxHash"`
	FeeTxHash      string          `json:"feeTxHash,omitempty"`
	ToMerchant     decimal.Decimal `json:"toMerchant"`
	NominalFee     decimal.Decimal `json:"nominalFee"`
	FeeTransferred decimal.Decimal `json:"feeTransferred"`
}

// Outcome converts the settlement into the flow's terminal record
func (s Settlement) Outcome() entities.TransferOutcome {
	return entities.TransferOutcome{
		TxHash:        s.MerchantTxHash,
		FeeTxHash:     s.FeeTxHash,
		SettledAmount: s.ToMerchant,
		FeeAmount:     s.FeeTransferred,
	}
}

// FeeError reports a failed platform fee transfer after the merchant was paid
type FeeError struct {
	Settlement Settlement
	Err        error
}

func (e *FeeError) Error() string {
	return fmt.Sprintf("merchant paid in %s but fee transfer failed: %v", e.Settlement.MerchantTxHash, e.Err)
}

func (e *FeeError) Unwrap() error { return e.Err }

// FeeSplitter pays the merchant and routes the platform fee.
type FeeSplitter struct {
	balances   TokenBalanceReader
	transfers  *TransferExecutor
	rate       decimal.Decimal
	feeAddress string
}

func NewFeeSplitter(balances TokenBalanceReader, transfers *TransferExecutor, rate decimal.Decimal, feeAddress string) (*FeeSplitter, error) {
	if rate.IsNegative() || rate.GreaterThan(maxFeeRate) {
		return nil, fmt.Errorf("platform fee rate %s out of range [0, %s]", rate, maxFeeRate)
	}
	if !common.IsHexAddress(feeAddress) {
		return nil, fmt.Errorf("invalid platform fee address %q", feeAddress)
	}
	return &FeeSplitter{
		balances:   balances,
		transfers:  transfers,
		rate:       rate,
		feeAddress: feeAddress,
	}, nil
}

// Rate returns the configured platform fee rate
func (f *FeeSplitter) Rate() decimal.Decimal {
	return f.rate
}

// ComputeFee splits amount into fee and merchant share, both cut to FeePrecision.
func ComputeFee(rate, amount decimal.Decimal) FeeSplit {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	fee := rate.Mul(amount).Truncate(FeePrecision)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return FeeSplit{
		Fee:        fee,
		ToMerchant: amount.Sub(fee).Truncate(FeePrecision),
	}
}

// Settle pays amount minus fee to merchant, then transfers the fee clamped to
// what the holder still holds.
func (f *FeeSplitter) Settle(ctx context.Context, token entities.TokenDescriptor, merchant string, amount decimal.Decimal, holder string) (Settlement, error) {
	split := ComputeFee(f.rate, amount)
	settlement := Settlement{ToMerchant: split.ToMerchant, NominalFee: split.Fee, FeeTransferred: decimal.Zero}

	preBalance, err := f.balances.BalanceOf(ctx, token, holder)
	if err != nil {
		return settlement, err
	}

	merchantHash, err := f.transfers.Transfer(ctx, token, merchant, split.ToMerchant, holder)
	if err != nil {
		return settlement, err
	}
	settlement.MerchantTxHash = merchantHash

	balanceAfter := preBalance.Sub(split.ToMerchant)
	feeToSend := decimal.Min(split.Fee, balanceAfter).Truncate(FeePrecision)
	if feeToSend.IsNegative() {
		feeToSend = decimal.Zero
	}
	if feeToSend.LessThan(split.Fee) {
		logger.Warn(ctx, "Platform fee clamped to remaining balance",
			zap.String("token", token.CurrencyCode),
			zap.String("nominal_fee", split.Fee.String()),
			zap.String("fee_sent", feeToSend.String()),
		)
	}
	if !feeToSend.IsPositive() {
		return settlement, nil
	}

	feeHash, err := f.transfers.Transfer(ctx, token, f.feeAddress, feeToSend, holder)
	if err != nil {
		return settlement, &FeeError{Settlement: settlement, Err: err}
	}
	settlement.FeeTxHash = feeHash
	settlement.FeeTransferred = feeToSend
	return settlement, nil
}
