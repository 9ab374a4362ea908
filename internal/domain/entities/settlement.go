package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSlippageBps bounds swap shortfall when a plan does not specify one.
const DefaultSlippageBps = 100

// Quote is a single price observation. It is only valid for the request that
// produced it.
type Quote struct {
	SourceToken  TokenDescriptor `json:"sourceToken"`
	TargetToken  TokenDescriptor `json:"targetToken"`
	SourceAmount decimal.Decimal `json:"sourceAmount"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	ObservedAt   time.Time       `json:"observedAt"`
}

// PlanKind enumerates settlement strategies
type PlanKind string

const (
	PlanKindDirect           PlanKind = "DIRECT_TRANSFER"
	PlanKindFallback         PlanKind = "FALLBACK_TRANSFER"
	PlanKindSwapThenTransfer PlanKind = "SWAP_THEN_TRANSFER"
)

// SettlementPlan is the strategy chosen for one payment request.
// Direct plans carry Token and Amount; fallback and swap plans carry Quote.
type SettlementPlan struct {
	Kind        PlanKind        `json:"kind"`
	Token       TokenDescriptor `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	Quote       *Quote          `json:"quote,omitempty"`
	SlippageBps int64           `json:"slippageBps,omitempty"`
}

// NeedsConfirmation reports whether the payer must approve the plan before
// any funds move.
func (p SettlementPlan) NeedsConfirmation() bool {
	return p.Kind == PlanKindFallback || p.Kind == PlanKindSwapThenTransfer
}

// DirectTransfer builds a plan paying the merchant in the requested token.
func DirectTransfer(token TokenDescriptor, amount decimal.Decimal) SettlementPlan {
	return SettlementPlan{Kind: PlanKindDirect, Token: token, Amount: amount}
}

// FallbackTransfer builds a plan paying the quoted source amount in the fallback token.
func FallbackTransfer(q Quote) SettlementPlan {
	return SettlementPlan{Kind: PlanKindFallback, Token: q.SourceToken, Amount: q.SourceAmount, Quote: &q}
}

// SwapThenTransfer builds a plan that swaps into the target token before paying.
func SwapThenTransfer(q Quote, slippageBps int64) SettlementPlan {
	return SettlementPlan{Kind: PlanKindSwapThenTransfer, Token: q.TargetToken, Amount: q.TargetAmount, Quote: &q, SlippageBps: slippageBps}
}

// TransferOutcome is the terminal record of a settled flow.
type TransferOutcome struct {
	TxHash        string          `json:"txHash"`
	FeeTxHash     string          `json:"feeTxHash,omitempty"`
	SettledAmount decimal.Decimal `json:"settledAmount"`
	FeeAmount     decimal.Decimal `json:"feeAmount"`
}

// SwapReceipt describes the approval and swap submitted for a conversion.
type SwapReceipt struct {
	ApprovalTxHash string          `json:"approvalTxHash"`
	TxHash         string          `json:"txHash"`
	ExpectedOut    decimal.Decimal `json:"expectedOut"`
	MinOut         decimal.Decimal `json:"minOut"`
}

// ConfirmResult is what the confirmer observed. TimedOut is a result, not an error.
type ConfirmResult struct {
	Observed decimal.Decimal `json:"observed"`
	Met      bool            `json:"met"`
	TimedOut bool            `json:"timedOut"`
}
