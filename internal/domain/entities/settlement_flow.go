package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// FlowState represents the payer-facing settlement state machine
type FlowState string

const (
	FlowStateInit      FlowState = "INIT"
	FlowStateScanned   FlowState = "SCANNED"
	FlowStateDecided   FlowState = "DECIDED"
	FlowStateConfirm   FlowState = "CONFIRM"
	FlowStateDone      FlowState = "DONE"
	FlowStateAbandoned FlowState = "ABANDONED"
)

// IsTerminal reports whether no further transition is allowed.
func (s FlowState) IsTerminal() bool {
	return s == FlowStateDone || s == FlowStateAbandoned
}

// Valid reports whether s is one of the known states.
func (s FlowState) Valid() bool {
	switch s {
	case FlowStateInit, FlowStateScanned, FlowStateDecided, FlowStateConfirm, FlowStateDone, FlowStateAbandoned:
		return true
	}
	return false
}

var flowTransitions = map[FlowState][]FlowState{
	FlowStateInit:    {FlowStateScanned, FlowStateAbandoned},
	FlowStateScanned: {FlowStateDecided, FlowStateScanned, FlowStateAbandoned},
	FlowStateDecided: {FlowStateConfirm, FlowStateDone, FlowStateScanned, FlowStateAbandoned},
	FlowStateConfirm: {FlowStateDone, FlowStateScanned, FlowStateAbandoned},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to FlowState) bool {
	for _, next := range flowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SettlementFlow is the persisted record of one payment request being settled.
type SettlementFlow struct {
	ID               uuid.UUID        `json:"id"`
	HolderAddress    string           `json:"holderAddress"`
	Request          PaymentRequest   `json:"request"`
	State            FlowState        `json:"state"`
	Plan             *SettlementPlan  `json:"plan,omitempty"`
	Outcome          *TransferOutcome `json:"outcome,omitempty"`
	ApprovalTxHash   null.String      `json:"approvalTxHash,omitempty"`
	SwapTxHash       null.String      `json:"swapTxHash,omitempty"`
	// ConfirmThreshold is the target balance a submitted swap must produce
	// before the merchant is paid.
	ConfirmThreshold *decimal.Decimal `json:"confirmThreshold,omitempty"`
	// PriorTargetBalance is the holder's target-token balance read before the
	// swap; only the increase over it is settled.
	PriorTargetBalance *decimal.Decimal `json:"priorTargetBalance,omitempty"`
	LastErrorKind    null.String      `json:"lastErrorKind,omitempty"`
	LastErrorDetail  null.String      `json:"lastErrorDetail,omitempty"`
	DecidedAt        *time.Time       `json:"decidedAt,omitempty"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// SettledAmount returns the amount recorded on the outcome, zero until done.
func (f *SettlementFlow) SettledAmount() decimal.Decimal {
	if f.Outcome == nil {
		return decimal.Zero
	}
	return f.Outcome.SettledAmount
}

// FlowEventType represents an audit trail entry kind
type FlowEventType string

const (
	FlowEventTypeScanned     FlowEventType = "SCANNED"
	FlowEventTypeDecided     FlowEventType = "DECIDED"
	FlowEventTypeApprovalTx  FlowEventType = "APPROVAL_TX"
	FlowEventTypeSwapTx      FlowEventType = "SWAP_TX"
	FlowEventTypeConfirmWait FlowEventType = "CONFIRM_WAIT"
	FlowEventTypeTransferTx  FlowEventType = "TRANSFER_TX"
	FlowEventTypeFeeTx       FlowEventType = "FEE_TX"
	FlowEventTypeCompleted   FlowEventType = "COMPLETED"
	FlowEventTypeFailed      FlowEventType = "FAILED"
	FlowEventTypeAbandoned   FlowEventType = "ABANDONED"
)

// FlowEvent is one append-only audit entry for a settlement flow.
type FlowEvent struct {
	ID        uuid.UUID     `json:"id"`
	FlowID    uuid.UUID     `json:"flowId"`
	EventType FlowEventType `json:"eventType"`
	State     FlowState     `json:"state"`
	TxHash    null.String   `json:"txHash,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}
