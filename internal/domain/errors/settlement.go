package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Kind classifies settlement failures at the flow boundary
type Kind string

const (
	KindNone              Kind = ""
	KindOracleUnavailable Kind = "ORACLE_UNAVAILABLE"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindApprovalFailed    Kind = "APPROVAL_FAILED"
	KindSwapFailed        Kind = "SWAP_FAILED"
	KindTransferFailed    Kind = "TRANSFER_FAILED"
	KindInvalidPayload    Kind = "INVALID_PAYLOAD"
	KindQuoteNotReady     Kind = "QUOTE_SERVICE_NOT_READY"
	KindUnknown           Kind = "UNKNOWN"
)

const genericPaymentFailure = "Payment failed, please try again."

// OracleUnavailableError reports that the price oracle for a pair has no valid median.
type OracleUnavailableError struct {
	Sell string
	Buy  string
	Err  error
}

func (e *OracleUnavailableError) Error() string {
	return fmt.Sprintf("no valid median for %s/%s", e.Sell, e.Buy)
}

func (e *OracleUnavailableError) Unwrap() error { return e.Err }

func (e *OracleUnavailableError) Is(target error) bool { return target == ErrOracleUnavailable }

// UserMessage is the pair-specific text shown to the payer.
func (e *OracleUnavailableError) UserMessage() string {
	return fmt.Sprintf("The oracle for the %s/%s pair is temporarily not working. Please try again later or use another currency.", e.Sell, e.Buy)
}

// InsufficientFundsError names both currencies the payer could top up.
type InsufficientFundsError struct {
	Target         string
	Fallback       string
	TargetNeeded   decimal.Decimal
	FallbackNeeded decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s %s or %s %s", e.TargetNeeded.String(), e.Target, e.FallbackNeeded.String(), e.Fallback)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// UserMessage tells the payer which currencies to top up.
func (e *InsufficientFundsError) UserMessage() string {
	return fmt.Sprintf("Insufficient balance. Top up %s or %s to complete this payment.", e.Target, e.Fallback)
}

// ExecutionError is raised once an approval, swap, or transfer exhausts its attempts.
type ExecutionError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	verb := map[Kind]string{
		KindApprovalFailed: "approval",
		KindSwapFailed:     "swap",
		KindTransferFailed: "transfer",
	}[e.Kind]
	return fmt.Sprintf("%s failed after %d attempt(s): %v", verb, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool {
	switch e.Kind {
	case KindApprovalFailed:
		return target == ErrApprovalFailed
	case KindSwapFailed:
		return target == ErrSwapFailed
	case KindTransferFailed:
		return target == ErrTransferFailed
	}
	return false
}

// NewExecutionError wraps a retry-exhausted failure.
func NewExecutionError(kind Kind, attempts int, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Attempts: attempts, Err: err}
}

// Classify maps any error raised while settling into the taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrUnsupportedToken):
		return KindInvalidPayload
	case errors.Is(err, ErrQuoteServiceNotReady):
		return KindQuoteNotReady
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrApprovalFailed):
		return KindApprovalFailed
	case errors.Is(err, ErrSwapFailed):
		return KindSwapFailed
	case errors.Is(err, ErrTransferFailed):
		return KindTransferFailed
	case errors.Is(err, ErrOracleUnavailable):
		return KindOracleUnavailable
	}
	return KindUnknown
}

// UserMessage returns the payer-facing text for a settlement error. Execution
// failures stay generic unless an oracle failure is underneath them.
func UserMessage(err error) string {
	var oracle *OracleUnavailableError
	if errors.As(err, &oracle) {
		return oracle.UserMessage()
	}
	var funds *InsufficientFundsError
	if errors.As(err, &funds) {
		return funds.UserMessage()
	}
	switch Classify(err) {
	case KindOracleUnavailable:
		return "This token cannot be swapped at the moment. Please try a different token."
	case KindInvalidPayload:
		return "The payment request could not be read. Please scan it again."
	case KindQuoteNotReady:
		return "Exchange rates are still loading. Please try again in a moment."
	}
	return genericPaymentFailure
}

// ToAppError maps domain and settlement errors onto HTTP-facing errors.
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, CodeNotFound, "resource not found", err)
	case errors.Is(err, ErrInvalidTransition):
		return NewAppError(http.StatusConflict, CodeInvalidTransition, err.Error(), err)
	case errors.Is(err, ErrPairNotFound):
		return NewAppError(http.StatusUnprocessableEntity, CodePairNotFound, err.Error(), err)
	case errors.Is(err, ErrSignerNotConfigured):
		return NewAppError(http.StatusUnprocessableEntity, CodeSignerMissing, err.Error(), err)
	}

	switch Classify(err) {
	case KindInvalidPayload:
		return NewAppError(http.StatusBadRequest, CodeInvalidPayload, UserMessage(err), err)
	case KindInsufficientFunds:
		return NewAppError(http.StatusPaymentRequired, CodeInsufficientFunds, UserMessage(err), err)
	case KindOracleUnavailable:
		return NewAppError(http.StatusServiceUnavailable, CodeOracleUnavailable, UserMessage(err), err)
	case KindQuoteNotReady:
		return NewAppError(http.StatusServiceUnavailable, CodeQuoteNotReady, UserMessage(err), err)
	case KindApprovalFailed, KindSwapFailed, KindTransferFailed:
		return NewAppError(http.StatusBadGateway, CodePaymentFailed, UserMessage(err), err)
	}
	return InternalError(err)
}
