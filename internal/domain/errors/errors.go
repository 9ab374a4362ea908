package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrTokenExpired         = errors.New("token expired")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrUnsupportedToken     = errors.New("unsupported token")
	ErrOracleUnavailable    = errors.New("no valid median")
	ErrApprovalFailed       = errors.New("approval failed")
	ErrSwapFailed           = errors.New("swap failed")
	ErrTransferFailed       = errors.New("transfer failed")
	ErrInvalidPayload       = errors.New("invalid payment payload")
	ErrQuoteServiceNotReady = errors.New("quote service not initialized")
	ErrPairNotFound         = errors.New("no trading pair for tokens")
	ErrInvalidTransition    = errors.New("invalid flow state transition")
	ErrSignerNotConfigured  = errors.New("no signer configured for holder")
)

// Error codes returned to API clients
const (
	CodeBadRequest        = "ERR_BAD_REQUEST"
	CodeNotFound          = "ERR_NOT_FOUND"
	CodeUnauthorized      = "ERR_UNAUTHORIZED"
	CodeForbidden         = "ERR_FORBIDDEN"
	CodeConflict          = "ERR_CONFLICT"
	CodeInternalError     = "ERR_INTERNAL"
	CodeInvalidPayload    = "ERR_INVALID_PAYLOAD"
	CodeInsufficientFunds = "ERR_INSUFFICIENT_FUNDS"
	CodeOracleUnavailable = "ERR_ORACLE_UNAVAILABLE"
	CodeQuoteNotReady     = "ERR_QUOTE_SERVICE_NOT_READY"
	CodePaymentFailed     = "ERR_PAYMENT_FAILED"
	CodeInvalidTransition = "ERR_INVALID_TRANSITION"
	CodePairNotFound      = "ERR_PAIR_NOT_FOUND"
	CodeSignerMissing     = "ERR_SIGNER_NOT_CONFIGURED"
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeBadRequest, message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, ErrConflict)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}
