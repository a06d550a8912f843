package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrBadRequest          = errors.New("bad request")
	ErrBridgeUnavailable   = errors.New("bridge capability unavailable")
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrNoChainsConfigured  = errors.New("no chains configured")
	ErrMissingRecipient    = errors.New("missing recipient")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrMethodNotSupported  = errors.New("rpc method not supported")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrRefinementFailed    = errors.New("quote refinement failed")
	ErrIndexerUnavailable  = errors.New("indexer unavailable")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrNoAccountConfigured = errors.New("no account initialized")
)

// Error codes returned to API callers
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeConflict       = "CONFLICT"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeQuoteFailed    = "QUOTE_FAILED"
	CodeWalletRequired = "WALLET_REQUIRED"
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
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Conflict(message string, err error) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, err)
}

func Unavailable(message string, err error) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeUnavailable, message, err)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

// FromError maps a domain error onto an AppError
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, CodeNotFound, err.Error(), err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingRecipient):
		return NewAppError(http.StatusBadRequest, CodeInvalidInput, err.Error(), err)
	case errors.Is(err, ErrWalletNotConnected), errors.Is(err, ErrNoAccountConfigured):
		return NewAppError(http.StatusConflict, CodeWalletRequired, err.Error(), err)
	case errors.Is(err, ErrQuoteUnavailable), errors.Is(err, ErrRefinementFailed):
		return NewAppError(http.StatusUnprocessableEntity, CodeQuoteFailed, err.Error(), err)
	case errors.Is(err, ErrBridgeUnavailable), errors.Is(err, ErrIndexerUnavailable), errors.Is(err, ErrStorageUnavailable):
		return NewAppError(http.StatusServiceUnavailable, CodeUnavailable, err.Error(), err)
	}
	return InternalError(err)
}
