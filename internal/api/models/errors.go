package models

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PxPatel/p2p-swap/internal/trading"
)

// ErrorCode represents standard error codes
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrTradeNotFound      ErrorCode = "TRADE_NOT_FOUND"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrInvalidState       ErrorCode = "INVALID_STATE"
	ErrInvalidWallet      ErrorCode = "INVALID_WALLET"
	ErrRouteNotFound      ErrorCode = "NOT_FOUND"
	ErrMethodNotAllowed   ErrorCode = "METHOD_NOT_ALLOWED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrUpstream           ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// genericInternalMessage is all a caller learns about an unexpected failure
const genericInternalMessage = "Internal server error"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code"`
	Field   string    `json:"field,omitempty"`
	Status  string    `json:"status,omitempty"`
}

// HTTPError pairs an error body with its HTTP status code
type HTTPError struct {
	StatusCode int
	Body       ErrorResponse
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, code ErrorCode, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Body: ErrorResponse{
			Success: false,
			Error:   message,
			Code:    code,
		},
	}
}

// WithField records which request field was at fault
func (e *HTTPError) WithField(field string) *HTTPError {
	e.Body.Field = field
	return e
}

// Common error constructors

func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, ErrInvalidRequest, message)
}

func ErrNotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, ErrRouteNotFound, message)
}

func ErrMethod() *HTTPError {
	return NewHTTPError(http.StatusMethodNotAllowed, ErrMethodNotAllowed, "Method not allowed")
}

func ErrTooManyRequests() *HTTPError {
	return NewHTTPError(http.StatusTooManyRequests, ErrRateLimited, "Too many requests")
}

func ErrInternal() *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, ErrInternalError, genericInternalMessage)
}

// FromError maps a lifecycle failure to its HTTP form. Anything that is not a
// *trading.Error, or is an unexpected one, becomes a generic 500.
func FromError(err error) *HTTPError {
	var terr *trading.Error
	if !errors.As(err, &terr) {
		return ErrInternal()
	}

	switch terr.Kind {
	case trading.KindValidation:
		return NewHTTPError(http.StatusBadRequest, ErrValidationFailed, terr.Message).WithField(terr.Field)
	case trading.KindNotFound:
		return NewHTTPError(http.StatusNotFound, ErrTradeNotFound, terr.Message)
	case trading.KindAuthorization:
		return NewHTTPError(http.StatusForbidden, ErrForbidden, terr.Message)
	case trading.KindInvalidState:
		httpErr := NewHTTPError(http.StatusConflict, ErrInvalidState, terr.Message)
		httpErr.Body.Status = terr.Status
		return httpErr
	default:
		return ErrInternal()
	}
}

// Write sends the error as JSON
func (e *HTTPError) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e.Body)
}
