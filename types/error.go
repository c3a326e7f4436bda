package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the gateway.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrValidation     ErrorCode = "VALIDATION"
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
)

// Negotiation error codes
const (
	ErrNegotiationFailed   ErrorCode = "NEGOTIATION_FAILED"
	ErrNegotiationConflict ErrorCode = "NEGOTIATION_CONFLICT"
	ErrNegotiationTimeout  ErrorCode = "NEGOTIATION_TIMEOUT"
)

// Upstream / server error codes
const (
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Target     string    `json:"target,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		prefix = fmt.Sprintf("%s (target %s)", prefix, e.Target)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithTarget records the remote target (peer, asset or URL) the error relates to.
func (e *Error) WithTarget(target string) *Error {
	e.Target = target
	return e
}

// AsError extracts the first *Error in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
