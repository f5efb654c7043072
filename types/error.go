package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Routing error codes
const (
	ErrAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	ErrMalformedStrategy ErrorCode = "MALFORMED_STRATEGY"
	ErrRoutingError      ErrorCode = "ROUTING_ERROR"
)

// Generation error codes
const (
	ErrGenerationTimeout   ErrorCode = "GENERATION_TIMEOUT"
	ErrGenerationTransport ErrorCode = "GENERATION_TRANSPORT"
	ErrGenerationExhausted ErrorCode = "GENERATION_EXHAUSTED"
)

// Approval error codes
const (
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrToolRunNotFound   ErrorCode = "TOOL_RUN_NOT_FOUND"
)

// Execution error codes
const (
	ErrBudgetExceeded        ErrorCode = "STEP_BUDGET_EXCEEDED"
	ErrConversationSuspended ErrorCode = "CONVERSATION_SUSPENDED"
	ErrWorkflowTerminal      ErrorCode = "WORKFLOW_TERMINAL"
	ErrPersistence           ErrorCode = "PERSISTENCE_ERROR"
	ErrInternalError         ErrorCode = "INTERNAL_ERROR"
)

// API error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status mapped to this error.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// CodeOf extracts the ErrorCode from err, or ErrInternalError when err is
// not a *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternalError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
