package chainrpc

import (
	"fmt"
	"time"
)

// Error codes surfaced to callers of the gateway.
const (
	CodeConnectionFailed  = "RPC_CONNECTION_FAILED"
	CodeMonitoringFailed  = "PAYMENT_MONITORING_FAILED"
	CodeValidationFailure = "VALIDATION_ERROR"
)

// Error is the normalized error shape for every externally observable
// gateway failure.
type Error struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	cause error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a normalized Error wrapping cause.
func NewError(code, message string, cause error) *Error {
	e := &Error{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}
