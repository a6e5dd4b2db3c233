package model

import (
	"errors"
	"fmt"
)

// Error codes carried by ErrorEnvelope.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrNetworkError       = "NETWORK_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// defaultMessages are used when an envelope is built without a message.
var defaultMessages = map[string]string{
	ErrValidationError:    "One or more fields are invalid",
	ErrNetworkError:       "Network error: unable to reach the server",
	ErrInternalError:      "An unexpected error occurred",
	ErrBackendUnavailable: "The backend service is temporarily unavailable",
	ErrBackendTimeout:     "The backend service did not respond in time",
}

// ErrorEnvelope is the one error shape of formdesk. Remote API failures are
// normalized into it, and the BFF writes it as {"error": {...}}. Message is
// the single human-readable line shown inline next to a table.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"-"` // remote HTTP status, 0 when none was received
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError is one field of a validation payload.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewError builds an envelope for code, falling back to the code's default
// message when msg is empty.
func NewError(code, msg string) *ErrorEnvelope {
	if msg == "" {
		msg = defaultMessages[code]
	}
	return &ErrorEnvelope{Code: code, Message: msg}
}

func NewBadRequestError(msg string) *ErrorEnvelope   { return NewError(ErrBadRequest, msg) }
func NewUnauthorizedError(msg string) *ErrorEnvelope { return NewError(ErrUnauthorized, msg) }
func NewForbiddenError(msg string) *ErrorEnvelope    { return NewError(ErrForbidden, msg) }
func NewNotFoundError(msg string) *ErrorEnvelope     { return NewError(ErrNotFound, msg) }
func NewConflictError(msg string) *ErrorEnvelope     { return NewError(ErrConflict, msg) }

// NewValidationError carries per-field details; msg is their joined form.
func NewValidationError(msg string, details []FieldError) *ErrorEnvelope {
	e := NewError(ErrValidationError, msg)
	e.Details = details
	return e
}

// NewNetworkError is for requests that never reached the forms API.
func NewNetworkError() *ErrorEnvelope            { return NewError(ErrNetworkError, "") }
func NewInternalError() *ErrorEnvelope           { return NewError(ErrInternalError, "") }
func NewBackendUnavailableError() *ErrorEnvelope { return NewError(ErrBackendUnavailable, "") }
func NewBackendTimeoutError() *ErrorEnvelope     { return NewError(ErrBackendTimeout, "") }

// CodeOf returns the code of the first envelope in err's chain, or "".
func CodeOf(err error) string {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ""
}

// MessageOf returns the user-facing message of err: the envelope message
// when err wraps one, err.Error() otherwise, "" for nil.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Message
	}
	return err.Error()
}
