package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeDetection         = "DETECTION_ERROR"
	ErrCodeExtraction        = "EXTRACTION_ERROR"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeExternalCall      = "EXTERNAL_CALL_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeActionUnavailable = "ACTION_UNAVAILABLE"
	ErrCodeCircuitOpen       = "CIRCUIT_OPEN"
	ErrCodeVault             = "VAULT_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Error is the structured error type shared by every actiondesk component.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Kind    ActionKind     `json:"kind,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithKind attaches the action kind the error belongs to.
func (e *Error) WithKind(kind ActionKind) *Error {
	e.Kind = kind
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an *Error with the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
