package engine

import (
	"errors"
	"fmt"
)

// ErrorKind represents the classification of an engine error.
// No kind is retried internally; every kind is actionable by the caller.
type ErrorKind string

const (
	// ErrorKindNotFound indicates the referenced plan does not exist.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindValidation indicates a precondition on caller-supplied tokens
	// or input failed. The caller must re-fetch live state, re-draft, or
	// correct the tokens.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindConflict indicates the plan changed underneath the caller,
	// e.g. a compare-and-swap on status lost to a concurrent writer.
	ErrorKindConflict ErrorKind = "conflict"

	// ErrorKindUnavailable indicates the repository could not be reached.
	ErrorKindUnavailable ErrorKind = "unavailable"
)

// Common error codes.
const (
	ErrCodeNotFound               = "PLAN_NOT_FOUND"
	ErrCodeInvalidInput           = "INVALID_INPUT"
	ErrCodeMissingResourceVersion = "RESOURCE_VERSION_MISSING"
	ErrCodeResourceVersion        = "RESOURCE_VERSION_MISMATCH"
	ErrCodeMissingIdempotencyKey  = "IDEMPOTENCY_KEY_MISSING"
	ErrCodeIdempotencyKey         = "IDEMPOTENCY_KEY_MISMATCH"
	ErrCodeStatusConflict         = "STATUS_CONFLICT"
	ErrCodeAlreadyExists          = "ALREADY_EXISTS"
	ErrCodeStore                  = "STORE_ERROR"
)

// Error represents a classified error with field-level context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// PlanID is the plan the error refers to, if any.
	PlanID string `json:"planId,omitempty"`

	// Field names the offending input field for validation errors.
	Field string `json:"field,omitempty"`

	// Expected is the value the engine required.
	Expected string `json:"expected,omitempty"`

	// Received is the value the caller supplied.
	Received string `json:"received,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.PlanID != "" {
		msg = fmt.Sprintf("%s (plan=%s)", msg, e.PlanID)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: field %s expected %q, received %q", msg, e.Field, e.Expected, e.Received)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewNotFoundError creates an error for an unknown plan.
func NewNotFoundError(planID string) *Error {
	return &Error{
		Kind:    ErrorKindNotFound,
		Code:    ErrCodeNotFound,
		Message: "operation plan not found",
		PlanID:  planID,
	}
}

// NewValidationError creates a field-level validation error.
func NewValidationError(message, field, expected, received string) *Error {
	return &Error{
		Kind:     ErrorKindValidation,
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Field:    field,
		Expected: expected,
		Received: received,
	}
}

// NewConflictError creates a conflict error.
func NewConflictError(message string, err error) *Error {
	return &Error{
		Kind:    ErrorKindConflict,
		Code:    ErrCodeStatusConflict,
		Message: message,
		Err:     err,
	}
}

// NewUnavailableError creates an error for a failing repository.
func NewUnavailableError(message string, err error) *Error {
	return &Error{
		Kind:    ErrorKindUnavailable,
		Code:    ErrCodeStore,
		Message: message,
		Err:     err,
	}
}

// WithPlan adds plan context to an error.
func (e *Error) WithPlan(planID string) *Error {
	e.PlanID = planID
	return e
}

// WithCode sets the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of a classified error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrorKindNotFound
}

// IsValidation returns true if the error is classified as a validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == ErrorKindValidation
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return KindOf(err) == ErrorKindConflict
}

// IsUnavailable returns true if the error is classified as unavailable.
func IsUnavailable(err error) bool {
	return KindOf(err) == ErrorKindUnavailable
}
