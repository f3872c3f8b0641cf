// Package apperror provides the regenerator optimization core's error
// taxonomy: a structured error type with a code, stage, severity, and
// detail map, plus an HTTP status mapping for the transport layer.
package apperror

import (
	"errors"
	"fmt"
)

// Code identifies the taxonomy member a given error belongs to, per
// the error handling design.
type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeOptimization   Code = "OPTIMIZATION_ERROR"
	CodeCancelled      Code = "CANCELLED_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Severity mirrors the reference taxonomy's criticality levels.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "error"
	}
}

// Error is the core's structured error type. Stage names the pipeline
// step in which the error occurred ("physics evaluation", "constraint
// evaluation", "solver", "validation") so the envelope's message can
// identify where a run failed, per spec §7.
type Error struct {
	Code     Code
	Stage    string
	Message  string
	Field    string
	Details  map[string]any
	Cause    error
	Severity Severity
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusCode maps the error's Code to an HTTP status for the /optimize
// transport (spec §6): 422 for validation, 500 for every other code.
// CodeCancelled has no dedicated mapping and also yields 500, which is
// the status the HTTP layer answers a cancelled Job with.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeValidation:
		return 422
	default:
		return 500
	}
}

// New creates an *Error with SeverityError and an empty details map.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Details: make(map[string]any), Severity: SeverityError}
}

// NewWithField creates a validation-style *Error naming the offending
// field.
func NewWithField(code Code, message, field string) *Error {
	return &Error{Code: code, Message: message, Field: field, Details: make(map[string]any), Severity: SeverityError}
}

// Wrap creates an *Error around cause, tagging the pipeline stage in
// which it occurred.
func Wrap(cause error, code Code, stage, message string) *Error {
	return &Error{Code: code, Stage: stage, Message: message, Cause: cause, Details: make(map[string]any), Severity: SeverityError}
}

// WithDetails attaches a key-value pair and returns the same error for
// chaining.
func (e *Error) WithDetails(key string, value any) *Error {
	e.Details[key] = value
	return e
}

// Is reports whether err is an *Error with the given Code.
func Is(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts the Code from err, defaulting to CodeInternal when
// err is not an *Error.
func GetCode(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ValidationErrors collects every validation failure found while
// checking one OptimizationRequest, so the /optimize 422 response can
// report every offending field in a single pass instead of failing on
// the first one.
type ValidationErrors struct {
	Errors []*Error
}

// NewValidationErrors returns an empty collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]*Error, 0)}
}

// Add appends err to the collection.
func (v *ValidationErrors) Add(err *Error) {
	v.Errors = append(v.Errors, err)
}

// AddField creates and appends a field-tagged validation error.
func (v *ValidationErrors) AddField(message, field string) {
	v.Errors = append(v.Errors, NewWithField(CodeValidation, message, field))
}

// HasErrors reports whether any error was collected.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Messages returns the human-readable message of every collected error.
func (v *ValidationErrors) Messages() []string {
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// Err returns a single combined *Error naming every offending field,
// or nil if the collection is empty. The first error's Field is kept
// as the envelope Field so HTTP error responses can still single out
// one offending field when there is exactly one.
func (v *ValidationErrors) Err() *Error {
	if !v.HasErrors() {
		return nil
	}
	if len(v.Errors) == 1 {
		return v.Errors[0]
	}
	combined := New(CodeValidation, fmt.Sprintf("%d validation errors", len(v.Errors)))
	for i, e := range v.Errors {
		combined.WithDetails(fmt.Sprintf("error_%d", i), e.Error())
	}
	return combined
}
