package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Intake engine errors (INTAKE-001 to INTAKE-099)
	ErrCodeInvalidQueue    ErrorCode = "INTAKE-001"
	ErrCodeKeyCollision    ErrorCode = "INTAKE-002"
	ErrCodeOutOfRangeStep  ErrorCode = "INTAKE-003"
	ErrCodeSessionNotFound ErrorCode = "INTAKE-004"
	ErrCodeCatalogInvalid  ErrorCode = "INTAKE-005"

	// Narrative generation errors (GEN-001 to GEN-099)
	ErrCodeGenerationFailed   ErrorCode = "GEN-001"
	ErrCodeGenerationTimedOut ErrorCode = "GEN-002"
	ErrCodeRecordEmpty        ErrorCode = "GEN-003"

	// Storage errors (STORE-001 to STORE-099)
	ErrCodeRecordNotFound ErrorCode = "STORE-001"
)

// IntakeError is an error with a stable code, optional suggestions and a cause.
type IntakeError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *IntakeError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", s))
		}
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *IntakeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an IntakeError with the same code. This lets
// callers compare against the sentinel values below with errors.Is.
func (e *IntakeError) Is(target error) bool {
	t, ok := target.(*IntakeError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new IntakeError
func New(code ErrorCode, message string) *IntakeError {
	return &IntakeError{Code: code, Message: message}
}

// Newf creates a new IntakeError with a formatted message
func Newf(code ErrorCode, format string, args ...any) *IntakeError {
	return &IntakeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new IntakeError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *IntakeError {
	return &IntakeError{Code: code, Message: message, Cause: cause}
}

// WithSuggestion adds a suggestion to the error
func (e *IntakeError) WithSuggestion(suggestion string) *IntakeError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidQueue       = New(ErrCodeInvalidQueue, "invalid queue")
	ErrKeyCollision       = New(ErrCodeKeyCollision, "key collision")
	ErrOutOfRangeStep     = New(ErrCodeOutOfRangeStep, "step out of range")
	ErrSessionNotFound    = New(ErrCodeSessionNotFound, "session not found")
	ErrCatalogInvalid     = New(ErrCodeCatalogInvalid, "catalog invalid")
	ErrGenerationFailed   = New(ErrCodeGenerationFailed, "generation failed")
	ErrGenerationTimedOut = New(ErrCodeGenerationTimedOut, "generation timed out")
	ErrRecordEmpty        = New(ErrCodeRecordEmpty, "record empty")
	ErrRecordNotFound     = New(ErrCodeRecordNotFound, "record not found")
)

// CodeOf returns the code of the first IntakeError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ie *IntakeError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ""
}
