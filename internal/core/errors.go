package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatAuth       ErrorCategory = "auth"       // Authentication failure
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // State conflict
	ErrCatExecution  ErrorCategory = "execution"  // Workflow or provider failure
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Provider rate limited
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
// Code is a stable machine-readable identifier; Message is safe to
// return to clients.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrAuth creates an authentication error.
func ErrAuth(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatAuth,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not-found error.
func ErrNotFound(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrInternal creates an internal error.
func ErrInternal(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// CategoryOf returns the category of err, or ErrCatInternal when err is
// not a DomainError.
func CategoryOf(err error) ErrorCategory {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category
	}
	return ErrCatInternal
}

// IsRetryable reports whether err is a retryable DomainError.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}
