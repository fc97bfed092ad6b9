package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatProbe      ErrorCategory = "probe"      // Remote channel failure
	ErrCatConflict   ErrorCategory = "conflict"   // Resume race or regression
	ErrCatDatabase   ErrorCategory = "database"   // Remote task database unusable
	ErrCatState      ErrorCategory = "state"      // Ledger invariant violation
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
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

// Predefined error codes.
const (
	CodeProbeUnreachable    = "PROBE_UNREACHABLE"
	CodeResumeConflict      = "RESUME_CONFLICT"
	CodeDatabaseUnavailable = "DATABASE_UNAVAILABLE"
	CodeRunNotFound         = "RUN_NOT_FOUND"
	CodeTargetImmutable     = "TARGET_IMMUTABLE"
	CodeInvalidTarget       = "INVALID_TARGET"
	CodeNotResumable        = "NOT_RESUMABLE"
	CodeLaunchFailed        = "LAUNCH_FAILED"
)

// ErrProbeUnreachable marks a channel failure: the target could not be
// reached within the timeout. Recoverable; never changes run status.
func ErrProbeUnreachable(target Target, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatProbe,
		Code:      CodeProbeUnreachable,
		Message:   fmt.Sprintf("target %s unreachable", target),
		Retryable: true,
		Cause:     cause,
	}
}

// ErrResumeConflict marks a resume attempted against a live process or an
// impossible regression in the task database. Always surfaced to the caller.
func ErrResumeConflict(format string, args ...any) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeResumeConflict,
		Message:   fmt.Sprintf(format, args...),
		Retryable: false,
	}
}

// ErrDatabaseUnavailable marks a remote task database that could not be read
// or written. Surfaced distinctly so callers can repair out of band.
func ErrDatabaseUnavailable(target Target, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatDatabase,
		Code:      CodeDatabaseUnavailable,
		Message:   fmt.Sprintf("task database at %s:%s unavailable", target.Host, target.TaskDB),
		Retryable: false,
		Cause:     cause,
	}
}

// ErrRunNotFound creates a not found error for a run id.
func ErrRunNotFound(id RunID) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeRunNotFound,
		Message:   fmt.Sprintf("run not found: %s", id),
		Retryable: false,
	}
}

// ErrTargetImmutable rejects an upsert that would rebind an existing run to
// a different target. The structural guard against a "resume" silently
// creating a disconnected run.
func ErrTargetImmutable(id RunID) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      CodeTargetImmutable,
		Message:   fmt.Sprintf("run %s: target is write-once and cannot change", id),
		Retryable: false,
	}
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

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}
