// Package errors provides a lightweight structured error type (MirageError)
// for category-based classification in the CLI and the daemon, plus the
// sentinel error kinds used by the per-file processing policy.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a sitemirage error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Content processing errors
	CategoryTokenize   ErrorCategory = "tokenize"
	CategoryModel      ErrorCategory = "model"
	CategoryScramble   ErrorCategory = "scramble"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// Per-file processing error kinds. The corpus driver matches on these with
// errors.Is to pick a degradation path instead of aborting the run.
var (
	// ErrUnreadableInput marks a file that could not be read. The file is
	// skipped and the run continues.
	ErrUnreadableInput = errors.New("unreadable input file")

	// ErrUnclassifiableContent marks a file whose content kind could not be
	// determined. The file is copied verbatim.
	ErrUnclassifiableContent = errors.New("unclassifiable content")

	// ErrReassembly marks a tokenizer whose spans do not losslessly cover the
	// input. The engine fails closed: the original file is copied verbatim.
	ErrReassembly = errors.New("span reassembly does not cover input")

	// ErrModelExhausted is returned when sampling is requested on a model with
	// no observations. The mutation policy degrades to never mutating.
	ErrModelExhausted = errors.New("markov model has no observations")

	// ErrOutputWrite marks a failed output write. The run continues but exits
	// with partial-success status.
	ErrOutputWrite = errors.New("output write failed")
)

// MirageError is a structured error with category, severity, and context
type MirageError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// Build returns the error itself so constructor chains read fluently.
func (e *MirageError) Build() *MirageError {
	return e
}

// ContextFields carries structured context for MirageError
type ContextFields map[string]any

// Error implements the error interface
func (e *MirageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *MirageError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *MirageError) WithContext(key string, value any) *MirageError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new MirageError
func New(category ErrorCategory, severity ErrorSeverity, message string) *MirageError {
	return &MirageError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new MirageError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *MirageError {
	return &MirageError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	var me *MirageError
	if errors.As(err, &me) {
		return me.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if no MirageError is found in the chain.
func GetCategory(err error) ErrorCategory {
	var me *MirageError
	if errors.As(err, &me) {
		return me.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error
func ValidationError(message string) *MirageError {
	return &MirageError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// DaemonError creates a new daemon error
func DaemonError(message string) *MirageError {
	return &MirageError{
		Category: CategoryDaemon,
		Severity: SeverityError,
		Message:  message,
	}
}

// InternalError creates a new internal error
func InternalError(message string) *MirageError {
	return &MirageError{
		Category: CategoryInternal,
		Severity: SeverityError,
		Message:  message,
	}
}

// WrapError wraps an existing error with a new MirageError at error severity
func WrapError(err error, category ErrorCategory, message string) *MirageError {
	return &MirageError{
		Category: category,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}
