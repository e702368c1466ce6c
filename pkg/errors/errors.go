// Package errors provides structured error types for pixelmorph.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library, CLI and HTTP server
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The codes mirror the failure kinds of a morph request:
//   - INVALID_CONFIG: rejected before any computation starts
//   - IMAGE_SIZE_MISMATCH: inputs cannot be partitioned into equal-count grids
//   - SOLVER_RESOURCE_EXCEEDED: exact solving requested above the configured ceiling
//   - CANCELLED: a morph was cancelled or superseded
//   - RENDER_ALLOCATION_FAILURE: frame buffers cannot be allocated
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidConfig, "resolution must be positive, got %d", r)
//	if errors.Is(err, errors.ErrCodeInvalidConfig) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeCancelled, ctx.Err(), "solve aborted")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Setup errors
	ErrCodeInvalidConfig     Code = "INVALID_CONFIG"
	ErrCodeImageSizeMismatch Code = "IMAGE_SIZE_MISMATCH"
	ErrCodeSolverExceeded    Code = "SOLVER_RESOURCE_EXCEEDED"
	ErrCodeRenderAllocation  Code = "RENDER_ALLOCATION_FAILURE"

	// Control flow
	ErrCodeCancelled Code = "CANCELLED"

	// Transport errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeNotFound     Code = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Retryable reports whether the caller can recover by changing its request.
// Invalid configs and internal errors are final; a size mismatch or an
// exceeded solver ceiling can be retried after resampling or switching algorithm.
func Retryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeImageSizeMismatch, ErrCodeSolverExceeded:
		return true
	}
	return false
}

// Cancelled wraps cause (usually ctx.Err()) as a CANCELLED error.
func Cancelled(cause error, format string, args ...any) *Error {
	return Wrap(ErrCodeCancelled, cause, format, args...)
}
