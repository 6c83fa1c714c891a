// Package errors provides structured error types for the partforge core
// and shells.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and HTTP API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The codes mirror the failure taxonomy of the conversion core:
//   - PARSE_ERROR: malformed or truncated input data
//   - UNSUPPORTED_FORMAT: format/geometry-kind mismatch
//   - GEOMETRY_ERROR: degenerate mesh or non-planar plate profile
//   - SIZE_LIMIT_EXCEEDED: input exceeds byte/vertex/face caps
//   - INTERNAL_ERROR: unexpected states, always logged before surfacing
//
// A failed compatibility check is NOT an error: it is a normal report
// with valid=false, so none of these codes cover it.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeParse, "truncated STL: want %d triangles, got %d", want, got)
//	if errors.Is(err, errors.ErrCodeParse) {
//	    // Handle parse error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInternal, origErr, "plate subtraction failed")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Core pipeline errors
	ErrCodeParse             Code = "PARSE_ERROR"
	ErrCodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	ErrCodeGeometry          Code = "GEOMETRY_ERROR"
	ErrCodeSizeLimit         Code = "SIZE_LIMIT_EXCEEDED"
	ErrCodeInternal          Code = "INTERNAL_ERROR"

	// Shell errors (CLI and HTTP API)
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeTimeout      Code = "TIMEOUT"
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
