// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
)

// Error provides structured error with context.
// Code is a stable machine-readable identifier; callers classify by Code or
// by sentinel, never by message text.
type Error struct {
	Sentinel     error          // Wrapped sentinel for errors.Is() classification
	Code         string         // Machine-readable code (e.g., "HOST_CONNECTION_ERROR")
	Message      string         // Human-readable message
	Field        string         // For validation errors (e.g., "objectKey")
	Resource     string         // For not found/conflict (e.g., "folder")
	Op           string         // Operation that failed (e.g., "docker.createContainer")
	Details      map[string]any // Contextual data (labels, container id, sanitized options)
	RequeueDelay time.Duration  // Optional delay before the failed work may be retried
	Cause        error          // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Code:     "VALIDATION_ERROR",
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// NotFoundMsg creates a not found error with a custom message, used where the
// message carries an available-options hint for operators.
func NotFoundMsg(resource, message string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Code:     "NOT_FOUND",
		Message:  message,
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Code:     "CONFLICT",
		Message:  reason,
		Resource: resource,
	}
}

// Unauthorized creates an unauthorized error with a machine-readable code.
// Expired and malformed credentials carry different codes even though both
// map to 401 externally.
func Unauthorized(code, message string) error {
	return &Error{
		Sentinel: ErrUnauthorized,
		Code:     code,
		Message:  message,
	}
}

// Forbidden creates a forbidden error. Authorization failures fail closed.
func Forbidden(code, message string) error {
	return &Error{
		Sentinel: ErrForbidden,
		Code:     code,
		Message:  message,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Code:     "UNEXPECTED_ERROR",
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// WithCode creates an internal error carrying a specific machine-readable
// code plus contextual details for diagnosability.
func WithCode(code, message string, details map[string]any, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Code:     code,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// Code extracts the machine-readable code from an error, or "UNKNOWN_ERROR"
// if the error is not a structured *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "UNKNOWN_ERROR"
}

// AsError extracts the structured *Error, or nil if err is not one.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
