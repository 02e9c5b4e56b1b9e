// Package errors provides the typed errors used across Shepherd. Every error
// carries a category so callers can decide whether to retry, skip or fail a
// phase without matching on messages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents misuse of an API, such as reserving ids after assignment
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeRateLimit represents client-side pacing failures
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeThrottle represents a throttling response without a usable retry hint.
	// It is fatal for the phase that received it.
	ErrorTypeThrottle ErrorType = "throttle"
	// ErrorTypeTimeout represents timeouts and cancellations
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents transport failures and non-success statuses
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeAuthentication represents credential failures
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents malformed or undecodable payloads
	ErrorTypeData ErrorType = "data"
	// ErrorTypeCapability represents a phase or feature a connector does not support
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
)

// Error is a categorized error with optional cause and details.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a category and message. Wrap(nil, ...) returns nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: errType, Message: message, Cause: err}
}

// IsRetryable reports whether retrying the failed operation may succeed.
// Throttle errors are not retryable; the governor already waited once.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType checks if the outermost structured error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost structured error, or internal.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// Detail returns the first value stored under key anywhere in err's chain.
func Detail(err error, key string) (interface{}, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if v, ok := e.Details[key]; ok {
				return v, true
			}
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if v, ok := Detail(inner, key); ok {
					return v, true
				}
			}
			return nil, false
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error { return errors.Join(errs...) }
