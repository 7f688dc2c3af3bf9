package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeMalformed   ErrorType = "malformed"
	ErrorTypePrivate     ErrorType = "private"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeFilesystem  ErrorType = "filesystem"
	ErrorTypeDuplicate   ErrorType = "duplicate"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a typed failure of the scraping pipeline
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	// Path is set for filesystem errors and for diagnostics files
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	msg += ": " + e.Message
	if e.Path != "" {
		msg += fmt.Sprintf(" [%s]", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// Filesystem creates a filesystem error naming the offending path
func Filesystem(message, path string, err error) *Error {
	return &Error{Type: ErrorTypeFilesystem, Message: message, Path: path, Err: err}
}

// TypeOf extracts the ErrorType from an error chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type anywhere in its chain
func Is(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a transient failure.
// Only 200 and 404 are meaningful answers from the media feed.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 200, 404:
		return false
	default:
		return true
	}
}

// TypeForStatus maps an unexpected HTTP status onto an error type
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeNetwork
	}
}
