package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the study-buddy core.
type ErrorCode string

// Retrieval and embedding error codes
const (
	ErrEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrEmbeddingTimeout     ErrorCode = "EMBEDDING_TIMEOUT"
	ErrExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrUnsupportedFormat    ErrorCode = "UNSUPPORTED_FORMAT"
)

// Routing and generation error codes
const (
	ErrRoutingUnavailable    ErrorCode = "ROUTING_UNAVAILABLE"
	ErrRoutingTimeout        ErrorCode = "ROUTING_TIMEOUT"
	ErrGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"
	ErrGenerationTimeout     ErrorCode = "GENERATION_TIMEOUT"
)

// Web search error codes
const (
	ErrSearchUnavailable ErrorCode = "SEARCH_UNAVAILABLE"
	ErrWebSearchTimeout  ErrorCode = "WEB_SEARCH_TIMEOUT"
)

// Tool and orchestration error codes
const (
	ErrMissingParameter    ErrorCode = "MISSING_PARAMETER"
	ErrInsufficientContext ErrorCode = "INSUFFICIENT_CONTEXT"
	ErrInvalidCategory     ErrorCode = "INVALID_CATEGORY"
	ErrInvalidTransition   ErrorCode = "INVALID_TRANSITION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStage records the pipeline stage that produced the error.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" if it carries none.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
