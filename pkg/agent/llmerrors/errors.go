// Package llmerrors classifies provider failures so the retry policy and the
// pipeline can tell a slow provider from a broken request.
package llmerrors

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the failure class of a model call.
type ErrorType string

const (
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeTransient     ErrorType = "transient"
	ErrorTypeEmptyResponse ErrorType = "empty_response"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeBadPrompt     ErrorType = "bad_prompt"
	ErrorTypeUnknown       ErrorType = "unknown"

	// ErrorTypeServiceUnavailable is emitted once retries are exhausted on a
	// retryable failure.
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"
)

func (et ErrorType) String() string { return string(et) }

// Retryable reports whether calls failing with et may be repeated.
func (et ErrorType) Retryable() bool {
	return et == ErrorTypeRateLimit || et == ErrorTypeTransient || et == ErrorTypeEmptyResponse
}

// providerCodes maps provider error codes onto a class. They win over the
// HTTP status because providers reuse 400/500 for several conditions.
//
//nolint:gochecknoglobals
var providerCodes = map[string]ErrorType{
	"overloaded_error":        ErrorTypeTransient,
	"api_error":               ErrorTypeTransient,
	"rate_limit_error":        ErrorTypeRateLimit,
	"RESOURCE_EXHAUSTED":      ErrorTypeRateLimit,
	"UNAVAILABLE":             ErrorTypeTransient,
	"DEADLINE_EXCEEDED":       ErrorTypeTransient,
	"rate_limit_exceeded":     ErrorTypeRateLimit,
	"insufficient_quota":      ErrorTypeAuth,
	"authentication_error":    ErrorTypeAuth,
	"permission_error":        ErrorTypeAuth,
	"PERMISSION_DENIED":       ErrorTypeAuth,
	"UNAUTHENTICATED":         ErrorTypeAuth,
	"invalid_request_error":   ErrorTypeBadPrompt,
	"INVALID_ARGUMENT":        ErrorTypeBadPrompt,
	"context_length_exceeded": ErrorTypeBadPrompt,
}

// Error is a classified model-call failure.
type Error struct {
	Err        error
	Message    string
	BodyStub   string // truncated provider message, never the prompt
	Code       string // provider code, e.g. "overloaded_error" or "RESOURCE_EXHAUSTED"
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the error's class may be retried.
func (e *Error) IsRetryable() bool { return e.Type.Retryable() }

// StepCode renders the error as a pipeline step code: HTTP_<status> for an
// error status, otherwise the upper-cased type name.
func (e *Error) StepCode() string {
	if e.StatusCode >= 400 {
		return fmt.Sprintf("HTTP_%d", e.StatusCode)
	}
	return strings.ToUpper(string(e.Type))
}

func as(err error) (*Error, bool) {
	var llmErr *Error
	ok := errors.As(err, &llmErr)
	return llmErr, ok
}

// Is reports whether err carries a classified error of type errorType.
func Is(err error, errorType ErrorType) bool {
	e, ok := as(err)
	return ok && e.Type == errorType
}

// TypeOf returns the class of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	if e, ok := as(err); ok {
		return e.Type
	}
	return ErrorTypeUnknown
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if e, ok := as(err); ok {
		return e.StatusCode
	}
	return 0
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// TypeForStatus maps an HTTP status onto a class.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == 429:
		return ErrorTypeRateLimit
	case status == 401 || status == 403:
		return ErrorTypeAuth
	case status == 408 || status >= 500:
		return ErrorTypeTransient
	case status >= 400:
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}

// TypeForCode looks up a provider error code.
func TypeForCode(code string) (ErrorType, bool) {
	et, ok := providerCodes[code]
	return et, ok
}

// FromAPI builds the error for a provider API failure. A known provider code
// decides the class; otherwise the status does.
func FromAPI(provider string, status int, code, message string, cause error) *Error {
	et, ok := TypeForCode(code)
	if !ok {
		et = TypeForStatus(status)
	}
	msg := fmt.Sprintf("%s API error (status %d)", provider, status)
	if code != "" {
		msg = fmt.Sprintf("%s API error (status %d, %s)", provider, status, code)
	}
	return &Error{
		Err:        cause,
		Message:    msg,
		BodyStub:   SanitizePrompt(message, 200),
		Code:       code,
		Type:       et,
		StatusCode: status,
	}
}

// SanitizePrompt shortens text for logs: long values keep their head and
// tail plus a length and hash marker.
func SanitizePrompt(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	keep := max(maxChars/2, 100)
	if 2*keep >= len(text) {
		return text
	}
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s...[%d chars, hash:%x]...%s", text[:keep], len(text), sum[:8], text[len(text)-keep:])
}

// IsServiceUnavailable reports whether retries were exhausted for err.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

// NewServiceUnavailableError wraps the last retryable failure once retries
// are exhausted. The status of the cause is preserved.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:       ErrorTypeServiceUnavailable,
		Err:        cause,
		StatusCode: StatusOf(cause),
		Message:    fmt.Sprintf("service unavailable after %d retry attempts: %v", attempts, cause),
	}
}
