package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes have the form SC-<AREA>-<NNNN>; the numeric part mirrors the HTTP
// status class the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "SC-AUTH-4010")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrUnauthorized indicates bad credentials or a missing, malformed,
	// tampered or expired bearer token.
	ErrUnauthorized = NewDomainError("SC-AUTH-4010", "unauthorized")

	// ErrRateLimited indicates too many token issuance attempts from one client.
	ErrRateLimited = NewDomainError("SC-AUTH-4290", "too many requests")
)

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrInvalidConfig indicates a configuration value is out of range or malformed.
	ErrInvalidConfig = NewDomainError("SC-CONF-4000", "invalid configuration")

	// ErrSecretMissing indicates the token signing secret was not provided.
	ErrSecretMissing = NewDomainError("SC-CONF-5000", "signing secret not set")
)

// ============================================================================
// Process Errors (PROC)
// ============================================================================

var (
	// ErrLaunchFailed indicates the monitored service could not be started.
	ErrLaunchFailed = NewDomainError("SC-PROC-5000", "monitored service launch failed")
)

// ============================================================================
// Protocol Errors (HTTP)
// ============================================================================

var (
	// ErrMalformedRequest indicates the request line could not be parsed.
	ErrMalformedRequest = NewDomainError("SC-HTTP-4000", "malformed request")

	// ErrRequestTooLarge indicates the request exceeded the read limit before
	// the end of headers was seen.
	ErrRequestTooLarge = NewDomainError("SC-HTTP-4130", "request too large")
)
