package apperrors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeTokenRejected    ErrorType = "token_rejected"
	ErrorTypeProfileMalformed ErrorType = "profile_malformed"
	ErrorTypeState            ErrorType = "state"
	ErrorTypeUnauthorized     ErrorType = "unauthorized"
	ErrorTypeInternal         ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Network errors (transient; retried at most once for the token-refresh case)
	ErrNetwork           = NewDomainError(ErrorTypeNetwork, "network request failed", nil)
	ErrServerUnreachable = NewDomainError(ErrorTypeNetwork, "authentication server unreachable", nil)

	// Validation errors (surfaced directly, never retried)
	ErrInvalidInput       = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidResumeState = NewDomainError(ErrorTypeValidation, "invalid resume state payload", nil)

	// Token errors
	ErrTokenRejected = NewDomainError(ErrorTypeTokenRejected, "anti-forgery token rejected", nil)
	ErrTokenMissing  = NewDomainError(ErrorTypeTokenRejected, "anti-forgery token unavailable", nil)

	// Profile errors
	ErrProfileMalformed = NewDomainError(ErrorTypeProfileMalformed, "profile lacks an identifier", nil)

	// Persisted-state errors
	ErrStateCorrupt        = NewDomainError(ErrorTypeState, "persisted state unreadable", nil)
	ErrStateVersionUnknown = NewDomainError(ErrorTypeState, "persisted state version not supported", nil)

	// Authorization errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "not authenticated", nil)

	// Internal errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// Error type checking helper functions

// IsNetworkError checks if an error is a transient network error
func IsNetworkError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNetwork
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsTokenRejectedError checks if an error is a token rejection
func IsTokenRejectedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeTokenRejected
	}
	return false
}

// IsProfileMalformedError checks if an error is a malformed-profile error
func IsProfileMalformedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeProfileMalformed
	}
	return false
}

// IsStateError checks if an error is a persisted-state error
func IsStateError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeState
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapNetwork wraps an error as a transient network error
func WrapNetwork(message string, err error) error {
	return NewDomainError(ErrorTypeNetwork, message, err)
}

// WrapState wraps an error as a persisted-state error
func WrapState(message string, err error) error {
	return NewDomainError(ErrorTypeState, message, err)
}
