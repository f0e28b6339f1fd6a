package errors

import (
	"errors"
	"fmt"
)

var (
	// Session errors
	ErrSessionNotFound        = errors.New("session not found")
	ErrDuplicateSession       = errors.New("duplicate payment id")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidAmount          = errors.New("invalid amount")

	// Registry errors
	ErrModelNotRegistered = errors.New("storage model not registered")
	ErrUnknownProvider    = errors.New("unknown payment provider")

	// Webhook errors
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// Provider errors
	ErrProviderRejected    = errors.New("rejected by provider")
	ErrProviderTimeout     = errors.New("provider request timeout")
	ErrProviderUnavailable = errors.New("provider unavailable")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ProviderError carries the provider key and operation that failed alongside
// the underlying cause. Nothing is persisted when one of these is returned.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
