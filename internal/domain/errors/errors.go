// Package errors provides standardized error types for the domain layer.
// The taxonomy separates capacity, validation, transient-provider and
// settlement failures so callers can map each to the right behavior.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrPoolExhausted indicates no free deposit address is available for the
	// requested payment method. Retryable later; never silently substituted.
	ErrPoolExhausted = errors.New("deposit address pool exhausted")

	// ErrPriceUnavailable indicates every price source failed
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrProviderUnavailable indicates a chain or price provider transport
	// failure. The order in question is left untouched and retried next pass.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRateLimited indicates a provider rejected the request for rate
	// limiting; the worker extends its pass sleep when it sees this.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrSendFailed indicates the settlement payout could not be issued
	ErrSendFailed = errors.New("settlement send failed")

	// ErrConflict indicates a conflict with the current state
	ErrConflict = errors.New("conflict")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(err error, code, message string) *DomainError {
	return &DomainError{Err: err, Code: code, Message: message}
}

// WithRetryable marks the error as retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// CapacityError creates a pool-exhaustion error for a payment method
func CapacityError(method string) *DomainError {
	return &DomainError{
		Err:       ErrPoolExhausted,
		Code:      "POOL_EXHAUSTED",
		Message:   fmt.Sprintf("no deposit addresses available for %s", method),
		Retryable: true,
	}
}

// ValidationError creates an invalid-input error
func ValidationError(message string) *DomainError {
	return &DomainError{Err: ErrInvalidInput, Code: "INVALID_INPUT", Message: message}
}

// IsTransient reports whether err is a provider transport failure the
// reconciliation worker should skip over rather than escalate.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}
