package billing

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by the repository when a lookup matches no row.
var ErrNotFound = errors.New("billing: record not found")

// ErrInvalidRequest marks input rejected before any provider or store call.
var ErrInvalidRequest = errors.New("billing: invalid request")

// VerificationError reports a delivery whose authenticity could not be
// established. It is terminal and never retried server-side.
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("billing: verification failed: %s: %v", e.Reason, e.Err)
	}
	return "billing: verification failed: " + e.Reason
}

func (e *VerificationError) Unwrap() error { return e.Err }

// UnknownCustomerError reports a provider customer with no local mapping.
type UnknownCustomerError struct {
	CustomerID string
}

func (e *UnknownCustomerError) Error() string {
	return fmt.Sprintf("billing: no customer mapping for provider customer %q", e.CustomerID)
}

// ProviderAPIError wraps a failed call to the payment provider.
type ProviderAPIError struct {
	Op         string
	Code       string
	StatusCode int
	Err        error
}

func (e *ProviderAPIError) Error() string {
	msg := "billing: provider " + e.Op + " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d", e.StatusCode)
		if e.Code != "" {
			msg += ", code " + e.Code
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderAPIError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("billing: store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IdentityResolutionError reports that no provider customer could be obtained
// for a local user.
type IdentityResolutionError struct {
	UserID string
	Err    error
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("billing: resolve customer for user %q: %v", e.UserID, e.Err)
}

func (e *IdentityResolutionError) Unwrap() error { return e.Err }

// PropagationWarning reports a failed billing detail copy. It never changes
// the outcome of the event that triggered it.
type PropagationWarning struct {
	UserID string
	Err    error
}

func (e *PropagationWarning) Error() string {
	return fmt.Sprintf("billing: propagate billing details for user %q: %v", e.UserID, e.Err)
}

func (e *PropagationWarning) Unwrap() error { return e.Err }

// DecodeError reports an event payload that cannot be applied as delivered.
// Redelivering the same bytes cannot fix it.
type DecodeError struct {
	EventType string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("billing: decode %s payload: %v", e.EventType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsRetryable reports whether a redelivery of the same event may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var unknown *UnknownCustomerError
	var decode *DecodeError
	var verify *VerificationError
	if errors.As(err, &unknown) || errors.As(err, &decode) || errors.As(err, &verify) {
		return false
	}

	var provider *ProviderAPIError
	var persistence *PersistenceError
	if errors.As(err, &provider) || errors.As(err, &persistence) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
