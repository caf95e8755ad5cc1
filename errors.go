package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("credits: not found")
	ErrInvalidInput = errors.New("credits: invalid input")
	ErrInvalidPlan  = errors.New("credits: invalid plan")

	// Store errors
	ErrRemoteUnavailable = errors.New("credits: remote store unavailable")
	ErrMalformedRecord   = errors.New("credits: malformed entitlement record")
	ErrStoreClosed       = errors.New("credits: store is closed")

	// Cache errors
	ErrCacheMiss = errors.New("credits: cache miss")

	// Payment errors
	ErrPaymentUnavailable = errors.New("credits: payment library unavailable")
	ErrPaymentDismissed   = errors.New("credits: payment dismissed by user")
	ErrPaymentFailed      = errors.New("credits: payment failed")
	ErrPaymentUnverified  = errors.New("credits: payment could not be verified")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "credits: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("credits: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error. Malformed
// records count as not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformedRecord)
}

// IsMalformed returns true if a stored record could not be parsed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}

// IsRemoteUnavailable returns true if the error came from an unreachable
// remote store.
func IsRemoteUnavailable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsPaymentFailure returns true for every purchase failure outcome.
func IsPaymentFailure(err error) bool {
	return errors.Is(err, ErrPaymentUnavailable) ||
		errors.Is(err, ErrPaymentDismissed) ||
		errors.Is(err, ErrPaymentFailed) ||
		errors.Is(err, ErrPaymentUnverified)
}

// IsRetryable returns true if the user may simply try the operation again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPaymentDismissed) ||
		errors.Is(err, ErrPaymentFailed) ||
		errors.Is(err, ErrRemoteUnavailable)
}
