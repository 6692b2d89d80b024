package tickledger

import (
	"errors"
	"fmt"

	"github.com/xraph/tickledger/collector"
	"github.com/xraph/tickledger/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput = errors.New("tickledger: invalid input")
	ErrUnauthorized = errors.New("tickledger: unauthorized")

	// Time errors
	ErrNonMonotonicTime = errors.New("tickledger: time must strictly increase")

	// Purchase errors
	ErrPriceNotSet        = errors.New("tickledger: price per unit not set")
	ErrSubMinimumPurchase = errors.New("tickledger: amount buys zero units")
	ErrCurrencyMismatch   = types.ErrCurrencyMismatch

	// Accounting errors
	ErrArithmeticOverflow      = types.ErrOverflow
	ErrInsufficientPooledFunds = collector.ErrInsufficientFunds

	// Store errors
	ErrStoreNotConfigured = errors.New("tickledger: store not configured")
	ErrSnapshotNotFound   = errors.New("tickledger: snapshot not found")
	ErrCorruptSnapshot    = errors.New("tickledger: snapshot violates ledger invariants")
	ErrInstanceMismatch   = errors.New("tickledger: snapshot belongs to another instance")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tickledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tickledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tickledger: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

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

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsFatal reports errors that signal a broken environment or corrupted
// state rather than a bad request: non-monotonic time, arithmetic overflow,
// an underfunded pool, or an invalid snapshot.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNonMonotonicTime) ||
		errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, ErrInsufficientPooledFunds) ||
		errors.Is(err, ErrCorruptSnapshot)
}

// IsRejection reports errors where the caller's request was refused and
// nothing changed.
func IsRejection(err error) bool {
	return errors.Is(err, ErrSubMinimumPurchase) ||
		errors.Is(err, ErrPriceNotSet) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}
