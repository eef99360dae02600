/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All billing error types in one place. Callers classify with
  IsClientError/IsNotFound; the API layer maps those onto HTTP status
  codes.

ERROR CATEGORIES:
  1. Validation errors - caller-correctable (rounding policy, bad period)
  2. Not-found errors - unknown bill id on update/delete
  3. Store errors - persistence failures, passed through wrapped

Zero milk, zero feed, and zero carry-forward are NOT errors: the engine
produces a valid degenerate bill for a farmer with no history.
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a billing period is malformed
	// (end before start, or zero bounds).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrFractionalPayment is returned when the paid amount violates the
	// whole-unit rounding policy. The concrete error is a *RoundingError
	// carrying floor/ceiling suggestions.
	ErrFractionalPayment = errors.New("paid amount must be a whole currency unit")

	// ErrNegativePayment is returned for paid amounts below zero.
	ErrNegativePayment = errors.New("paid amount must be >= 0")

	// ErrBillNotFound is returned when a referenced bill id doesn't exist.
	ErrBillNotFound = errors.New("bill not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RoundingError reports a whole-unit policy violation. Cash settlement
// cannot carry sub-unit fractions, so when net payable is fractional the
// paid amount must be whole; the fractional remainder flows into the
// carry-forward instead. Floor and Ceil are the two acceptable whole-unit
// amounts nearest the computed net payable.
type RoundingError struct {
	NetPayable decimal.Decimal
	Paid       decimal.Decimal
	Floor      decimal.Decimal
	Ceil       decimal.Decimal
}

func (e *RoundingError) Error() string {
	return fmt.Sprintf("net payable %s has a fractional part; pay a whole amount such as %s or %s (got %s)",
		e.NetPayable, e.Floor, e.Ceil, e.Paid)
}

func (e *RoundingError) Unwrap() error {
	return ErrFractionalPayment
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// and the operation can be retried with a corrected request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrFractionalPayment) ||
		errors.Is(err, ErrNegativePayment) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing bill.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBillNotFound)
}
