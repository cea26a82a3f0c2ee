/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is(); structured variants carry the amounts
  involved for human-readable messages.

ERROR CATEGORIES:
  1. Validation errors - Business rule violations (user-correctable)
  2. Conflict errors - Optimistic-lock failures (retry the operation)
  3. Lookup errors - Missing property/payment records

All of these are recoverable; none are fatal to the process. The one place a
failure is deliberately swallowed is the best-effort payment "completed"
transition after full payment - see recorder.go.
*/
package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an amount is non-positive (or
	// negative where zero is allowed, as for discounts).
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNoRemainingBalance is returned when nothing is left to collect:
	// the effective remaining is within tolerance of zero, or the payment
	// is exempt.
	ErrNoRemainingBalance = errors.New("no remaining balance")

	// ErrDiscountExceedsBalance is returned when a discount exceeds the
	// current remaining amount. Discounts never clamp.
	ErrDiscountExceedsBalance = errors.New("discount exceeds remaining balance")

	// ErrReasonRequired is returned when an exemption is requested without
	// a non-empty reason.
	ErrReasonRequired = errors.New("reason required")

	// ErrConcurrentUpdate is returned when optimistic locking detects a
	// conflicting write on the property or payment aggregate. Callers
	// should retry the whole operation.
	ErrConcurrentUpdate = errors.New("concurrent update conflict")

	// ErrInvalidPolicy is returned when a commission or revenue-split
	// policy fails write-time validation.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrPropertyNotFound is returned when a referenced property doesn't exist.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	// Also covers properties that were never approved (no payment yet).
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrDuplicateInstallment is returned when an installment number
	// collides for a property (two writers raced past the count).
	ErrDuplicateInstallment = errors.New("duplicate installment number")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError reports a rejected amount value.
type InvalidAmountError struct {
	Field string
	Value decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value.String())
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// DiscountExceedsBalanceError reports a discount larger than the remaining
// amount at the time of application.
type DiscountExceedsBalanceError struct {
	PaymentID PaymentID
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *DiscountExceedsBalanceError) Error() string {
	return fmt.Sprintf("discount %s exceeds remaining balance %s for payment %s",
		e.Requested.String(), e.Remaining.String(), e.PaymentID)
}

func (e *DiscountExceedsBalanceError) Unwrap() error { return ErrDiscountExceedsBalance }

// PolicyValidationError reports why a policy write was rejected.
type PolicyValidationError struct {
	Field  string
	Detail string
}

func (e *PolicyValidationError) Error() string {
	return fmt.Sprintf("invalid policy: %s: %s", e.Field, e.Detail)
}

func (e *PolicyValidationError) Unwrap() error { return ErrInvalidPolicy }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, ErrDuplicateInstallment)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNoRemainingBalance) ||
		errors.Is(err, ErrDiscountExceedsBalance) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrInvalidPolicy)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
