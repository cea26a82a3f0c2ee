/*
Package settlement provides the core payment settlement engine for the
municipal property-tax collection system.

PURPOSE:
  This package contains the domain types and algorithms for tracking what a
  registered property owes, what has been collected against it, and how
  collected revenue is split between the collecting company and the
  municipality. The HTTP layer and the stores are thin shells around the
  functions defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Property: A registered taxable property with an expected amount and a
    running paid aggregate
  - Payment: The per-property payment record carrying discount/exemption
    annotations (one per property, created on approval)
  - PaymentDetail: An append-only installment ledger entry

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing property/payment IDs
  3. Single Currency: All amounts for a property share one currency; there is
     no conversion logic anywhere in the system
  4. Append-Only Ledger: Installments are never edited; the paid aggregate is
     always reconcilable against the sum of its details

USAGE:
  snap := settlement.ComputeBalance(expected, paid, discount, false)
  if snap.CanCollect() { ... }

SEE ALSO:
  - balance.go: Outstanding-balance computation
  - recorder.go: Installment recording, discount, exemption
  - revenue.go: Commission and revenue-split calculators
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// MustParseDecimal parses a stored decimal string, falling back to zero on
// corrupt input. Only used on values this system wrote itself.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PropertyID string
type PaymentID string
type DetailID string

// =============================================================================
// PROPERTY - Registered taxable unit
// =============================================================================

// PaymentStatus is the property-level payment state shown on the dashboard.
type PaymentStatus string

const (
	StatusPending       PaymentStatus = "pending"
	StatusPaidPartially PaymentStatus = "paid_partially"
	StatusPaid          PaymentStatus = "paid"
	StatusExemption     PaymentStatus = "exemption"
)

// Property references the registered unit being taxed. ExpectedAmount is
// fixed at approval time (unit price x area size); PaidAmount is the running
// aggregate of recorded installments and moves only through the Recorder.
type Property struct {
	ID             PropertyID
	OwnerID        string
	PropertyTypeID string
	UnitPrice      decimal.Decimal // price per area unit for the property type
	AreaSize       decimal.Decimal
	ExpectedAmount decimal.Decimal
	PaidAmount     decimal.Decimal
	Status         PaymentStatus
	Approved       bool
	Currency       string

	// Version supports optimistic locking on the paid aggregate. Every
	// successful update increments it; a stale write fails with
	// ErrConcurrentUpdate.
	Version   int64
	CreatedAt time.Time
}

// =============================================================================
// PAYMENT - Per-property payment record (one per property)
// =============================================================================

// PaymentState is the processing state of the payment record itself
// (display only; derived to "completed" when the property is fully paid).
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentCompleted PaymentState = "completed"
	PaymentFailed    PaymentState = "failed"
)

// Payment is created once when a property is approved and mutated by
// discount/exemption operations and by installment recording. Never deleted.
//
// LastAmount is the most recent recorded collection amount, kept for display.
// It is NOT the aggregate; the aggregate lives on Property.PaidAmount.
type Payment struct {
	ID         PaymentID
	PropertyID PropertyID

	LastAmount     decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountReason string

	// Exempt marks an administrative waiver of the whole remaining balance.
	// When true, ExemptionReason is mandatory. Discount and exemption are
	// Payment-level annotations, not ledger rows.
	Exempt          bool
	ExemptionReason string

	Currency string
	State    PaymentState

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PAYMENT DETAIL - Append-only installment ledger entry
// =============================================================================

// PaymentDetail records one collection event. Installment numbers start at 1
// and follow insertion order; display ordering is by PaymentDate ascending.
//
// INVARIANT: after every successful recording,
// sum(PaymentDetail.Amount for the property) == Property.PaidAmount.
type PaymentDetail struct {
	ID                DetailID
	PropertyID        PropertyID
	PaymentID         PaymentID
	Amount            decimal.Decimal
	Currency          string
	InstallmentNumber int
	PaymentDate       time.Time
	CollectedBy       string
	PaymentMethodID   string
	CreatedAt         time.Time
}
