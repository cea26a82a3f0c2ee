/*
balance.go - Outstanding-balance computation

PURPOSE:
  Computes what a property still owes from its expected amount, its paid
  aggregate, and the discount/exemption annotations on its payment record.
  This is the central calculation that answers "how much is still
  collectible for this property?"

KEY DISTINCTION:
  RemainingAmount:    expected - paid, floored at zero. Ignores the discount.
  EffectiveRemaining: remaining - discount, floored at zero. What a collector
                      may still collect.

  A property whose discount wipes the due amount is NOT fully paid: the
  dashboard must show "balance cleared (discount)" rather than "fully paid".
  ClearedByDiscount preserves that distinction.

TOLERANCE:
  Monetary comparisons use a 0.01 tolerance so that rounding residue from
  historical float-serialized amounts never leaves a property stuck one cent
  short of "paid".

PURITY:
  ComputeBalance has no side effects and no dependencies. Every view, report
  and workflow derives remaining amounts through this one function; nothing
  else in the repository re-implements the arithmetic.

SEE ALSO:
  - recorder.go: Uses CanCollect as the action gate for collect/discount/exempt
  - ledger.go: Display-side ledger synthesis
*/
package settlement

import "github.com/shopspring/decimal"

// Tolerance is the monetary comparison tolerance. Balances within one cent
// of zero are treated as settled.
var Tolerance = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// =============================================================================
// BALANCE SNAPSHOT - Computed state, never stored
// =============================================================================

// BalanceSnapshot is the computed balance state for a property at the moment
// of the call. It is derived data: recompute rather than persist.
type BalanceSnapshot struct {
	ExpectedAmount decimal.Decimal
	PaidAmount     decimal.Decimal
	DiscountAmount decimal.Decimal
	Exempt         bool

	// RemainingAmount = max(0, expected - paid). Raw remaining, discount
	// not applied.
	RemainingAmount decimal.Decimal

	// EffectiveRemaining = max(0, remaining - discount). The amount still
	// collectible.
	EffectiveRemaining decimal.Decimal

	// FullyPaid is true when the raw remaining is within tolerance of zero.
	FullyPaid bool

	// ClearedByDiscount is true when the discount wiped the due amount while
	// the raw remaining is still positive. Mutually exclusive with FullyPaid.
	ClearedByDiscount bool

	// PaymentPercentage = paid / expected * 100, or 0 when expected is 0.
	PaymentPercentage decimal.Decimal
}

// ComputeBalance derives the balance state for a property. Pure function:
// identical inputs always yield identical outputs.
func ComputeBalance(expected, paid, discount decimal.Decimal, exempt bool) BalanceSnapshot {
	remaining := expected.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	effective := remaining.Sub(discount)
	if effective.IsNegative() {
		effective = decimal.Zero
	}

	fullyPaid := remaining.LessThanOrEqual(Tolerance)
	cleared := effective.LessThanOrEqual(Tolerance) && remaining.GreaterThan(Tolerance)

	percentage := decimal.Zero
	if expected.IsPositive() {
		percentage = paid.Div(expected).Mul(hundred)
	}

	return BalanceSnapshot{
		ExpectedAmount:     expected,
		PaidAmount:         paid,
		DiscountAmount:     discount,
		Exempt:             exempt,
		RemainingAmount:    remaining,
		EffectiveRemaining: effective,
		FullyPaid:          fullyPaid,
		ClearedByDiscount:  cleared,
		PaymentPercentage:  percentage,
	}
}

// BalanceFor computes the snapshot for a property/payment pair. The payment
// may be nil (property registered but not yet approved): discount and
// exemption then default to zero/false.
func BalanceFor(p *Property, pay *Payment) BalanceSnapshot {
	discount := decimal.Zero
	exempt := false
	if pay != nil {
		discount = pay.DiscountAmount
		exempt = pay.Exempt
	}
	return ComputeBalance(p.ExpectedAmount, p.PaidAmount, discount, exempt)
}

// CanCollect reports whether further collection, discount, or exemption
// actions may be offered. All three are gated identically: there must be a
// collectible balance and the payment must not already be exempt.
func (b BalanceSnapshot) CanCollect() bool {
	return b.EffectiveRemaining.GreaterThan(Tolerance) && !b.Exempt
}

// Status derives the property-level payment status from the snapshot.
func (b BalanceSnapshot) Status() PaymentStatus {
	switch {
	case b.Exempt:
		return StatusExemption
	case b.FullyPaid:
		return StatusPaid
	case b.PaidAmount.GreaterThan(decimal.Zero):
		return StatusPaidPartially
	default:
		return StatusPending
	}
}

// ClampToCollectible caps a requested collection amount at the effective
// remaining balance. Returns the capped amount and whether clamping occurred.
//
// NOTE: collection amounts clamp silently (the caller shows a transient
// notice); discounts do NOT clamp - an out-of-range discount is a hard
// validation error in ApplyDiscount. The two policies are deliberately
// different.
func (b BalanceSnapshot) ClampToCollectible(requested decimal.Decimal) (decimal.Decimal, bool) {
	if requested.GreaterThan(b.EffectiveRemaining) {
		return b.EffectiveRemaining, true
	}
	return requested, false
}
