/*
recorder.go - Installment recording, discount, and exemption workflows

PURPOSE:
  The Recorder is the only writer of the payment ledger and the paid
  aggregate. It wraps every operation in a store transaction and re-reads
  current state inside it, so decisions are always made against the current
  paid amount rather than whatever a stale dashboard showed.

OPERATIONS:
  RecordInstallment: Cap the requested amount at the effective remaining,
    append the ledger entry, bump the paid aggregate, recompute status.
  ApplyDiscount:     Overwrite the payment's discount, hard-validated
    against the current remaining amount (no clamping here).
  ApplyExemption:    Mark the payment exempt with a mandatory reason. No
    ledger entry is written - exemption is an annotation, and the ledger
    view synthesizes its display row.
  ApproveProperty:   Fix the expected amount (unit price x area) and create
    the property's payment record. Idempotent.

CONCURRENCY:
  Two concurrent recordings for the same property are a lost-update race on
  the paid aggregate. Each operation therefore runs inside WithTx and writes
  the property/payment rows under an optimistic version check; a stale write
  surfaces as ErrConcurrentUpdate and the caller retries the whole call.

BEST-EFFORT COMPLETION:
  When a recording brings the property to fully paid, the parent payment is
  additionally moved to "completed". That transition happens AFTER the
  primary transaction commits and its failure is logged, never propagated:
  the installment itself must stand even if the secondary status write
  fails.
*/
package settlement

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Recorder executes the collection workflows against a transactional store.
type Recorder struct {
	Store TxStore

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store TxStore) *Recorder {
	return &Recorder{Store: store, Now: time.Now}
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// =============================================================================
// RECORD INSTALLMENT
// =============================================================================

// RecordInstallmentInput carries one collection event.
type RecordInstallmentInput struct {
	PropertyID      PropertyID
	Amount          decimal.Decimal
	PaymentMethodID string
	CollectedBy     string
}

// RecordInstallmentResult returns the created ledger entry and the balance
// state after the recording. AmountAdjusted is true when the requested
// amount exceeded the collectible balance and was capped; the caller shows
// a transient notice in that case.
type RecordInstallmentResult struct {
	Detail         PaymentDetail
	Balance        BalanceSnapshot
	AmountAdjusted bool
}

// RecordInstallment records a collection against a property.
//
// The requested amount must be positive; it is silently capped at the
// effective remaining balance. The ledger append, the paid-aggregate bump
// and the status recomputation commit atomically.
func (r *Recorder) RecordInstallment(ctx context.Context, in RecordInstallmentInput) (*RecordInstallmentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, &InvalidAmountError{Field: "amount", Value: in.Amount}
	}

	var result RecordInstallmentResult
	var fullyPaid bool
	var paymentID PaymentID

	err := r.Store.WithTx(ctx, func(s Store) error {
		prop, pay, err := loadPropertyAndPayment(ctx, s, in.PropertyID)
		if err != nil {
			return err
		}

		before := BalanceFor(prop, pay)
		if !before.CanCollect() {
			return fmt.Errorf("property %s: %w", prop.ID, ErrNoRemainingBalance)
		}

		finalAmount, adjusted := before.ClampToCollectible(in.Amount)
		if !finalAmount.GreaterThan(decimal.Zero) {
			return fmt.Errorf("property %s: %w", prop.ID, ErrNoRemainingBalance)
		}

		existing, err := s.DetailsByProperty(ctx, prop.ID)
		if err != nil {
			return err
		}

		now := r.now()
		installment := len(existing) + 1
		// Keyed by installment number, which the store already enforces
		// unique per property. A clock-derived ID collides whenever Now is
		// frozen.
		detail := PaymentDetail{
			ID:                DetailID(fmt.Sprintf("det-%s-%d", prop.ID, installment)),
			PropertyID:        prop.ID,
			PaymentID:         pay.ID,
			Amount:            finalAmount,
			Currency:          pay.Currency,
			InstallmentNumber: installment,
			PaymentDate:       now,
			CollectedBy:       in.CollectedBy,
			PaymentMethodID:   in.PaymentMethodID,
			CreatedAt:         now,
		}
		if err := s.AppendDetail(ctx, detail); err != nil {
			return err
		}

		prop.PaidAmount = prop.PaidAmount.Add(finalAmount)
		after := BalanceFor(prop, pay)
		prop.Status = after.Status()
		if err := s.UpdatePropertyBalance(ctx, *prop, prop.Version); err != nil {
			return err
		}

		pay.LastAmount = finalAmount
		pay.UpdatedAt = now
		if err := s.UpdatePayment(ctx, *pay, pay.Version); err != nil {
			return err
		}

		result = RecordInstallmentResult{
			Detail:         detail,
			Balance:        after,
			AmountAdjusted: adjusted,
		}
		fullyPaid = after.FullyPaid
		paymentID = pay.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fullyPaid {
		r.markPaymentCompleted(ctx, paymentID)
	}

	return &result, nil
}

// markPaymentCompleted transitions the payment to "completed" after full
// payment. Best-effort: a failure here is logged and swallowed so it can
// never undo the committed installment.
func (r *Recorder) markPaymentCompleted(ctx context.Context, id PaymentID) {
	pay, err := r.Store.GetPayment(ctx, id)
	if err != nil || pay == nil {
		log.Printf("[Recorder] could not load payment %s to mark completed: %v", id, err)
		return
	}
	if pay.State == PaymentCompleted {
		return
	}
	pay.State = PaymentCompleted
	pay.UpdatedAt = r.now()
	if err := r.Store.UpdatePayment(ctx, *pay, pay.Version); err != nil {
		log.Printf("[Recorder] failed to mark payment %s completed: %v", id, err)
	}
}

// =============================================================================
// APPLY DISCOUNT
// =============================================================================

// ApplyDiscount sets the payment's discount. Overwrite semantics: a second
// call replaces the previous discount, it does not add to it.
//
// Unlike collection amounts, discounts never clamp - a discount above the
// current remaining amount is a hard validation error.
func (r *Recorder) ApplyDiscount(ctx context.Context, paymentID PaymentID, amount decimal.Decimal, reason string) (*Payment, error) {
	if amount.IsNegative() {
		return nil, &InvalidAmountError{Field: "discount_amount", Value: amount}
	}

	var updated Payment
	err := r.Store.WithTx(ctx, func(s Store) error {
		pay, err := s.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay == nil {
			return fmt.Errorf("payment %s: %w", paymentID, ErrPaymentNotFound)
		}

		prop, err := s.GetProperty(ctx, pay.PropertyID)
		if err != nil {
			return err
		}
		if prop == nil {
			return fmt.Errorf("property %s: %w", pay.PropertyID, ErrPropertyNotFound)
		}

		// The cap is the remaining amount computed from the CURRENT paid
		// aggregate, never the original expected amount.
		snap := BalanceFor(prop, pay)
		if !snap.CanCollect() {
			return fmt.Errorf("payment %s: %w", paymentID, ErrNoRemainingBalance)
		}
		if amount.GreaterThan(snap.RemainingAmount) {
			return &DiscountExceedsBalanceError{
				PaymentID: paymentID,
				Requested: amount,
				Remaining: snap.RemainingAmount,
			}
		}

		pay.DiscountAmount = amount
		pay.DiscountReason = reason
		pay.UpdatedAt = r.now()
		if err := s.UpdatePayment(ctx, *pay, pay.Version); err != nil {
			return err
		}
		pay.Version++
		updated = *pay
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// =============================================================================
// APPLY EXEMPTION
// =============================================================================

// ApplyExemption waives the property's remaining balance. The reason is
// mandatory. Paid amounts and the installment ledger are untouched; the
// property status moves to "exemption".
func (r *Recorder) ApplyExemption(ctx context.Context, paymentID PaymentID, reason string) (*Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("exemption: %w", ErrReasonRequired)
	}

	var updated Payment
	err := r.Store.WithTx(ctx, func(s Store) error {
		pay, err := s.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay == nil {
			return fmt.Errorf("payment %s: %w", paymentID, ErrPaymentNotFound)
		}

		prop, err := s.GetProperty(ctx, pay.PropertyID)
		if err != nil {
			return err
		}
		if prop == nil {
			return fmt.Errorf("property %s: %w", pay.PropertyID, ErrPropertyNotFound)
		}

		snap := BalanceFor(prop, pay)
		if !snap.CanCollect() {
			return fmt.Errorf("payment %s: %w", paymentID, ErrNoRemainingBalance)
		}

		pay.Exempt = true
		pay.ExemptionReason = reason
		pay.UpdatedAt = r.now()
		if err := s.UpdatePayment(ctx, *pay, pay.Version); err != nil {
			return err
		}
		pay.Version++

		prop.Status = StatusExemption
		if err := s.UpdatePropertyBalance(ctx, *prop, prop.Version); err != nil {
			return err
		}

		updated = *pay
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// =============================================================================
// APPROVE PROPERTY
// =============================================================================

// ApproveProperty fixes the property's expected amount (unit price x area
// size) and creates its payment record in the given currency. Calling it on
// an already-approved property returns the existing payment unchanged.
func (r *Recorder) ApproveProperty(ctx context.Context, propertyID PropertyID, currency string) (*Payment, error) {
	var created Payment
	err := r.Store.WithTx(ctx, func(s Store) error {
		prop, err := s.GetProperty(ctx, propertyID)
		if err != nil {
			return err
		}
		if prop == nil {
			return fmt.Errorf("property %s: %w", propertyID, ErrPropertyNotFound)
		}

		existing, err := s.GetPaymentByProperty(ctx, propertyID)
		if err != nil {
			return err
		}
		if existing != nil {
			created = *existing
			return nil
		}

		now := r.now()
		prop.ExpectedAmount = prop.UnitPrice.Mul(prop.AreaSize)
		prop.Approved = true
		prop.Status = StatusPending
		if currency == "" {
			currency = prop.Currency
		}
		prop.Currency = currency
		if err := s.UpdatePropertyBalance(ctx, *prop, prop.Version); err != nil {
			return err
		}

		pay := Payment{
			ID:         PaymentID(fmt.Sprintf("pay-%s", propertyID)),
			PropertyID: propertyID,
			Currency:   currency,
			State:      PaymentPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.SavePayment(ctx, pay); err != nil {
			return err
		}
		created = pay
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func loadPropertyAndPayment(ctx context.Context, s Store, id PropertyID) (*Property, *Payment, error) {
	prop, err := s.GetProperty(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if prop == nil {
		return nil, nil, fmt.Errorf("property %s: %w", id, ErrPropertyNotFound)
	}

	pay, err := s.GetPaymentByProperty(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if pay == nil {
		return nil, nil, fmt.Errorf("property %s has no payment record: %w", id, ErrPaymentNotFound)
	}
	return prop, pay, nil
}
