/*
ledger.go - Installment ledger view and reconciliation check

PURPOSE:
  The installment ledger is the append-only record of collection events for
  a property. This file builds the display-side view of that ledger and
  verifies the core reconciliation invariant.

SYNTHESIZED ROWS:
  Discount and exemption are Payment-level annotations, not ledger rows.
  The dashboard still shows them inline with the installments, so BuildLedger
  synthesizes display-only entries for them. Synthesized rows carry
  installment number 0 and never contribute to the paid aggregate.

INVARIANT:
  sum(PaymentDetail.Amount) == Property.PaidAmount after every successful
  recording. VerifyLedger recomputes the sum and reports drift; it is used
  by tests and by the admin reconciliation endpoint.
*/
package settlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

type LedgerEntryKind string

const (
	EntryInstallment LedgerEntryKind = "installment"
	EntryDiscount    LedgerEntryKind = "discount"
	EntryExemption   LedgerEntryKind = "exemption"
)

// LedgerRow is one display row of a property's payment history. Installment
// rows map 1:1 to PaymentDetail rows; discount and exemption rows are
// synthesized.
type LedgerRow struct {
	Kind              LedgerEntryKind
	DetailID          DetailID // empty for synthesized rows
	InstallmentNumber int      // 0 for synthesized rows
	Amount            decimal.Decimal
	Currency          string
	Reason            string
	CollectedBy       string
	PaymentMethodID   string
	Date              string // RFC 3339; empty for synthesized rows
}

// BuildLedger assembles the display ledger: installments ordered by payment
// date ascending, followed by synthesized discount and exemption rows from
// the payment annotations. The payment may be nil.
func BuildLedger(details []PaymentDetail, pay *Payment) []LedgerRow {
	sorted := make([]PaymentDetail, len(details))
	copy(sorted, details)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PaymentDate.Before(sorted[j].PaymentDate)
	})

	rows := make([]LedgerRow, 0, len(sorted)+2)
	for _, d := range sorted {
		rows = append(rows, LedgerRow{
			Kind:              EntryInstallment,
			DetailID:          d.ID,
			InstallmentNumber: d.InstallmentNumber,
			Amount:            d.Amount,
			Currency:          d.Currency,
			CollectedBy:       d.CollectedBy,
			PaymentMethodID:   d.PaymentMethodID,
			Date:              d.PaymentDate.UTC().Format(time.RFC3339),
		})
	}

	if pay != nil && pay.DiscountAmount.GreaterThan(decimal.Zero) {
		rows = append(rows, LedgerRow{
			Kind:     EntryDiscount,
			Amount:   pay.DiscountAmount,
			Currency: pay.Currency,
			Reason:   pay.DiscountReason,
		})
	}

	if pay != nil && pay.Exempt {
		// Exemption shows as a zero-amount row; the waiver covers whatever
		// remains, so no fixed amount is attached.
		rows = append(rows, LedgerRow{
			Kind:     EntryExemption,
			Amount:   decimal.Zero,
			Currency: pay.Currency,
			Reason:   pay.ExemptionReason,
		})
	}

	return rows
}

// SumDetails returns the sum of installment amounts.
func SumDetails(details []PaymentDetail) decimal.Decimal {
	sum := decimal.Zero
	for _, d := range details {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// VerifyLedger checks that the property's paid aggregate equals the sum of
// its installment details exactly.
func VerifyLedger(p *Property, details []PaymentDetail) error {
	sum := SumDetails(details)
	if !sum.Equal(p.PaidAmount) {
		return fmt.Errorf("ledger drift for property %s: details sum %s, paid amount %s",
			p.ID, sum.String(), p.PaidAmount.String())
	}
	return nil
}
