/*
revenue.go - Commission and revenue-split calculators

PURPOSE:
  Computes how collected revenue settles between collectors (commission),
  the collecting company, and the municipality. Two distinct rules live
  here and they are NOT interchangeable:

  ComputeDailySettlement - the end-of-day settlement over a day's collected
    installments. Commission comes off the gross; the company share is a
    percentage of the net; the municipality receives the REMAINDER of the
    net (not an independent multiply) so the two shares always sum exactly
    to the net with no rounding drift.

  ComputeReportSplit - the ad-hoc report rule. The company share is computed
    on the GROSS amount, untouched by discounts and exemptions; the
    municipality absorbs both and is floored at zero. The asymmetry is a
    deliberate business rule between the stakeholders; do not make it
    symmetric.

PURITY:
  Both calculators are pure. Callers filter the payment list to the period
  beforehand; this file never touches a store or a clock.
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAILY SETTLEMENT
// =============================================================================

// CollectedPayment is one installment amount inside a settlement period.
type CollectedPayment struct {
	Amount   decimal.Decimal
	Currency string
}

// Settlement is the end-of-day settlement over a set of collected payments.
type Settlement struct {
	Date               time.Time
	TotalCollected     decimal.Decimal
	CommissionAmount   decimal.Decimal
	NetAfterCommission decimal.Decimal
	CompanyShare       decimal.Decimal
	MunicipalityShare  decimal.Decimal
	PaymentCount       int
	Currency           string
}

// ComputeDailySettlement settles a day's collected payments under the given
// policies. An empty payment list is a valid zero settlement, not an error.
//
// The caller is responsible for filtering payments to the requested date;
// this function sums whatever it is handed.
func ComputeDailySettlement(
	date time.Time,
	payments []CollectedPayment,
	commission CommissionPolicy,
	split RevenueSplitPolicy,
) Settlement {
	total := decimal.Zero
	currency := ""
	for _, p := range payments {
		total = total.Add(p.Amount)
		if currency == "" {
			currency = p.Currency
		}
	}

	commissionAmount := total.Mul(commission.RatePercent).Div(hundred)
	net := total.Sub(commissionAmount)

	companyShare := net.Mul(split.CompanySharePercent).Div(hundred)
	// Remainder, not an independent percentage multiply. Guarantees
	// companyShare + municipalityShare == net exactly.
	municipalityShare := net.Sub(companyShare)

	return Settlement{
		Date:               date,
		TotalCollected:     total,
		CommissionAmount:   commissionAmount,
		NetAfterCommission: net,
		CompanyShare:       companyShare,
		MunicipalityShare:  municipalityShare,
		PaymentCount:       len(payments),
		Currency:           currency,
	}
}

// =============================================================================
// AD-HOC REPORT SPLIT
// =============================================================================

// ReportSplit is the stakeholder split used by the ad-hoc report view.
type ReportSplit struct {
	TotalAmount       decimal.Decimal
	TotalDiscount     decimal.Decimal
	TotalExemptAmount decimal.Decimal
	NetCollected      decimal.Decimal
	CompanyShare      decimal.Decimal
	MunicipalityShare decimal.Decimal
}

// ComputeReportSplit computes the asymmetric report split: the company share
// is taken on the gross total, while discounts and exemptions reduce only
// the municipality's side (floored at zero).
func ComputeReportSplit(totalAmount, totalDiscount, totalExemptAmount, companySharePercent decimal.Decimal) ReportSplit {
	companyShare := totalAmount.Mul(companySharePercent).Div(hundred)
	net := totalAmount.Sub(totalDiscount).Sub(totalExemptAmount)

	municipalityShare := net.Sub(companyShare)
	if municipalityShare.IsNegative() {
		municipalityShare = decimal.Zero
	}

	return ReportSplit{
		TotalAmount:       totalAmount,
		TotalDiscount:     totalDiscount,
		TotalExemptAmount: totalExemptAmount,
		NetCollected:      net,
		CompanyShare:      companyShare,
		MunicipalityShare: municipalityShare,
	}
}

// =============================================================================
// DAY BUCKETING
// =============================================================================

// DayOf truncates a timestamp to its UTC calendar day. Settlement periods
// are keyed by day; all bucketing goes through here so the store and the
// scheduler agree on boundaries.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
