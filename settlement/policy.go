/*
policy.go - Admin-configured settlement policies

PURPOSE:
  Defines the two singleton policies that drive revenue settlement:

  CommissionPolicy:   The percentage collectors take off the gross collected
                      amount before the revenue split.
  RevenueSplitPolicy: How net (post-commission) revenue divides between the
                      collecting company and the municipality.

VALIDATION:
  Policies are validated at WRITE time, not read time. Reads always succeed
  and fall back to defaults when nothing has been configured yet. The split
  shares must sum to 100 within a 0.01 tolerance (float-entered values from
  the admin form can carry rounding residue).
*/
package settlement

import "github.com/shopspring/decimal"

// =============================================================================
// COMMISSION POLICY
// =============================================================================

// CommissionPolicy is the singleton collector-commission configuration.
type CommissionPolicy struct {
	RatePercent decimal.Decimal
}

// Validate checks the rate is within [0, 100].
func (p CommissionPolicy) Validate() error {
	if p.RatePercent.IsNegative() || p.RatePercent.GreaterThan(hundred) {
		return &PolicyValidationError{
			Field:  "rate_percent",
			Detail: "must be between 0 and 100",
		}
	}
	return nil
}

// DefaultCommissionPolicy applies until an admin configures one.
func DefaultCommissionPolicy() CommissionPolicy {
	return CommissionPolicy{RatePercent: decimal.Zero}
}

// =============================================================================
// REVENUE SPLIT POLICY
// =============================================================================

// RevenueSplitPolicy is the singleton company/municipality split
// configuration.
type RevenueSplitPolicy struct {
	CompanySharePercent      decimal.Decimal
	MunicipalitySharePercent decimal.Decimal
}

// Validate checks each share is within [0, 100] and the shares sum to 100
// within tolerance.
func (p RevenueSplitPolicy) Validate() error {
	for _, f := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"company_share_percent", p.CompanySharePercent},
		{"municipality_share_percent", p.MunicipalitySharePercent},
	} {
		if f.value.IsNegative() || f.value.GreaterThan(hundred) {
			return &PolicyValidationError{
				Field:  f.name,
				Detail: "must be between 0 and 100",
			}
		}
	}

	sum := p.CompanySharePercent.Add(p.MunicipalitySharePercent)
	if sum.Sub(hundred).Abs().GreaterThan(Tolerance) {
		return &PolicyValidationError{
			Field:  "shares",
			Detail: "company and municipality shares must sum to 100",
		}
	}
	return nil
}

// DefaultRevenueSplitPolicy is an even split, applied until configured.
func DefaultRevenueSplitPolicy() RevenueSplitPolicy {
	fifty := decimal.NewFromInt(50)
	return RevenueSplitPolicy{
		CompanySharePercent:      fifty,
		MunicipalitySharePercent: fifty,
	}
}
