/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AT THE BOUNDARY:
  Amounts cross the wire as JSON numbers and are converted to
  decimal.Decimal immediately on decode. No handler or domain function ever
  sees a float. Field-name matching on decode is case-insensitive
  (encoding/json), which also absorbs the PascalCase payloads some older
  dashboard builds still send.

VALIDATION:
  Validation is done in handlers and the settlement package, not in DTOs.
  DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// PROPERTY TYPES
// =============================================================================

// PropertyDTO represents a property in API responses.
type PropertyDTO struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	PropertyTypeID string  `json:"property_type_id"`
	UnitPrice      float64 `json:"unit_price"`
	AreaSize       float64 `json:"area_size"`
	ExpectedAmount float64 `json:"expected_amount"`
	PaidAmount     float64 `json:"paid_amount"`
	Status         string  `json:"status"`
	Approved       bool    `json:"approved"`
	Currency       string  `json:"currency,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

func propertyDTO(p settlement.Property) PropertyDTO {
	return PropertyDTO{
		ID:             string(p.ID),
		OwnerID:        p.OwnerID,
		PropertyTypeID: p.PropertyTypeID,
		UnitPrice:      p.UnitPrice.InexactFloat64(),
		AreaSize:       p.AreaSize.InexactFloat64(),
		ExpectedAmount: p.ExpectedAmount.InexactFloat64(),
		PaidAmount:     p.PaidAmount.InexactFloat64(),
		Status:         string(p.Status),
		Approved:       p.Approved,
		Currency:       p.Currency,
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreatePropertyRequest registers a property pending approval.
type CreatePropertyRequest struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	PropertyTypeID string  `json:"property_type_id"`
	UnitPrice      float64 `json:"unit_price"`
	AreaSize       float64 `json:"area_size"`
	Currency       string  `json:"currency"`
}

// ApprovePropertyRequest fixes the expected amount and creates the payment.
type ApprovePropertyRequest struct {
	Currency string `json:"currency"`
}

// =============================================================================
// BALANCE TYPES
// =============================================================================

// BalanceDTO is the computed balance state for a property.
type BalanceDTO struct {
	PropertyID         string  `json:"property_id"`
	ExpectedAmount     float64 `json:"expected_amount"`
	PaidAmount         float64 `json:"paid_amount"`
	DiscountAmount     float64 `json:"discount_amount"`
	RemainingAmount    float64 `json:"remaining_amount"`
	EffectiveRemaining float64 `json:"effective_remaining"`
	FullyPaid          bool    `json:"fully_paid"`
	ClearedByDiscount  bool    `json:"cleared_by_discount"`
	Exempt             bool    `json:"exempt"`
	CanCollect         bool    `json:"can_collect"`
	PaymentPercentage  float64 `json:"payment_percentage"`
	Status             string  `json:"status"`
}

func balanceDTO(id settlement.PropertyID, b settlement.BalanceSnapshot) BalanceDTO {
	return BalanceDTO{
		PropertyID:         string(id),
		ExpectedAmount:     b.ExpectedAmount.InexactFloat64(),
		PaidAmount:         b.PaidAmount.InexactFloat64(),
		DiscountAmount:     b.DiscountAmount.InexactFloat64(),
		RemainingAmount:    b.RemainingAmount.InexactFloat64(),
		EffectiveRemaining: b.EffectiveRemaining.InexactFloat64(),
		FullyPaid:          b.FullyPaid,
		ClearedByDiscount:  b.ClearedByDiscount,
		Exempt:             b.Exempt,
		CanCollect:         b.CanCollect(),
		PaymentPercentage:  b.PaymentPercentage.InexactFloat64(),
		Status:             string(b.Status()),
	}
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// PaymentDTO represents a payment record in API responses.
type PaymentDTO struct {
	ID              string  `json:"id"`
	PropertyID      string  `json:"property_id"`
	LastAmount      float64 `json:"amount"`
	DiscountAmount  float64 `json:"discount_amount"`
	DiscountReason  string  `json:"discount_reason,omitempty"`
	Exempt          bool    `json:"is_exempt"`
	ExemptionReason string  `json:"exemption_reason,omitempty"`
	Currency        string  `json:"currency"`
	State           string  `json:"status"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

func paymentDTO(p settlement.Payment) PaymentDTO {
	return PaymentDTO{
		ID:              string(p.ID),
		PropertyID:      string(p.PropertyID),
		LastAmount:      p.LastAmount.InexactFloat64(),
		DiscountAmount:  p.DiscountAmount.InexactFloat64(),
		DiscountReason:  p.DiscountReason,
		Exempt:          p.Exempt,
		ExemptionReason: p.ExemptionReason,
		Currency:        p.Currency,
		State:           string(p.State),
		UpdatedAt:       p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// UpdatePaymentRequest carries a discount, an exemption, or a display-state
// change. Exactly one action is applied per call; exemption wins when both
// are present.
type UpdatePaymentRequest struct {
	DiscountAmount  *float64 `json:"discount_amount,omitempty"`
	DiscountReason  string   `json:"discount_reason,omitempty"`
	IsExempt        *bool    `json:"is_exempt,omitempty"`
	ExemptionReason string   `json:"exemption_reason,omitempty"`
	Status          string   `json:"status,omitempty"`
}

// =============================================================================
// PAYMENT DETAIL TYPES
// =============================================================================

// RecordDetailRequest records one collection event.
type RecordDetailRequest struct {
	PropertyID      string  `json:"property_id"`
	Amount          float64 `json:"amount"`
	PaymentMethodID string  `json:"payment_method_id"`
	CollectedBy     string  `json:"collected_by"`
}

// PaymentDetailDTO represents one installment.
type PaymentDetailDTO struct {
	ID                string  `json:"id"`
	PropertyID        string  `json:"property_id"`
	PaymentID         string  `json:"payment_id"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	InstallmentNumber int     `json:"installment_number"`
	PaymentDate       string  `json:"payment_date"`
	CollectedBy       string  `json:"collected_by,omitempty"`
	PaymentMethodID   string  `json:"payment_method_id,omitempty"`
}

func detailDTO(d settlement.PaymentDetail) PaymentDetailDTO {
	return PaymentDetailDTO{
		ID:                string(d.ID),
		PropertyID:        string(d.PropertyID),
		PaymentID:         string(d.PaymentID),
		Amount:            d.Amount.InexactFloat64(),
		Currency:          d.Currency,
		InstallmentNumber: d.InstallmentNumber,
		PaymentDate:       d.PaymentDate.UTC().Format(time.RFC3339),
		CollectedBy:       d.CollectedBy,
		PaymentMethodID:   d.PaymentMethodID,
	}
}

// RecordDetailResponse returns the created installment, the new balance,
// and the clamp notice when the requested amount was capped.
type RecordDetailResponse struct {
	Detail         PaymentDetailDTO `json:"detail"`
	Balance        BalanceDTO       `json:"balance"`
	AmountAdjusted bool             `json:"amount_adjusted"`
	Notice         string           `json:"notice,omitempty"`
}

// LedgerRowDTO is one display row of a property's payment history,
// including synthesized discount/exemption rows.
type LedgerRowDTO struct {
	Kind              string  `json:"kind"`
	DetailID          string  `json:"detail_id,omitempty"`
	InstallmentNumber int     `json:"installment_number,omitempty"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency,omitempty"`
	Reason            string  `json:"reason,omitempty"`
	CollectedBy       string  `json:"collected_by,omitempty"`
	PaymentMethodID   string  `json:"payment_method_id,omitempty"`
	Date              string  `json:"date,omitempty"`
}

func ledgerRowDTO(r settlement.LedgerRow) LedgerRowDTO {
	return LedgerRowDTO{
		Kind:              string(r.Kind),
		DetailID:          string(r.DetailID),
		InstallmentNumber: r.InstallmentNumber,
		Amount:            r.Amount.InexactFloat64(),
		Currency:          r.Currency,
		Reason:            r.Reason,
		CollectedBy:       r.CollectedBy,
		PaymentMethodID:   r.PaymentMethodID,
		Date:              r.Date,
	}
}

// =============================================================================
// POLICY TYPES
// =============================================================================

// CommissionPolicyDTO is the singleton commission configuration.
type CommissionPolicyDTO struct {
	RatePercent float64 `json:"rate_percent"`
}

// RevenueSplitPolicyDTO is the singleton split configuration.
type RevenueSplitPolicyDTO struct {
	CompanySharePercent      float64 `json:"company_share_percent"`
	MunicipalitySharePercent float64 `json:"municipality_share_percent"`
}

// =============================================================================
// SETTLEMENT TYPES
// =============================================================================

// SettlementDTO is an end-of-day settlement.
type SettlementDTO struct {
	Date               string  `json:"date"`
	TotalCollected     float64 `json:"total_collected"`
	CommissionAmount   float64 `json:"commission_amount"`
	NetAfterCommission float64 `json:"net_after_commission"`
	CompanyShare       float64 `json:"company_share"`
	MunicipalityShare  float64 `json:"municipality_share"`
	PaymentCount       int     `json:"payment_count"`
	Currency           string  `json:"currency,omitempty"`
}

func settlementDTO(s settlement.Settlement) SettlementDTO {
	return SettlementDTO{
		Date:               s.Date.UTC().Format("2006-01-02"),
		TotalCollected:     s.TotalCollected.InexactFloat64(),
		CommissionAmount:   s.CommissionAmount.InexactFloat64(),
		NetAfterCommission: s.NetAfterCommission.InexactFloat64(),
		CompanyShare:       s.CompanyShare.InexactFloat64(),
		MunicipalityShare:  s.MunicipalityShare.InexactFloat64(),
		PaymentCount:       s.PaymentCount,
		Currency:           s.Currency,
	}
}

// ReportSplitDTO is the ad-hoc report split.
type ReportSplitDTO struct {
	From              string  `json:"from"`
	To                string  `json:"to"`
	TotalAmount       float64 `json:"total_amount"`
	TotalDiscount     float64 `json:"total_discount"`
	TotalExemptAmount float64 `json:"total_exempt_amount"`
	NetCollected      float64 `json:"net_collected"`
	CompanyShare      float64 `json:"company_share"`
	MunicipalityShare float64 `json:"municipality_share"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a loadable demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// dec converts a boundary float to a decimal exactly once.
func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
