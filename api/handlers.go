/*
handlers.go - HTTP API handlers for the tax settlement system

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Properties:
    GET    /api/properties                    List all properties
    POST   /api/properties                    Register property
    GET    /api/properties/{id}               Property details
    POST   /api/properties/{id}/approve      Approve + create payment
    GET    /api/properties/{id}/balance      Balance snapshot

  Collections:
    POST   /api/paymentdetails               Record installment
    GET    /api/paymentdetails/property/{id} Ledger for display

  Payments:
    GET    /api/payments/{id}                Payment record
    PUT    /api/payments/{id}                Discount / exemption / status

  Policies:
    GET/PUT /api/policies/commission
    GET/PUT /api/policies/revenue-split

  Settlement:
    GET    /api/revenuesplit/daily-settlement?date=YYYY-MM-DD
    GET    /api/revenuesplit/settlements?from=&to=
    GET    /api/revenuesplit/report?from=&to=

  Scenarios:
    GET    /api/scenarios                    List demo scenarios
    POST   /api/scenarios/load               Load a demo scenario
    POST   /api/scenarios/reset              Wipe database

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Concurrent update conflict (client retries the operation)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public;
  the dashboard runs behind the municipality's network boundary.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Recorder *settlement.Recorder

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:    store,
		Recorder: settlement.NewRecorder(store),
	}
}

// =============================================================================
// PROPERTY HANDLERS
// =============================================================================

// ListProperties returns all registered properties.
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.Store.ListProperties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list properties", err)
		return
	}

	dtos := make([]PropertyDTO, len(props))
	for i, p := range props {
		dtos[i] = propertyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProperty registers a new property pending approval.
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req CreatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Property id is required", nil)
		return
	}
	if req.UnitPrice < 0 || req.AreaSize < 0 {
		writeError(w, http.StatusBadRequest, "Unit price and area size must be non-negative", settlement.ErrInvalidAmount)
		return
	}

	prop := settlement.Property{
		ID:             settlement.PropertyID(req.ID),
		OwnerID:        req.OwnerID,
		PropertyTypeID: req.PropertyTypeID,
		UnitPrice:      dec(req.UnitPrice),
		AreaSize:       dec(req.AreaSize),
		ExpectedAmount: decimal.Zero,
		PaidAmount:     decimal.Zero,
		Status:         settlement.StatusPending,
		Currency:       req.Currency,
		CreatedAt:      time.Now(),
	}
	if err := h.Store.SaveProperty(r.Context(), prop); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create property", err)
		return
	}

	writeJSON(w, http.StatusCreated, propertyDTO(prop))
}

// GetProperty returns a single property.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	id := settlement.PropertyID(chi.URLParam(r, "id"))

	prop, err := h.Store.GetProperty(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get property", err)
		return
	}
	if prop == nil {
		writeError(w, http.StatusNotFound, "Property not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, propertyDTO(*prop))
}

// ApproveProperty fixes the expected amount and creates the payment record.
func (h *Handler) ApproveProperty(w http.ResponseWriter, r *http.Request) {
	id := settlement.PropertyID(chi.URLParam(r, "id"))

	var req ApprovePropertyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	pay, err := h.Recorder.ApproveProperty(r.Context(), id, req.Currency)
	if err != nil {
		writeDomainError(w, "Failed to approve property", err)
		return
	}
	writeJSON(w, http.StatusOK, paymentDTO(*pay))
}

// GetBalance returns the computed balance snapshot for a property.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := settlement.PropertyID(chi.URLParam(r, "id"))
	ctx := r.Context()

	prop, err := h.Store.GetProperty(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get property", err)
		return
	}
	if prop == nil {
		writeError(w, http.StatusNotFound, "Property not found", nil)
		return
	}

	pay, err := h.Store.GetPaymentByProperty(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, balanceDTO(id, settlement.BalanceFor(prop, pay)))
}

// =============================================================================
// COLLECTION HANDLERS
// =============================================================================

// RecordPaymentDetail records an installment against a property.
func (h *Handler) RecordPaymentDetail(w http.ResponseWriter, r *http.Request) {
	var req RecordDetailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Recorder.RecordInstallment(r.Context(), settlement.RecordInstallmentInput{
		PropertyID:      settlement.PropertyID(req.PropertyID),
		Amount:          dec(req.Amount),
		PaymentMethodID: req.PaymentMethodID,
		CollectedBy:     req.CollectedBy,
	})
	if err != nil {
		writeDomainError(w, "Failed to record installment", err)
		return
	}

	resp := RecordDetailResponse{
		Detail:         detailDTO(result.Detail),
		Balance:        balanceDTO(result.Detail.PropertyID, result.Balance),
		AmountAdjusted: result.AmountAdjusted,
	}
	if result.AmountAdjusted {
		resp.Notice = fmt.Sprintf("Amount adjusted to the remaining balance of %s",
			result.Detail.Amount.String())
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetPropertyLedger returns the display ledger for a property, including
// synthesized discount/exemption rows.
func (h *Handler) GetPropertyLedger(w http.ResponseWriter, r *http.Request) {
	id := settlement.PropertyID(chi.URLParam(r, "id"))
	ctx := r.Context()

	prop, err := h.Store.GetProperty(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get property", err)
		return
	}
	if prop == nil {
		writeError(w, http.StatusNotFound, "Property not found", nil)
		return
	}

	details, err := h.Store.DetailsByProperty(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	pay, err := h.Store.GetPaymentByProperty(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}

	rows := settlement.BuildLedger(details, pay)
	dtos := make([]LedgerRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = ledgerRowDTO(row)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"property_id": string(id),
		"entries":     dtos,
		"balance":     balanceDTO(id, settlement.BalanceFor(prop, pay)),
	})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// GetPayment returns a payment record.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := settlement.PaymentID(chi.URLParam(r, "id"))

	pay, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if pay == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, paymentDTO(*pay))
}

// UpdatePayment applies a discount, an exemption, or a display-state change
// to a payment. Exemption wins when both are present in one body.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id := settlement.PaymentID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	switch {
	case req.IsExempt != nil && *req.IsExempt:
		pay, err := h.Recorder.ApplyExemption(ctx, id, req.ExemptionReason)
		if err != nil {
			writeDomainError(w, "Failed to apply exemption", err)
			return
		}
		writeJSON(w, http.StatusOK, paymentDTO(*pay))

	case req.DiscountAmount != nil:
		pay, err := h.Recorder.ApplyDiscount(ctx, id, dec(*req.DiscountAmount), req.DiscountReason)
		if err != nil {
			writeDomainError(w, "Failed to apply discount", err)
			return
		}
		writeJSON(w, http.StatusOK, paymentDTO(*pay))

	case req.Status != "":
		pay, err := h.Store.GetPayment(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
			return
		}
		if pay == nil {
			writeError(w, http.StatusNotFound, "Payment not found", nil)
			return
		}
		pay.State = settlement.PaymentState(req.Status)
		pay.UpdatedAt = time.Now()
		if err := h.Store.UpdatePayment(ctx, *pay, pay.Version); err != nil {
			writeDomainError(w, "Failed to update payment status", err)
			return
		}
		pay.Version++
		writeJSON(w, http.StatusOK, paymentDTO(*pay))

	default:
		writeError(w, http.StatusBadRequest, "Nothing to update", nil)
	}
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// GetCommissionPolicy returns the current commission policy.
func (h *Handler) GetCommissionPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetCommissionPolicy(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get commission policy", err)
		return
	}
	writeJSON(w, http.StatusOK, CommissionPolicyDTO{RatePercent: p.RatePercent.InexactFloat64()})
}

// PutCommissionPolicy validates and stores the commission policy.
func (h *Handler) PutCommissionPolicy(w http.ResponseWriter, r *http.Request) {
	var req CommissionPolicyDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policy := settlement.CommissionPolicy{RatePercent: dec(req.RatePercent)}
	if err := policy.Validate(); err != nil {
		writeDomainError(w, "Invalid commission policy", err)
		return
	}
	if err := h.Store.SaveCommissionPolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save commission policy", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetRevenueSplitPolicy returns the current revenue-split policy.
func (h *Handler) GetRevenueSplitPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetRevenueSplitPolicy(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get revenue split policy", err)
		return
	}
	writeJSON(w, http.StatusOK, RevenueSplitPolicyDTO{
		CompanySharePercent:      p.CompanySharePercent.InexactFloat64(),
		MunicipalitySharePercent: p.MunicipalitySharePercent.InexactFloat64(),
	})
}

// PutRevenueSplitPolicy validates and stores the revenue-split policy.
func (h *Handler) PutRevenueSplitPolicy(w http.ResponseWriter, r *http.Request) {
	var req RevenueSplitPolicyDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policy := settlement.RevenueSplitPolicy{
		CompanySharePercent:      dec(req.CompanySharePercent),
		MunicipalitySharePercent: dec(req.MunicipalitySharePercent),
	}
	if err := policy.Validate(); err != nil {
		writeDomainError(w, "Invalid revenue split policy", err)
		return
	}
	if err := h.Store.SaveRevenueSplitPolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save revenue split policy", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// GetDailySettlement returns the settlement for one calendar day. Serves the
// persisted snapshot when the scheduler already wrote one; computes on
// demand otherwise.
func (h *Handler) GetDailySettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		day = parsed
	}

	snap, err := h.Store.GetDailySettlement(ctx, day)
	if err != nil {
		// Recomputing still answers the request, but a failing snapshot read
		// must not stay invisible.
		log.Printf("[API] Failed to read settlement snapshot for %s, recomputing: %v",
			day.Format("2006-01-02"), err)
	}
	if snap != nil {
		writeJSON(w, http.StatusOK, settlementDTO(*snap))
		return
	}

	st, err := h.computeSettlementForDay(ctx, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, settlementDTO(st))
}

func (h *Handler) computeSettlementForDay(ctx context.Context, day time.Time) (settlement.Settlement, error) {
	details, err := h.Store.DetailsOnDay(ctx, day)
	if err != nil {
		return settlement.Settlement{}, err
	}
	commission, err := h.Store.GetCommissionPolicy(ctx)
	if err != nil {
		return settlement.Settlement{}, err
	}
	split, err := h.Store.GetRevenueSplitPolicy(ctx)
	if err != nil {
		return settlement.Settlement{}, err
	}

	collected := make([]settlement.CollectedPayment, len(details))
	for i, d := range details {
		collected[i] = settlement.CollectedPayment{Amount: d.Amount, Currency: d.Currency}
	}
	return settlement.ComputeDailySettlement(settlement.DayOf(day), collected, commission, split), nil
}

// ListSettlements returns persisted daily settlements in a date range.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use from=YYYY-MM-DD&to=YYYY-MM-DD)", err)
		return
	}

	settlements, err := h.Store.ListDailySettlements(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settlements", err)
		return
	}

	dtos := make([]SettlementDTO, len(settlements))
	for i, s := range settlements {
		dtos[i] = settlementDTO(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": dtos})
}

// GetReportSplit computes the ad-hoc stakeholder split over a date range.
// The company share is taken on the gross collected amount; discounts and
// exemptions reduce only the municipality side.
func (h *Handler) GetReportSplit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use from=YYYY-MM-DD&to=YYYY-MM-DD)", err)
		return
	}

	details, err := h.Store.DetailsInRange(ctx, from, to.Add(24*time.Hour-time.Second))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load collections", err)
		return
	}
	totalAmount := decimal.Zero
	for _, d := range details {
		totalAmount = totalAmount.Add(d.Amount)
	}

	// Discounts and exemption write-offs are payment-level annotations, so
	// they aggregate over the whole register rather than the date range.
	props, err := h.Store.ListProperties(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list properties", err)
		return
	}

	totalDiscount := decimal.Zero
	totalExempt := decimal.Zero
	for _, prop := range props {
		pay, err := h.Store.GetPaymentByProperty(ctx, prop.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
			return
		}
		if pay == nil {
			continue
		}
		totalDiscount = totalDiscount.Add(pay.DiscountAmount)
		if pay.Exempt {
			snap := settlement.BalanceFor(&prop, pay)
			totalExempt = totalExempt.Add(snap.RemainingAmount)
		}
	}

	split, err := h.Store.GetRevenueSplitPolicy(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get revenue split policy", err)
		return
	}

	report := settlement.ComputeReportSplit(totalAmount, totalDiscount, totalExempt, split.CompanySharePercent)
	writeJSON(w, http.StatusOK, ReportSplitDTO{
		From:              from.Format("2006-01-02"),
		To:                to.Format("2006-01-02"),
		TotalAmount:       report.TotalAmount.InexactFloat64(),
		TotalDiscount:     report.TotalDiscount.InexactFloat64(),
		TotalExemptAmount: report.TotalExemptAmount.InexactFloat64(),
		NetCollected:      report.NetCollected.InexactFloat64(),
		CompanyShare:      report.CompanyShare.InexactFloat64(),
		MunicipalityShare: report.MunicipalityShare.InexactFloat64(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to before from")
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

// writeDomainError maps settlement errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case settlement.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case settlement.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case settlement.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
