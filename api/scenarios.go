/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates properties, approves
	them, and records collections that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-register:   Properties registered, nothing collected yet
	partial-payments: Installments in flight, one overpay attempt clamped
	discounts:        Hardship discount and a full exemption
	settlement-day:   A day of collections ready for settlement

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register properties
 3. Approve them (fixes expected amounts, creates payments)
 4. Record installments through the Recorder
 5. Optionally apply discounts/exemptions

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partial-payments"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - settlement/recorder.go: Collection workflows
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-register",
		Name:        "Fresh Register",
		Description: "Approved properties with no collections yet",
	},
	{
		ID:          "partial-payments",
		Name:        "Partial Payments",
		Description: "Installments in flight, including a clamped overpay",
	},
	{
		ID:          "discounts",
		Name:        "Discounts & Exemptions",
		Description: "Hardship discount plus a fully exempted property",
	},
	{
		ID:          "settlement-day",
		Name:        "Settlement Day",
		Description: "A day of collections with commission and split configured",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario wipes the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-register":
		err = loadFreshRegisterScenario(ctx, h)
	case "partial-payments":
		err = loadPartialPaymentsScenario(ctx, h)
	case "discounts":
		err = loadDiscountsScenario(ctx, h)
	case "settlement-day":
		err = loadSettlementDayScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoProperty struct {
	id        string
	owner     string
	typeID    string
	unitPrice float64
	area      float64
}

func registerAndApprove(ctx context.Context, h *Handler, props []demoProperty) error {
	for _, dp := range props {
		prop := settlement.Property{
			ID:             settlement.PropertyID(dp.id),
			OwnerID:        dp.owner,
			PropertyTypeID: dp.typeID,
			UnitPrice:      decimal.NewFromFloat(dp.unitPrice),
			AreaSize:       decimal.NewFromFloat(dp.area),
			ExpectedAmount: decimal.Zero,
			PaidAmount:     decimal.Zero,
			Status:         settlement.StatusPending,
			Currency:       "USD",
			CreatedAt:      time.Now(),
		}
		if err := h.Store.SaveProperty(ctx, prop); err != nil {
			return fmt.Errorf("save property %s: %w", dp.id, err)
		}
		if _, err := h.Recorder.ApproveProperty(ctx, prop.ID, "USD"); err != nil {
			return fmt.Errorf("approve property %s: %w", dp.id, err)
		}
	}
	return nil
}

func record(ctx context.Context, h *Handler, propertyID string, amount float64, collector string) error {
	_, err := h.Recorder.RecordInstallment(ctx, settlement.RecordInstallmentInput{
		PropertyID:      settlement.PropertyID(propertyID),
		Amount:          decimal.NewFromFloat(amount),
		PaymentMethodID: "cash",
		CollectedBy:     collector,
	})
	if err != nil {
		return fmt.Errorf("record %v on %s: %w", amount, propertyID, err)
	}
	return nil
}

// loadFreshRegisterScenario: approved properties, empty ledgers.
func loadFreshRegisterScenario(ctx context.Context, h *Handler) error {
	return registerAndApprove(ctx, h, []demoProperty{
		{"prop-101", "owner-ada", "residential", 2.50, 120},
		{"prop-102", "owner-babbage", "residential", 2.50, 85},
		{"prop-103", "owner-curie", "commercial", 6.00, 240},
	})
}

// loadPartialPaymentsScenario: installments in flight; the last recording on
// prop-202 asks for more than remains and gets clamped.
func loadPartialPaymentsScenario(ctx context.Context, h *Handler) error {
	err := registerAndApprove(ctx, h, []demoProperty{
		{"prop-201", "owner-darwin", "residential", 3.00, 100}, // expected 300
		{"prop-202", "owner-euler", "residential", 2.00, 50},   // expected 100
	})
	if err != nil {
		return err
	}

	if err := record(ctx, h, "prop-201", 120, "collector-1"); err != nil {
		return err
	}
	if err := record(ctx, h, "prop-201", 80, "collector-1"); err != nil {
		return err
	}
	if err := record(ctx, h, "prop-202", 60, "collector-2"); err != nil {
		return err
	}
	// Requests 70 with only 40 left; the recorder caps it.
	return record(ctx, h, "prop-202", 70, "collector-2")
}

// loadDiscountsScenario: one hardship discount, one full exemption.
func loadDiscountsScenario(ctx context.Context, h *Handler) error {
	err := registerAndApprove(ctx, h, []demoProperty{
		{"prop-301", "owner-fermi", "residential", 4.00, 100}, // expected 400
		{"prop-302", "owner-gauss", "residential", 3.00, 60},  // expected 180
	})
	if err != nil {
		return err
	}

	if err := record(ctx, h, "prop-301", 150, "collector-1"); err != nil {
		return err
	}
	if _, err := h.Recorder.ApplyDiscount(ctx, "pay-prop-301", decimal.NewFromInt(100), "hardship relief"); err != nil {
		return fmt.Errorf("discount on prop-301: %w", err)
	}

	if _, err := h.Recorder.ApplyExemption(ctx, "pay-prop-302", "public benefit institution"); err != nil {
		return fmt.Errorf("exemption on prop-302: %w", err)
	}
	return nil
}

// loadSettlementDayScenario: a busy collection day plus non-default policies,
// so the settlement endpoints have something to show.
func loadSettlementDayScenario(ctx context.Context, h *Handler) error {
	err := registerAndApprove(ctx, h, []demoProperty{
		{"prop-401", "owner-hopper", "residential", 5.00, 100}, // expected 500
		{"prop-402", "owner-iverson", "residential", 5.00, 80}, // expected 400
		{"prop-403", "owner-jacobi", "commercial", 8.00, 150},  // expected 1200
	})
	if err != nil {
		return err
	}

	if err := h.Store.SaveCommissionPolicy(ctx, settlement.CommissionPolicy{
		RatePercent: decimal.NewFromInt(2),
	}); err != nil {
		return err
	}
	if err := h.Store.SaveRevenueSplitPolicy(ctx, settlement.RevenueSplitPolicy{
		CompanySharePercent:      decimal.NewFromInt(40),
		MunicipalitySharePercent: decimal.NewFromInt(60),
	}); err != nil {
		return err
	}

	for _, c := range []struct {
		prop      string
		amount    float64
		collector string
	}{
		{"prop-401", 200, "collector-1"},
		{"prop-401", 100, "collector-2"},
		{"prop-402", 400, "collector-1"}, // pays off in one go
		{"prop-403", 350, "collector-3"},
	} {
		if err := record(ctx, h, c.prop, c.amount, c.collector); err != nil {
			return err
		}
	}
	return nil
}
