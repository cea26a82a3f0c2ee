/*
handlers_test.go - End-to-end tests for the HTTP API

Drives the full stack (router -> handlers -> recorder -> sqlite) against an
in-memory database: the register/approve/collect flow, clamping notices,
discount validation, and the settlement endpoints.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/warp/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *chiTestServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewHandler(store)
	return &chiTestServer{t: t, router: NewRouter(handler)}
}

type chiTestServer struct {
	t      *testing.T
	router http.Handler
}

// do runs one request and decodes the JSON response into out (when non-nil).
func (s *chiTestServer) do(method, path string, body any, wantStatus int, out any) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		s.t.Fatalf("%s %s: expected status %d, got %d (body: %s)",
			method, path, wantStatus, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			s.t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
}

func (s *chiTestServer) registerAndApprove(id string, unitPrice, area float64) {
	s.t.Helper()
	s.do("POST", "/api/properties", CreatePropertyRequest{
		ID:             id,
		OwnerID:        "owner-" + id,
		PropertyTypeID: "residential",
		UnitPrice:      unitPrice,
		AreaSize:       area,
		Currency:       "USD",
	}, http.StatusCreated, nil)
	s.do("POST", fmt.Sprintf("/api/properties/%s/approve", id), nil, http.StatusOK, nil)
}

// =============================================================================
// PROPERTY FLOW TESTS
// =============================================================================

func TestAPI_RegisterApproveCollect(t *testing.T) {
	// GIVEN: A registered and approved property (2.50 x 100 = 250 expected)
	s := newTestServer(t)
	s.registerAndApprove("prop-1", 2.50, 100)

	// WHEN: Fetching the balance
	var balance BalanceDTO
	s.do("GET", "/api/properties/prop-1/balance", nil, http.StatusOK, &balance)

	// THEN: Expected amount is fixed and fully collectible
	if balance.ExpectedAmount != 250 {
		t.Errorf("Expected amount 250, got %v", balance.ExpectedAmount)
	}
	if !balance.CanCollect {
		t.Error("Approved unpaid property should be collectible")
	}

	// WHEN: Recording an installment
	var res RecordDetailResponse
	s.do("POST", "/api/paymentdetails", RecordDetailRequest{
		PropertyID:      "prop-1",
		Amount:          100,
		PaymentMethodID: "cash",
		CollectedBy:     "collector-1",
	}, http.StatusCreated, &res)

	// THEN: Installment #1 lands and the balance drops
	if res.Detail.InstallmentNumber != 1 {
		t.Errorf("Expected installment 1, got %d", res.Detail.InstallmentNumber)
	}
	if res.AmountAdjusted {
		t.Error("100 of 250 should not be adjusted")
	}
	if res.Balance.RemainingAmount != 150 {
		t.Errorf("Expected remaining 150, got %v", res.Balance.RemainingAmount)
	}
	if res.Balance.Status != "paid_partially" {
		t.Errorf("Expected paid_partially, got %s", res.Balance.Status)
	}
}

func TestAPI_OverpayClampedWithNotice(t *testing.T) {
	// GIVEN: Expected 100, already paid 60
	s := newTestServer(t)
	s.registerAndApprove("prop-1", 1, 100)
	s.do("POST", "/api/paymentdetails", RecordDetailRequest{
		PropertyID: "prop-1", Amount: 60,
	}, http.StatusCreated, nil)

	// WHEN: Requesting 70
	var res RecordDetailResponse
	s.do("POST", "/api/paymentdetails", RecordDetailRequest{
		PropertyID: "prop-1", Amount: 70,
	}, http.StatusCreated, &res)

	// THEN: Only 40 is recorded and the notice is attached
	if !res.AmountAdjusted {
		t.Error("Expected the amount to be adjusted")
	}
	if res.Detail.Amount != 40 {
		t.Errorf("Expected recorded amount 40, got %v", res.Detail.Amount)
	}
	if res.Notice == "" {
		t.Error("Expected an adjustment notice")
	}
	if !res.Balance.FullyPaid {
		t.Error("Property should now be fully paid")
	}

	// Further collection is refused outright.
	s.do("POST", "/api/paymentdetails", RecordDetailRequest{
		PropertyID: "prop-1", Amount: 10,
	}, http.StatusBadRequest, nil)
}

func TestAPI_UnknownProperty404(t *testing.T) {
	s := newTestServer(t)
	s.do("GET", "/api/properties/prop-missing", nil, http.StatusNotFound, nil)
	s.do("GET", "/api/properties/prop-missing/balance", nil, http.StatusNotFound, nil)
	s.do("POST", "/api/properties/prop-missing/approve", nil, http.StatusNotFound, nil)
}

// =============================================================================
// DISCOUNT / EXEMPTION TESTS
// =============================================================================

func TestAPI_DiscountValidation(t *testing.T) {
	// GIVEN: Expected 100, paid 20 (remaining 80)
	s := newTestServer(t)
	s.registerAndApprove("prop-1", 1, 100)
	s.do("POST", "/api/paymentdetails", RecordDetailRequest{
		PropertyID: "prop-1", Amount: 20,
	}, http.StatusCreated, nil)

	ninety := 90.0
	eighty := 80.0

	// WHEN/THEN: 90 exceeds the remaining and is a 400, not a clamp
	s.do("PUT", "/api/payments/pay-prop-1", UpdatePaymentRequest{
		DiscountAmount: &ninety, DiscountReason: "hardship",
	}, http.StatusBadRequest, nil)

	// WHEN/THEN: 80 is accepted
	var pay PaymentDTO
	s.do("PUT", "/api/payments/pay-prop-1", UpdatePaymentRequest{
		DiscountAmount: &eighty, DiscountReason: "hardship",
	}, http.StatusOK, &pay)
	if pay.DiscountAmount != 80 {
		t.Errorf("Expected discount 80, got %v", pay.DiscountAmount)
	}

	// The discount clears the balance: cleared-by-discount, not fully paid.
	var balance BalanceDTO
	s.do("GET", "/api/properties/prop-1/balance", nil, http.StatusOK, &balance)
	if balance.FullyPaid {
		t.Error("Discount-cleared property must not read fully paid")
	}
	if !balance.ClearedByDiscount {
		t.Error("Expected cleared_by_discount")
	}
}

func TestAPI_ExemptionFlowAndLedgerRows(t *testing.T) {
	// GIVEN: A partially paid property
	s := newTestServer(t)
	s.registerAndApprove("prop-1", 1, 100)
	s.do("POST", "/api/paymentdetails", RecordDetailRequest{
		PropertyID: "prop-1", Amount: 30,
	}, http.StatusCreated, nil)

	// WHEN: Exempting without a reason
	// THEN: Rejected
	yes := true
	s.do("PUT", "/api/payments/pay-prop-1", UpdatePaymentRequest{
		IsExempt: &yes,
	}, http.StatusBadRequest, nil)

	// WHEN: Exempting with a reason
	var pay PaymentDTO
	s.do("PUT", "/api/payments/pay-prop-1", UpdatePaymentRequest{
		IsExempt: &yes, ExemptionReason: "public benefit",
	}, http.StatusOK, &pay)
	if !pay.Exempt {
		t.Error("Expected payment marked exempt")
	}

	// THEN: The ledger shows the installment plus a synthesized exemption row
	var ledger struct {
		Entries []LedgerRowDTO `json:"entries"`
		Balance BalanceDTO     `json:"balance"`
	}
	s.do("GET", "/api/paymentdetails/property/prop-1", nil, http.StatusOK, &ledger)
	if len(ledger.Entries) != 2 {
		t.Fatalf("Expected 2 ledger rows, got %d", len(ledger.Entries))
	}
	if ledger.Entries[0].Kind != "installment" || ledger.Entries[1].Kind != "exemption" {
		t.Errorf("Unexpected row kinds: %s, %s", ledger.Entries[0].Kind, ledger.Entries[1].Kind)
	}
	if ledger.Balance.CanCollect {
		t.Error("Exempt property must not be collectible")
	}
	if ledger.Balance.Status != "exemption" {
		t.Errorf("Expected status exemption, got %s", ledger.Balance.Status)
	}
}

// =============================================================================
// POLICY TESTS
// =============================================================================

func TestAPI_PolicyDefaultsAndValidation(t *testing.T) {
	s := newTestServer(t)

	// Defaults before any configuration.
	var commission CommissionPolicyDTO
	s.do("GET", "/api/policies/commission", nil, http.StatusOK, &commission)
	if commission.RatePercent != 0 {
		t.Errorf("Expected default commission 0, got %v", commission.RatePercent)
	}

	var split RevenueSplitPolicyDTO
	s.do("GET", "/api/policies/revenue-split", nil, http.StatusOK, &split)
	if split.CompanySharePercent != 50 || split.MunicipalitySharePercent != 50 {
		t.Errorf("Expected default 50/50 split, got %v/%v",
			split.CompanySharePercent, split.MunicipalitySharePercent)
	}

	// Writes are validated.
	s.do("PUT", "/api/policies/commission", CommissionPolicyDTO{RatePercent: 101}, http.StatusBadRequest, nil)
	s.do("PUT", "/api/policies/revenue-split", RevenueSplitPolicyDTO{
		CompanySharePercent: 40, MunicipalitySharePercent: 50,
	}, http.StatusBadRequest, nil)

	// A valid write persists.
	s.do("PUT", "/api/policies/commission", CommissionPolicyDTO{RatePercent: 2}, http.StatusOK, nil)
	s.do("GET", "/api/policies/commission", nil, http.StatusOK, &commission)
	if commission.RatePercent != 2 {
		t.Errorf("Expected commission 2 after write, got %v", commission.RatePercent)
	}
}

// =============================================================================
// SETTLEMENT TESTS
// =============================================================================

func TestAPI_DailySettlement(t *testing.T) {
	// GIVEN: Collections of 100, 200, 50 today; commission 2%; split 40/60
	s := newTestServer(t)
	s.do("PUT", "/api/policies/commission", CommissionPolicyDTO{RatePercent: 2}, http.StatusOK, nil)
	s.do("PUT", "/api/policies/revenue-split", RevenueSplitPolicyDTO{
		CompanySharePercent: 40, MunicipalitySharePercent: 60,
	}, http.StatusOK, nil)

	s.registerAndApprove("prop-1", 10, 100)
	for _, amount := range []float64{100, 200, 50} {
		s.do("POST", "/api/paymentdetails", RecordDetailRequest{
			PropertyID: "prop-1", Amount: amount,
		}, http.StatusCreated, nil)
	}

	// WHEN: Settling today
	var st SettlementDTO
	today := time.Now().UTC().Format("2006-01-02")
	s.do("GET", "/api/revenuesplit/daily-settlement?date="+today, nil, http.StatusOK, &st)

	// THEN: total=350, commission=7, net=343, company=137.2, municipality=205.8
	if st.TotalCollected != 350 {
		t.Errorf("Expected total 350, got %v", st.TotalCollected)
	}
	if st.CommissionAmount != 7 {
		t.Errorf("Expected commission 7, got %v", st.CommissionAmount)
	}
	if st.CompanyShare != 137.2 {
		t.Errorf("Expected company share 137.2, got %v", st.CompanyShare)
	}
	if st.MunicipalityShare != 205.8 {
		t.Errorf("Expected municipality share 205.8, got %v", st.MunicipalityShare)
	}
	if st.PaymentCount != 3 {
		t.Errorf("Expected 3 payments, got %d", st.PaymentCount)
	}
}

func TestAPI_ReportSplit(t *testing.T) {
	// GIVEN: 150 collected, an 80 discount on one property, split 40/60
	s := newTestServer(t)
	s.do("PUT", "/api/policies/revenue-split", RevenueSplitPolicyDTO{
		CompanySharePercent: 40, MunicipalitySharePercent: 60,
	}, http.StatusOK, nil)

	s.registerAndApprove("prop-1", 1, 200)
	s.do("POST", "/api/paymentdetails", RecordDetailRequest{
		PropertyID: "prop-1", Amount: 150,
	}, http.StatusCreated, nil)
	fifty := 50.0
	s.do("PUT", "/api/payments/pay-prop-1", UpdatePaymentRequest{
		DiscountAmount: &fifty, DiscountReason: "hardship",
	}, http.StatusOK, nil)

	// WHEN: Running the report over a range containing today
	today := time.Now().UTC().Format("2006-01-02")
	var report ReportSplitDTO
	s.do("GET", fmt.Sprintf("/api/revenuesplit/report?from=%s&to=%s", today, today),
		nil, http.StatusOK, &report)

	// THEN: company share on gross (60), municipality absorbs the discount
	if report.TotalAmount != 150 {
		t.Errorf("Expected total 150, got %v", report.TotalAmount)
	}
	if report.TotalDiscount != 50 {
		t.Errorf("Expected discount 50, got %v", report.TotalDiscount)
	}
	if report.CompanyShare != 60 {
		t.Errorf("Expected company share 60 (40%% of gross), got %v", report.CompanyShare)
	}
	if report.MunicipalityShare != 40 {
		t.Errorf("Expected municipality share 40, got %v", report.MunicipalityShare)
	}
}

func TestAPI_DailySettlement_StoreFailureIs500(t *testing.T) {
	// A broken store must surface as a 500, not a silent empty settlement.
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	router := NewRouter(NewHandler(store))
	store.Close()

	req := httptest.NewRequest("GET", "/api/revenuesplit/daily-settlement", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 from a closed store, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAPI_ReportSplit_BadRange(t *testing.T) {
	s := newTestServer(t)
	s.do("GET", "/api/revenuesplit/report?from=2026-03-10&to=2026-03-01",
		nil, http.StatusBadRequest, nil)
	s.do("GET", "/api/revenuesplit/report?from=bogus&to=2026-03-01",
		nil, http.StatusBadRequest, nil)
}

// =============================================================================
// SCENARIO TESTS
// =============================================================================

func TestAPI_LoadScenario(t *testing.T) {
	s := newTestServer(t)

	s.do("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "partial-payments"},
		http.StatusOK, nil)

	var props []PropertyDTO
	s.do("GET", "/api/properties", nil, http.StatusOK, &props)
	if len(props) != 2 {
		t.Fatalf("Expected 2 properties, got %d", len(props))
	}

	// prop-202's clamped overpay leaves it fully paid.
	var balance BalanceDTO
	s.do("GET", "/api/properties/prop-202/balance", nil, http.StatusOK, &balance)
	if !balance.FullyPaid {
		t.Errorf("Expected prop-202 fully paid, remaining %v", balance.RemainingAmount)
	}

	// Unknown scenarios are rejected.
	s.do("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "bogus"},
		http.StatusBadRequest, nil)

	// Reset wipes everything.
	s.do("POST", "/api/scenarios/reset", nil, http.StatusOK, nil)
	s.do("GET", "/api/properties", nil, http.StatusOK, &props)
	if len(props) != 0 {
		t.Errorf("Expected empty register after reset, got %d", len(props))
	}
}
