/*
sqlite_test.go - Unit tests for the SQLite store

Covers the persistence concerns the domain layer relies on: decimal
round-trips through TEXT columns, optimistic locking, the append-only
installment ledger, policy upserts, and settlement snapshots.
*/
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/settlement-engine/settlement"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testProperty(id string) settlement.Property {
	return settlement.Property{
		ID:             settlement.PropertyID(id),
		OwnerID:        "owner-1",
		PropertyTypeID: "residential",
		UnitPrice:      decimal.RequireFromString("2.50"),
		AreaSize:       decimal.RequireFromString("100"),
		ExpectedAmount: decimal.RequireFromString("250"),
		PaidAmount:     decimal.RequireFromString("0"),
		Status:         settlement.StatusPending,
		Currency:       "USD",
		CreatedAt:      time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// PROPERTY TESTS
// =============================================================================

func TestStore_PropertyRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProperty(ctx, testProperty("prop-1")))

	got, err := store.GetProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Decimals survive the TEXT column exactly.
	assert.True(t, got.UnitPrice.Equal(decimal.RequireFromString("2.50")))
	assert.True(t, got.ExpectedAmount.Equal(decimal.RequireFromString("250")))
	assert.Equal(t, settlement.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version, "save assigns version 1")

	missing, err := store.GetProperty(ctx, "prop-nope")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing property is nil, not an error")
}

func TestStore_OptimisticLocking(t *testing.T) {
	// GIVEN: A stored property at version 1
	store := newTestStore(t)
	ctx := context.Background()
	p := testProperty("prop-1")
	require.NoError(t, store.SaveProperty(ctx, p))

	// WHEN: Updating with the right version
	p.PaidAmount = decimal.RequireFromString("50")
	p.Status = settlement.StatusPaidPartially
	require.NoError(t, store.UpdatePropertyBalance(ctx, p, 1))

	// THEN: Version is bumped and a stale write is rejected
	got, err := store.GetProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.PaidAmount.Equal(decimal.RequireFromString("50")))

	err = store.UpdatePropertyBalance(ctx, p, 1)
	assert.ErrorIs(t, err, settlement.ErrConcurrentUpdate)
}

func TestStore_ListProperties_Ordered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := testProperty("prop-b")
	newer := testProperty("prop-a")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	require.NoError(t, store.SaveProperty(ctx, newer))
	require.NoError(t, store.SaveProperty(ctx, older))

	props, err := store.ListProperties(ctx)
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, settlement.PropertyID("prop-b"), props[0].ID, "oldest first")
}

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestStore_PaymentRoundTripAndLookupByProperty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pay := settlement.Payment{
		ID:             "pay-prop-1",
		PropertyID:     "prop-1",
		LastAmount:     decimal.Zero,
		DiscountAmount: decimal.RequireFromString("12.34"),
		DiscountReason: "hardship",
		Currency:       "USD",
		State:          settlement.PaymentPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, store.SavePayment(ctx, pay))

	byID, err := store.GetPayment(ctx, "pay-prop-1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.True(t, byID.DiscountAmount.Equal(decimal.RequireFromString("12.34")))
	assert.Equal(t, "hardship", byID.DiscountReason)

	byProp, err := store.GetPaymentByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.NotNil(t, byProp)
	assert.Equal(t, byID.ID, byProp.ID)
}

func TestStore_UpdatePayment_StaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pay := settlement.Payment{
		ID: "pay-1", PropertyID: "prop-1",
		LastAmount: decimal.Zero, DiscountAmount: decimal.Zero,
		State: settlement.PaymentPending, Currency: "USD",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SavePayment(ctx, pay))

	pay.State = settlement.PaymentCompleted
	require.NoError(t, store.UpdatePayment(ctx, pay, 1))

	err := store.UpdatePayment(ctx, pay, 1)
	assert.ErrorIs(t, err, settlement.ErrConcurrentUpdate)
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func detail(id string, propID string, num int, amount string, date time.Time) settlement.PaymentDetail {
	return settlement.PaymentDetail{
		ID:                settlement.DetailID(id),
		PropertyID:        settlement.PropertyID(propID),
		PaymentID:         settlement.PaymentID("pay-" + propID),
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USD",
		InstallmentNumber: num,
		PaymentDate:       date,
		CreatedAt:         date,
	}
}

func TestStore_DuplicateInstallmentRejected(t *testing.T) {
	// Two writers racing past the same installment count collide on the
	// unique index, not silently.
	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendDetail(ctx, detail("det-1", "prop-1", 1, "50", day)))

	err := store.AppendDetail(ctx, detail("det-2", "prop-1", 1, "30", day))
	assert.ErrorIs(t, err, settlement.ErrDuplicateInstallment)
	assert.True(t, settlement.IsRetryable(err))
}

func TestStore_DetailsRangeQueries(t *testing.T) {
	// GIVEN: Details on March 10, 11, 12
	store := newTestStore(t)
	ctx := context.Background()

	for i, day := range []int{10, 11, 12} {
		ts := time.Date(2026, time.March, day, 14, 30, 0, 0, time.UTC)
		require.NoError(t, store.AppendDetail(ctx,
			detail(string(rune('a'+i))+"-det", "prop-1", i+1, "100", ts)))
	}

	// WHEN: Querying March 11 only
	onDay, err := store.DetailsOnDay(ctx, time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, onDay, 1)
	assert.Equal(t, 2, onDay[0].InstallmentNumber)

	// WHEN: Querying March 10 through 11
	inRange, err := store.DetailsInRange(ctx,
		time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 11, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s settlement.Store) error {
		if err := s.SaveProperty(ctx, testProperty("prop-1")); err != nil {
			return err
		}
		return settlement.ErrInvalidAmount
	})
	require.Error(t, err)

	got, err := store.GetProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Nil(t, got, "rolled-back write must not be visible")
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s settlement.Store) error {
		if err := s.SaveProperty(ctx, testProperty("prop-1")); err != nil {
			return err
		}
		return s.AppendDetail(ctx, detail("det-1", "prop-1", 1, "50", time.Now()))
	})
	require.NoError(t, err)

	got, err := store.GetProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	details, err := store.DetailsByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Len(t, details, 1)
}

// =============================================================================
// POLICY TESTS
// =============================================================================

func TestStore_PolicyDefaultsAndUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Unconfigured reads fall back to defaults.
	commission, err := store.GetCommissionPolicy(ctx)
	require.NoError(t, err)
	assert.True(t, commission.RatePercent.IsZero())

	split, err := store.GetRevenueSplitPolicy(ctx)
	require.NoError(t, err)
	assert.True(t, split.CompanySharePercent.Equal(decimal.NewFromInt(50)))

	// Writes upsert the singleton row.
	require.NoError(t, store.SaveCommissionPolicy(ctx, settlement.CommissionPolicy{
		RatePercent: decimal.RequireFromString("2.5"),
	}))
	require.NoError(t, store.SaveCommissionPolicy(ctx, settlement.CommissionPolicy{
		RatePercent: decimal.RequireFromString("3"),
	}))

	commission, err = store.GetCommissionPolicy(ctx)
	require.NoError(t, err)
	assert.True(t, commission.RatePercent.Equal(decimal.RequireFromString("3")),
		"second write wins: %s", commission.RatePercent)
}

// =============================================================================
// SETTLEMENT SNAPSHOT TESTS
// =============================================================================

func TestStore_DailySettlementUpsertAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	march10 := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	st := settlement.Settlement{
		Date:               march10,
		TotalCollected:     decimal.RequireFromString("350"),
		CommissionAmount:   decimal.RequireFromString("7"),
		NetAfterCommission: decimal.RequireFromString("343"),
		CompanyShare:       decimal.RequireFromString("137.2"),
		MunicipalityShare:  decimal.RequireFromString("205.8"),
		PaymentCount:       3,
		Currency:           "USD",
	}
	require.NoError(t, store.SaveDailySettlement(ctx, st))

	// Re-closing the same day overwrites, no duplicate row.
	st.TotalCollected = decimal.RequireFromString("400")
	require.NoError(t, store.SaveDailySettlement(ctx, st))

	got, err := store.GetDailySettlement(ctx, march10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TotalCollected.Equal(decimal.RequireFromString("400")))
	assert.True(t, got.MunicipalityShare.Equal(decimal.RequireFromString("205.8")))

	list, err := store.ListDailySettlements(ctx, march10.AddDate(0, 0, -1), march10.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := store.GetDailySettlement(ctx, march10.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Nil(t, empty)
}
