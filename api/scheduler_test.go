/*
scheduler_test.go - Tests for the daily settlement scheduler
*/
package api

import (
	"context"
	"testing"
	"time"

	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/store/sqlite"
)

func TestScheduler_ClosesPastDaysOnce(t *testing.T) {
	// GIVEN: A store with no persisted settlements
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	handler := NewHandler(store)
	scheduler := NewSettlementScheduler(store, handler)
	scheduler.LookbackDays = 2

	// WHEN: Running the check twice
	scheduler.RunNow()
	scheduler.RunNow()

	// THEN: Each past day in the window has exactly one snapshot
	ctx := context.Background()
	today := settlement.DayOf(time.Now())
	list, err := store.ListDailySettlements(ctx, today.AddDate(0, 0, -2), today.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("Failed to list settlements: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 closed days, got %d", len(list))
	}
	for _, st := range list {
		if !st.TotalCollected.IsZero() {
			t.Errorf("Day %s: expected zero settlement on an empty register, got %s",
				st.Date.Format("2006-01-02"), st.TotalCollected)
		}
	}

	// Today stays open.
	open, err := store.GetDailySettlement(ctx, today)
	if err != nil {
		t.Fatalf("Failed to get settlement: %v", err)
	}
	if open != nil {
		t.Error("Today must not be closed while collections are still running")
	}
}

func TestScheduler_StopTwiceIsSafe(t *testing.T) {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	scheduler := NewSettlementScheduler(store, NewHandler(store))
	scheduler.CheckInterval = time.Hour
	scheduler.Start()

	// Shutdown paths can overlap; a second Stop must be a no-op, not a
	// close of a closed channel.
	scheduler.Stop()
	scheduler.Stop()
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	scheduler := NewSettlementScheduler(store, NewHandler(store))
	scheduler.Enabled = false
	scheduler.Start()
	// Stop on a never-started scheduler must not panic or block.
	scheduler.Stop()
}
