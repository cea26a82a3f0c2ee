/*
scheduler.go - Automated daily settlement scheduler

PURPOSE:
  Periodically closes finished collection days: computes the settlement for
  any recent day that has no persisted snapshot yet and stores it, so the
  treasury dashboard reads a stable figure instead of recomputing.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Closes days strictly before today (today is still collecting)
  - Skips days that already have a persisted settlement
  - Looks back a bounded window so an offline weekend is caught up

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - LookbackDays:  How many past days to backfill (default: 7)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSettlementScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetDailySettlement endpoint (on-demand computation)
  - settlement/revenue.go: ComputeDailySettlement
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/store/sqlite"
)

// SettlementScheduler closes collection days in the background.
type SettlementScheduler struct {
	Store         *sqlite.Store
	Handler       *Handler
	CheckInterval time.Duration
	LookbackDays  int
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSettlementScheduler creates a new scheduler.
func NewSettlementScheduler(store *sqlite.Store, handler *Handler) *SettlementScheduler {
	return &SettlementScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		LookbackDays:  7,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SettlementScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler. Safe to call more than once.
func (ss *SettlementScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		ss.ticker = nil
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SettlementScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.checkAndProcess()

	for {
		select {
		case <-ss.ticker.C:
			ss.checkAndProcess()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SettlementScheduler) checkAndProcess() {
	ctx := context.Background()
	today := settlement.DayOf(time.Now())

	processedCount := 0
	skippedCount := 0

	for i := 1; i <= ss.LookbackDays; i++ {
		day := today.AddDate(0, 0, -i)

		existing, err := ss.Store.GetDailySettlement(ctx, day)
		if err != nil {
			log.Printf("[Scheduler] Error checking settlement for %s: %v", day.Format("2006-01-02"), err)
			continue
		}
		if existing != nil {
			skippedCount++
			continue
		}

		st, err := ss.Handler.computeSettlementForDay(ctx, day)
		if err != nil {
			log.Printf("[Scheduler] Error computing settlement for %s: %v", day.Format("2006-01-02"), err)
			continue
		}

		if err := ss.Store.SaveDailySettlement(ctx, st); err != nil {
			log.Printf("[Scheduler] Error saving settlement for %s: %v", day.Format("2006-01-02"), err)
			continue
		}

		log.Printf("[Scheduler] Closed %s: collected=%s, commission=%s, municipality=%s",
			day.Format("2006-01-02"), st.TotalCollected, st.CommissionAmount, st.MunicipalityShare)
		processedCount++
	}

	if processedCount > 0 {
		log.Printf("[Scheduler] Completed: %d closed, %d already closed", processedCount, skippedCount)
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SettlementScheduler) RunNow() {
	ss.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ss *SettlementScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ss.CheckInterval)
}
