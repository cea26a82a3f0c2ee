/*
store.go - Persistence interfaces for the settlement engine

PURPOSE:
  Defines the interface between the domain logic and the database. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:           Property/payment/detail persistence
  TxStore:         Transactional operations (atomic multi-table writes)
  PolicyStore:     Singleton commission and revenue-split policies
  SettlementStore: Persisted end-of-day settlement snapshots

APPEND-ONLY LEDGER:
  PaymentDetail rows are append-only: AppendDetail is the only write and no
  Update or Delete methods exist for details. The paid aggregate on the
  property is the only mutable balance field, and it moves exclusively
  through UpdatePropertyBalance under a version check.

OPTIMISTIC LOCKING:
  UpdatePropertyBalance and UpdatePayment take the version the caller read.
  If the row has moved on, the write fails with ErrConcurrentUpdate and the
  caller retries the whole operation. Combined with WithTx this serializes
  installment recording per property.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - settlement/store/memory.go: In-memory for testing
*/
package settlement

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Property, payment and ledger persistence
// =============================================================================

type Store interface {
	// GetProperty returns the property or nil when absent.
	GetProperty(ctx context.Context, id PropertyID) (*Property, error)

	// SaveProperty inserts a new property record.
	SaveProperty(ctx context.Context, p Property) error

	// UpdatePropertyBalance writes the paid aggregate, status, expected
	// amount and approval flag under an optimistic version check.
	// Fails with ErrConcurrentUpdate if expectedVersion is stale.
	UpdatePropertyBalance(ctx context.Context, p Property, expectedVersion int64) error

	// ListProperties returns all properties ordered by creation time.
	ListProperties(ctx context.Context) ([]Property, error)

	// GetPayment returns the payment or nil when absent.
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)

	// GetPaymentByProperty returns the property's payment or nil when the
	// property was never approved.
	GetPaymentByProperty(ctx context.Context, propertyID PropertyID) (*Payment, error)

	// SavePayment inserts a new payment record.
	SavePayment(ctx context.Context, p Payment) error

	// UpdatePayment writes payment annotations under an optimistic version
	// check. Fails with ErrConcurrentUpdate if expectedVersion is stale.
	UpdatePayment(ctx context.Context, p Payment, expectedVersion int64) error

	// AppendDetail appends an installment ledger entry. Fails with
	// ErrDuplicateInstallment when the installment number collides.
	// This is the ONLY write operation on details.
	AppendDetail(ctx context.Context, d PaymentDetail) error

	// DetailsByProperty returns the property's installments ordered by
	// payment date ascending.
	DetailsByProperty(ctx context.Context, propertyID PropertyID) ([]PaymentDetail, error)

	// DetailsOnDay returns all installments whose payment date falls on the
	// given UTC calendar day.
	DetailsOnDay(ctx context.Context, day time.Time) ([]PaymentDetail, error)

	// DetailsInRange returns all installments with payment date in
	// [from, to], across properties. Used by the ad-hoc report.
	DetailsInRange(ctx context.Context, from, to time.Time) ([]PaymentDetail, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. Use for operations that
// must be atomic as a unit (recording an installment writes the detail,
// the property aggregate, and the payment record together).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// POLICY STORE - Singleton admin configuration
// =============================================================================

type PolicyStore interface {
	// GetCommissionPolicy returns the configured policy, or the default
	// when none has been written yet.
	GetCommissionPolicy(ctx context.Context) (CommissionPolicy, error)

	// SaveCommissionPolicy overwrites the singleton policy. Callers
	// validate first.
	SaveCommissionPolicy(ctx context.Context, p CommissionPolicy) error

	GetRevenueSplitPolicy(ctx context.Context) (RevenueSplitPolicy, error)
	SaveRevenueSplitPolicy(ctx context.Context, p RevenueSplitPolicy) error
}

// =============================================================================
// SETTLEMENT STORE - Persisted daily snapshots
// =============================================================================

type SettlementStore interface {
	// SaveDailySettlement upserts the snapshot for its day (one row per
	// calendar day).
	SaveDailySettlement(ctx context.Context, s Settlement) error

	// GetDailySettlement returns the persisted snapshot for the day, or
	// nil when none was recorded.
	GetDailySettlement(ctx context.Context, day time.Time) (*Settlement, error)

	// ListDailySettlements returns persisted snapshots in [from, to]
	// ordered by day ascending.
	ListDailySettlements(ctx context.Context, from, to time.Time) ([]Settlement, error)
}
