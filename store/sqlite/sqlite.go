/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence interfaces (Store, TxStore, PolicyStore,
  SettlementStore) using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  properties:         Registered properties with the paid aggregate and a
                      version column for optimistic locking
  payments:           One payment record per approved property
  payment_details:    Immutable installment ledger (append-only)
  policies:           Singleton commission / revenue-split configuration
  daily_settlements:  Persisted end-of-day settlement snapshots

APPEND-ONLY ENFORCEMENT:
  payment_details carries no UPDATE or DELETE path. The unique
  (property_id, installment_number) index catches two writers racing past
  the same installment count.

OPTIMISTIC LOCKING:
  UPDATE ... WHERE id = ? AND version = ? with RowsAffected() == 0 mapped to
  settlement.ErrConcurrentUpdate.

MONEY:
  Decimals are persisted as TEXT and re-parsed on read. Never REAL: float
  storage is how paid aggregates drift.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/settlement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/settlement-engine/settlement"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx abstracts *sql.DB and *sql.Tx so the same query helpers serve both.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Registered properties
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL DEFAULT '',
		property_type_id TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL DEFAULT '0',
		area_size TEXT NOT NULL DEFAULT '0',
		expected_amount TEXT NOT NULL DEFAULT '0',
		paid_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'pending',
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		currency TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_properties_status
		ON properties(status);

	-- Payment records (one per approved property)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL UNIQUE,
		last_amount TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		discount_reason TEXT,
		exempt BOOLEAN NOT NULL DEFAULT FALSE,
		exemption_reason TEXT,
		currency TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'pending',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Installment ledger (append-only)
	CREATE TABLE IF NOT EXISTS payment_details (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		installment_number INTEGER NOT NULL,
		payment_date TEXT NOT NULL,
		collected_by TEXT,
		payment_method_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_details_property
		ON payment_details(property_id, payment_date);
	CREATE INDEX IF NOT EXISTS idx_details_date
		ON payment_details(payment_date);

	-- CRITICAL: two writers racing past the same installment count collide
	-- here instead of producing duplicate installment numbers.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_details_unique_installment
		ON payment_details(property_id, installment_number);

	-- Singleton admin policies
	CREATE TABLE IF NOT EXISTS policies (
		kind TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Persisted end-of-day settlements (one row per calendar day)
	CREATE TABLE IF NOT EXISTS daily_settlements (
		day TEXT PRIMARY KEY,
		total_collected TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		net_after_commission TEXT NOT NULL,
		company_share TEXT NOT NULL,
		municipality_share TEXT NOT NULL,
		payment_count INTEGER NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PROPERTIES (settlement.Store interface)
// =============================================================================

func (s *Store) GetProperty(ctx context.Context, id settlement.PropertyID) (*settlement.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProperty(ctx, s.db, id)
}

func getProperty(ctx context.Context, db dbtx, id settlement.PropertyID) (*settlement.Property, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, owner_id, property_type_id, unit_price, area_size,
		       expected_amount, paid_amount, status, approved, currency,
		       version, created_at
		FROM properties WHERE id = ?`, id)

	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return p, nil
}

func (s *Store) SaveProperty(ctx context.Context, p settlement.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProperty(ctx, s.db, p)
}

func saveProperty(ctx context.Context, db dbtx, p settlement.Property) error {
	if p.Version == 0 {
		p.Version = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO properties
		(id, owner_id, property_type_id, unit_price, area_size, expected_amount,
		 paid_amount, status, approved, currency, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.PropertyTypeID,
		p.UnitPrice.String(), p.AreaSize.String(), p.ExpectedAmount.String(),
		p.PaidAmount.String(), p.Status, p.Approved, p.Currency,
		p.Version, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save property: %w", err)
	}
	return nil
}

func (s *Store) UpdatePropertyBalance(ctx context.Context, p settlement.Property, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePropertyBalance(ctx, s.db, p, expectedVersion)
}

func updatePropertyBalance(ctx context.Context, db dbtx, p settlement.Property, expectedVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE properties
		SET expected_amount = ?, paid_amount = ?, status = ?, approved = ?,
		    currency = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.ExpectedAmount.String(), p.PaidAmount.String(), p.Status, p.Approved,
		p.Currency, p.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update property: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settlement.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) ListProperties(ctx context.Context) ([]settlement.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProperties(ctx, s.db)
}

func listProperties(ctx context.Context, db dbtx) ([]settlement.Property, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, owner_id, property_type_id, unit_price, area_size,
		       expected_amount, paid_amount, status, approved, currency,
		       version, created_at
		FROM properties ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var out []settlement.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProperty(row scanner) (*settlement.Property, error) {
	var (
		p                                           settlement.Property
		unitPrice, areaSize, expected, paid, status string
		createdAt                                   string
	)
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.PropertyTypeID, &unitPrice, &areaSize,
		&expected, &paid, &status, &p.Approved, &p.Currency,
		&p.Version, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.UnitPrice = settlement.MustParseDecimal(unitPrice)
	p.AreaSize = settlement.MustParseDecimal(areaSize)
	p.ExpectedAmount = settlement.MustParseDecimal(expected)
	p.PaidAmount = settlement.MustParseDecimal(paid)
	p.Status = settlement.PaymentStatus(status)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) GetPayment(ctx context.Context, id settlement.PaymentID) (*settlement.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPaymentWhere(ctx, s.db, "id = ?", id)
}

func (s *Store) GetPaymentByProperty(ctx context.Context, propertyID settlement.PropertyID) (*settlement.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPaymentWhere(ctx, s.db, "property_id = ?", propertyID)
}

func getPaymentWhere(ctx context.Context, db dbtx, where string, arg any) (*settlement.Payment, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, property_id, last_amount, discount_amount, discount_reason,
		       exempt, exemption_reason, currency, state, version,
		       created_at, updated_at
		FROM payments WHERE `+where, arg)

	var (
		p                               settlement.Payment
		lastAmount, discountAmount      string
		discountReason, exemptionReason sql.NullString
		state, createdAt, updatedAt     string
	)
	err := row.Scan(
		&p.ID, &p.PropertyID, &lastAmount, &discountAmount, &discountReason,
		&p.Exempt, &exemptionReason, &p.Currency, &state, &p.Version,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	p.LastAmount = settlement.MustParseDecimal(lastAmount)
	p.DiscountAmount = settlement.MustParseDecimal(discountAmount)
	p.DiscountReason = discountReason.String
	p.ExemptionReason = exemptionReason.String
	p.State = settlement.PaymentState(state)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (s *Store) SavePayment(ctx context.Context, p settlement.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePayment(ctx, s.db, p)
}

func savePayment(ctx context.Context, db dbtx, p settlement.Payment) error {
	if p.Version == 0 {
		p.Version = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO payments
		(id, property_id, last_amount, discount_amount, discount_reason,
		 exempt, exemption_reason, currency, state, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PropertyID, p.LastAmount.String(), p.DiscountAmount.String(),
		nullString(p.DiscountReason), p.Exempt, nullString(p.ExemptionReason),
		p.Currency, p.State, p.Version,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p settlement.Payment, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePayment(ctx, s.db, p, expectedVersion)
}

func updatePayment(ctx context.Context, db dbtx, p settlement.Payment, expectedVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE payments
		SET last_amount = ?, discount_amount = ?, discount_reason = ?,
		    exempt = ?, exemption_reason = ?, state = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.LastAmount.String(), p.DiscountAmount.String(), nullString(p.DiscountReason),
		p.Exempt, nullString(p.ExemptionReason), p.State,
		formatTime(p.UpdatedAt), p.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settlement.ErrConcurrentUpdate
	}
	return nil
}

// =============================================================================
// PAYMENT DETAILS (append-only ledger)
// =============================================================================

func (s *Store) AppendDetail(ctx context.Context, d settlement.PaymentDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendDetail(ctx, s.db, d)
}

func appendDetail(ctx context.Context, db dbtx, d settlement.PaymentDetail) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payment_details
		(id, property_id, payment_id, amount, currency, installment_number,
		 payment_date, collected_by, payment_method_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PropertyID, d.PaymentID, d.Amount.String(), d.Currency,
		d.InstallmentNumber, formatTime(d.PaymentDate),
		nullString(d.CollectedBy), nullString(d.PaymentMethodID),
		formatTime(d.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return settlement.ErrDuplicateInstallment
		}
		return fmt.Errorf("failed to append payment detail: %w", err)
	}
	return nil
}

func (s *Store) DetailsByProperty(ctx context.Context, propertyID settlement.PropertyID) ([]settlement.PaymentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return detailsByProperty(ctx, s.db, propertyID)
}

func detailsByProperty(ctx context.Context, db dbtx, propertyID settlement.PropertyID) ([]settlement.PaymentDetail, error) {
	return queryDetails(ctx, db, `
		SELECT id, property_id, payment_id, amount, currency, installment_number,
		       payment_date, collected_by, payment_method_id, created_at
		FROM payment_details
		WHERE property_id = ?
		ORDER BY payment_date ASC, installment_number ASC`, propertyID)
}

func (s *Store) DetailsOnDay(ctx context.Context, day time.Time) ([]settlement.PaymentDetail, error) {
	d := settlement.DayOf(day)
	return s.DetailsInRange(ctx, d, d.Add(24*time.Hour-time.Nanosecond))
}

func (s *Store) DetailsInRange(ctx context.Context, from, to time.Time) ([]settlement.PaymentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return detailsInRange(ctx, s.db, from, to)
}

func detailsInRange(ctx context.Context, db dbtx, from, to time.Time) ([]settlement.PaymentDetail, error) {
	return queryDetails(ctx, db, `
		SELECT id, property_id, payment_id, amount, currency, installment_number,
		       payment_date, collected_by, payment_method_id, created_at
		FROM payment_details
		WHERE payment_date >= ? AND payment_date <= ?
		ORDER BY payment_date ASC, installment_number ASC`,
		formatTime(from), formatTime(to))
}

func queryDetails(ctx context.Context, db dbtx, query string, args ...any) ([]settlement.PaymentDetail, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment details: %w", err)
	}
	defer rows.Close()

	var out []settlement.PaymentDetail
	for rows.Next() {
		var (
			d                       settlement.PaymentDetail
			amount, date, createdAt string
			collectedBy, methodID   sql.NullString
		)
		err := rows.Scan(
			&d.ID, &d.PropertyID, &d.PaymentID, &amount, &d.Currency,
			&d.InstallmentNumber, &date, &collectedBy, &methodID, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment detail: %w", err)
		}
		d.Amount = settlement.MustParseDecimal(amount)
		d.PaymentDate = parseTime(date)
		d.CollectedBy = collectedBy.String
		d.PaymentMethodID = methodID.String
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// =============================================================================
// POLICIES (settlement.PolicyStore interface)
// =============================================================================

const (
	policyKindCommission   = "commission"
	policyKindRevenueSplit = "revenue_split"
)

type commissionConfig struct {
	RatePercent string `json:"rate_percent"`
}

type revenueSplitConfig struct {
	CompanySharePercent      string `json:"company_share_percent"`
	MunicipalitySharePercent string `json:"municipality_share_percent"`
}

func (s *Store) GetCommissionPolicy(ctx context.Context) (settlement.CommissionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.getPolicyJSON(ctx, policyKindCommission)
	if err != nil {
		return settlement.CommissionPolicy{}, err
	}
	if raw == "" {
		return settlement.DefaultCommissionPolicy(), nil
	}

	var cfg commissionConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return settlement.CommissionPolicy{}, fmt.Errorf("corrupt commission policy: %w", err)
	}
	return settlement.CommissionPolicy{
		RatePercent: settlement.MustParseDecimal(cfg.RatePercent),
	}, nil
}

func (s *Store) SaveCommissionPolicy(ctx context.Context, p settlement.CommissionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, _ := json.Marshal(commissionConfig{RatePercent: p.RatePercent.String()})
	return s.savePolicyJSON(ctx, policyKindCommission, string(raw))
}

func (s *Store) GetRevenueSplitPolicy(ctx context.Context) (settlement.RevenueSplitPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.getPolicyJSON(ctx, policyKindRevenueSplit)
	if err != nil {
		return settlement.RevenueSplitPolicy{}, err
	}
	if raw == "" {
		return settlement.DefaultRevenueSplitPolicy(), nil
	}

	var cfg revenueSplitConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return settlement.RevenueSplitPolicy{}, fmt.Errorf("corrupt revenue split policy: %w", err)
	}
	return settlement.RevenueSplitPolicy{
		CompanySharePercent:      settlement.MustParseDecimal(cfg.CompanySharePercent),
		MunicipalitySharePercent: settlement.MustParseDecimal(cfg.MunicipalitySharePercent),
	}, nil
}

func (s *Store) SaveRevenueSplitPolicy(ctx context.Context, p settlement.RevenueSplitPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, _ := json.Marshal(revenueSplitConfig{
		CompanySharePercent:      p.CompanySharePercent.String(),
		MunicipalitySharePercent: p.MunicipalitySharePercent.String(),
	})
	return s.savePolicyJSON(ctx, policyKindRevenueSplit, string(raw))
}

func (s *Store) getPolicyJSON(ctx context.Context, kind string) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json FROM policies WHERE kind = ?", kind).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get policy %s: %w", kind, err)
	}
	return raw, nil
}

func (s *Store) savePolicyJSON(ctx context.Context, kind, raw string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (kind, config_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET config_json = excluded.config_json,
		                                updated_at = excluded.updated_at`,
		kind, raw, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save policy %s: %w", kind, err)
	}
	return nil
}

// =============================================================================
// DAILY SETTLEMENTS (settlement.SettlementStore interface)
// =============================================================================

func (s *Store) SaveDailySettlement(ctx context.Context, st settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := settlement.DayOf(st.Date).Format("2006-01-02")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_settlements
		(day, total_collected, commission_amount, net_after_commission,
		 company_share, municipality_share, payment_count, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			total_collected = excluded.total_collected,
			commission_amount = excluded.commission_amount,
			net_after_commission = excluded.net_after_commission,
			company_share = excluded.company_share,
			municipality_share = excluded.municipality_share,
			payment_count = excluded.payment_count,
			currency = excluded.currency`,
		day, st.TotalCollected.String(), st.CommissionAmount.String(),
		st.NetAfterCommission.String(), st.CompanyShare.String(),
		st.MunicipalityShare.String(), st.PaymentCount, st.Currency,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save daily settlement: %w", err)
	}
	return nil
}

func (s *Store) GetDailySettlement(ctx context.Context, day time.Time) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT day, total_collected, commission_amount, net_after_commission,
		       company_share, municipality_share, payment_count, currency
		FROM daily_settlements WHERE day = ?`,
		settlement.DayOf(day).Format("2006-01-02"))

	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily settlement: %w", err)
	}
	return st, nil
}

func (s *Store) ListDailySettlements(ctx context.Context, from, to time.Time) ([]settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT day, total_collected, commission_amount, net_after_commission,
		       company_share, municipality_share, payment_count, currency
		FROM daily_settlements
		WHERE day >= ? AND day <= ?
		ORDER BY day ASC`,
		settlement.DayOf(from).Format("2006-01-02"),
		settlement.DayOf(to).Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily settlements: %w", err)
	}
	defer rows.Close()

	var out []settlement.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanSettlement(row scanner) (*settlement.Settlement, error) {
	var (
		st                              settlement.Settlement
		day, total, commission, net     string
		companyShare, municipalityShare string
	)
	err := row.Scan(&day, &total, &commission, &net,
		&companyShare, &municipalityShare, &st.PaymentCount, &st.Currency)
	if err != nil {
		return nil, err
	}

	st.Date, _ = time.Parse("2006-01-02", day)
	st.TotalCollected = settlement.MustParseDecimal(total)
	st.CommissionAmount = settlement.MustParseDecimal(commission)
	st.NetAfterCommission = settlement.MustParseDecimal(net)
	st.CompanyShare = settlement.MustParseDecimal(companyShare)
	st.MunicipalityShare = settlement.MustParseDecimal(municipalityShare)
	return &st, nil
}

// =============================================================================
// TRANSACTIONAL STORE (settlement.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store mutex
// is held for the duration, so tx-bound operations go through the lock-free
// helpers rather than the public methods.
func (s *Store) WithTx(ctx context.Context, fn func(store settlement.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetProperty(ctx context.Context, id settlement.PropertyID) (*settlement.Property, error) {
	return getProperty(ctx, ts.tx, id)
}

func (ts *txStore) SaveProperty(ctx context.Context, p settlement.Property) error {
	return saveProperty(ctx, ts.tx, p)
}

func (ts *txStore) UpdatePropertyBalance(ctx context.Context, p settlement.Property, expectedVersion int64) error {
	return updatePropertyBalance(ctx, ts.tx, p, expectedVersion)
}

func (ts *txStore) ListProperties(ctx context.Context) ([]settlement.Property, error) {
	return listProperties(ctx, ts.tx)
}

func (ts *txStore) GetPayment(ctx context.Context, id settlement.PaymentID) (*settlement.Payment, error) {
	return getPaymentWhere(ctx, ts.tx, "id = ?", id)
}

func (ts *txStore) GetPaymentByProperty(ctx context.Context, propertyID settlement.PropertyID) (*settlement.Payment, error) {
	return getPaymentWhere(ctx, ts.tx, "property_id = ?", propertyID)
}

func (ts *txStore) SavePayment(ctx context.Context, p settlement.Payment) error {
	return savePayment(ctx, ts.tx, p)
}

func (ts *txStore) UpdatePayment(ctx context.Context, p settlement.Payment, expectedVersion int64) error {
	return updatePayment(ctx, ts.tx, p, expectedVersion)
}

func (ts *txStore) AppendDetail(ctx context.Context, d settlement.PaymentDetail) error {
	return appendDetail(ctx, ts.tx, d)
}

func (ts *txStore) DetailsByProperty(ctx context.Context, propertyID settlement.PropertyID) ([]settlement.PaymentDetail, error) {
	return detailsByProperty(ctx, ts.tx, propertyID)
}

func (ts *txStore) DetailsOnDay(ctx context.Context, day time.Time) ([]settlement.PaymentDetail, error) {
	d := settlement.DayOf(day)
	return detailsInRange(ctx, ts.tx, d, d.Add(24*time.Hour-time.Nanosecond))
}

func (ts *txStore) DetailsInRange(ctx context.Context, from, to time.Time) ([]settlement.PaymentDetail, error) {
	return detailsInRange(ctx, ts.tx, from, to)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset wipes all data. Used by the demo scenario loader only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"payment_details", "payments", "properties", "policies", "daily_settlements",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Second precision: RFC 3339 with fractional seconds does not sort
// lexicographically, and the range queries compare strings.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ settlement.TxStore         = (*Store)(nil)
	_ settlement.PolicyStore     = (*Store)(nil)
	_ settlement.SettlementStore = (*Store)(nil)
)
