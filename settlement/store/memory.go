// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/settlement-engine/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	properties  map[settlement.PropertyID]settlement.Property
	payments    map[settlement.PaymentID]settlement.Payment
	details     map[settlement.PropertyID][]settlement.PaymentDetail
	commission  *settlement.CommissionPolicy
	split       *settlement.RevenueSplitPolicy
	settlements map[time.Time]settlement.Settlement
}

func NewMemory() *Memory {
	return &Memory{
		properties:  make(map[settlement.PropertyID]settlement.Property),
		payments:    make(map[settlement.PaymentID]settlement.Payment),
		details:     make(map[settlement.PropertyID][]settlement.PaymentDetail),
		settlements: make(map[time.Time]settlement.Settlement),
	}
}

// WithTx serializes the whole operation under the store mutex. The memory
// store has no rollback; tests that need failure injection wrap the store
// instead.
func (m *Memory) WithTx(_ context.Context, fn func(settlement.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&lockedMemory{m})
}

// lockedMemory exposes the store methods without re-acquiring the mutex,
// for use inside WithTx.
type lockedMemory struct{ m *Memory }

// =============================================================================
// PROPERTIES
// =============================================================================

func (m *Memory) GetProperty(ctx context.Context, id settlement.PropertyID) (*settlement.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProperty(id)
}

func (m *Memory) getProperty(id settlement.PropertyID) (*settlement.Property, error) {
	p, ok := m.properties[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (m *Memory) SaveProperty(ctx context.Context, p settlement.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveProperty(p)
}

func (m *Memory) saveProperty(p settlement.Property) error {
	if p.Version == 0 {
		p.Version = 1
	}
	m.properties[p.ID] = p
	return nil
}

func (m *Memory) UpdatePropertyBalance(ctx context.Context, p settlement.Property, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePropertyBalance(p, expectedVersion)
}

func (m *Memory) updatePropertyBalance(p settlement.Property, expectedVersion int64) error {
	current, ok := m.properties[p.ID]
	if !ok {
		return settlement.ErrPropertyNotFound
	}
	if current.Version != expectedVersion {
		return settlement.ErrConcurrentUpdate
	}
	p.Version = expectedVersion + 1
	m.properties[p.ID] = p
	return nil
}

func (m *Memory) ListProperties(ctx context.Context) ([]settlement.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProperties()
}

func (m *Memory) listProperties() ([]settlement.Property, error) {
	out := make([]settlement.Property, 0, len(m.properties))
	for _, p := range m.properties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) GetPayment(ctx context.Context, id settlement.PaymentID) (*settlement.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPayment(id)
}

func (m *Memory) getPayment(id settlement.PaymentID) (*settlement.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (m *Memory) GetPaymentByProperty(ctx context.Context, propertyID settlement.PropertyID) (*settlement.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPaymentByProperty(propertyID)
}

func (m *Memory) getPaymentByProperty(propertyID settlement.PropertyID) (*settlement.Payment, error) {
	for _, p := range m.payments {
		if p.PropertyID == propertyID {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) SavePayment(ctx context.Context, p settlement.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePayment(p)
}

func (m *Memory) savePayment(p settlement.Payment) error {
	if p.Version == 0 {
		p.Version = 1
	}
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) UpdatePayment(ctx context.Context, p settlement.Payment, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePayment(p, expectedVersion)
}

func (m *Memory) updatePayment(p settlement.Payment, expectedVersion int64) error {
	current, ok := m.payments[p.ID]
	if !ok {
		return settlement.ErrPaymentNotFound
	}
	if current.Version != expectedVersion {
		return settlement.ErrConcurrentUpdate
	}
	p.Version = expectedVersion + 1
	m.payments[p.ID] = p
	return nil
}

// =============================================================================
// PAYMENT DETAILS (append-only)
// =============================================================================

func (m *Memory) AppendDetail(ctx context.Context, d settlement.PaymentDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendDetail(d)
}

func (m *Memory) appendDetail(d settlement.PaymentDetail) error {
	for _, existing := range m.details[d.PropertyID] {
		if existing.InstallmentNumber == d.InstallmentNumber {
			return settlement.ErrDuplicateInstallment
		}
	}
	m.details[d.PropertyID] = append(m.details[d.PropertyID], d)
	return nil
}

func (m *Memory) DetailsByProperty(ctx context.Context, propertyID settlement.PropertyID) ([]settlement.PaymentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detailsByProperty(propertyID)
}

func (m *Memory) detailsByProperty(propertyID settlement.PropertyID) ([]settlement.PaymentDetail, error) {
	src := m.details[propertyID]
	out := make([]settlement.PaymentDetail, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PaymentDate.Before(out[j].PaymentDate)
	})
	return out, nil
}

func (m *Memory) DetailsOnDay(ctx context.Context, day time.Time) ([]settlement.PaymentDetail, error) {
	d := settlement.DayOf(day)
	return m.DetailsInRange(ctx, d, d.Add(24*time.Hour-time.Nanosecond))
}

func (m *Memory) DetailsInRange(ctx context.Context, from, to time.Time) ([]settlement.PaymentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detailsInRange(from, to)
}

func (m *Memory) detailsInRange(from, to time.Time) ([]settlement.PaymentDetail, error) {
	var out []settlement.PaymentDetail
	for _, list := range m.details {
		for _, d := range list {
			t := d.PaymentDate.UTC()
			if !t.Before(from) && !t.After(to) {
				out = append(out, d)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PaymentDate.Before(out[j].PaymentDate)
	})
	return out, nil
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) GetCommissionPolicy(ctx context.Context) (settlement.CommissionPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.commission == nil {
		return settlement.DefaultCommissionPolicy(), nil
	}
	return *m.commission, nil
}

func (m *Memory) SaveCommissionPolicy(ctx context.Context, p settlement.CommissionPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commission = &p
	return nil
}

func (m *Memory) GetRevenueSplitPolicy(ctx context.Context) (settlement.RevenueSplitPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.split == nil {
		return settlement.DefaultRevenueSplitPolicy(), nil
	}
	return *m.split, nil
}

func (m *Memory) SaveRevenueSplitPolicy(ctx context.Context, p settlement.RevenueSplitPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.split = &p
	return nil
}

// =============================================================================
// DAILY SETTLEMENTS
// =============================================================================

func (m *Memory) SaveDailySettlement(ctx context.Context, s settlement.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[settlement.DayOf(s.Date)] = s
	return nil
}

func (m *Memory) GetDailySettlement(ctx context.Context, day time.Time) (*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[settlement.DayOf(day)]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (m *Memory) ListDailySettlements(ctx context.Context, from, to time.Time) ([]settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Settlement
	for day, s := range m.settlements {
		if !day.Before(settlement.DayOf(from)) && !day.After(settlement.DayOf(to)) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// LOCKED VIEW (inside WithTx)
// =============================================================================

func (l *lockedMemory) GetProperty(_ context.Context, id settlement.PropertyID) (*settlement.Property, error) {
	return l.m.getProperty(id)
}

func (l *lockedMemory) SaveProperty(_ context.Context, p settlement.Property) error {
	return l.m.saveProperty(p)
}

func (l *lockedMemory) UpdatePropertyBalance(_ context.Context, p settlement.Property, expectedVersion int64) error {
	return l.m.updatePropertyBalance(p, expectedVersion)
}

func (l *lockedMemory) ListProperties(_ context.Context) ([]settlement.Property, error) {
	return l.m.listProperties()
}

func (l *lockedMemory) GetPayment(_ context.Context, id settlement.PaymentID) (*settlement.Payment, error) {
	return l.m.getPayment(id)
}

func (l *lockedMemory) GetPaymentByProperty(_ context.Context, propertyID settlement.PropertyID) (*settlement.Payment, error) {
	return l.m.getPaymentByProperty(propertyID)
}

func (l *lockedMemory) SavePayment(_ context.Context, p settlement.Payment) error {
	return l.m.savePayment(p)
}

func (l *lockedMemory) UpdatePayment(_ context.Context, p settlement.Payment, expectedVersion int64) error {
	return l.m.updatePayment(p, expectedVersion)
}

func (l *lockedMemory) AppendDetail(_ context.Context, d settlement.PaymentDetail) error {
	return l.m.appendDetail(d)
}

func (l *lockedMemory) DetailsByProperty(_ context.Context, propertyID settlement.PropertyID) ([]settlement.PaymentDetail, error) {
	return l.m.detailsByProperty(propertyID)
}

func (l *lockedMemory) DetailsOnDay(_ context.Context, day time.Time) ([]settlement.PaymentDetail, error) {
	d := settlement.DayOf(day)
	return l.m.detailsInRange(d, d.Add(24*time.Hour-time.Nanosecond))
}

func (l *lockedMemory) DetailsInRange(_ context.Context, from, to time.Time) ([]settlement.PaymentDetail, error) {
	return l.m.detailsInRange(from, to)
}
