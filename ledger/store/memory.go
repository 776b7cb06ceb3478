// Package store provides an in-memory ledger.Store implementation
// (for testing/dev). The production store is store/sqlite.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sahakar/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements ledger.Store with mutex-guarded maps. It enforces the
// same uniqueness constraints the sqlite schema carries: one record per
// (outlet, date), one reversal per original, one open anomaly per key.
type Memory struct {
	mu sync.RWMutex

	outlets   map[ledger.OutletID]ledger.Outlet
	records   map[ledger.RecordID]ledger.DailyRecord
	recByDate map[recordKey]ledger.RecordID
	txs       map[ledger.TransactionID]ledger.Transaction
	txOrder   []ledger.TransactionID
	reversals map[ledger.TransactionID]ledger.TransactionID // original -> reversal
	counters  map[ledger.OutletID]*ledger.OutletCounter
	closures  map[closureKey]ledger.MonthlyClosure
	anomalies map[ledger.AnomalyID]ledger.Anomaly
	audits    []ledger.AuditEntry
}

type recordKey struct {
	OutletID ledger.OutletID
	Date     ledger.Date
}

type closureKey struct {
	OutletID ledger.OutletID
	Month    ledger.Month
}

func NewMemory() *Memory {
	return &Memory{
		outlets:   make(map[ledger.OutletID]ledger.Outlet),
		records:   make(map[ledger.RecordID]ledger.DailyRecord),
		recByDate: make(map[recordKey]ledger.RecordID),
		txs:       make(map[ledger.TransactionID]ledger.Transaction),
		reversals: make(map[ledger.TransactionID]ledger.TransactionID),
		counters:  make(map[ledger.OutletID]*ledger.OutletCounter),
		closures:  make(map[closureKey]ledger.MonthlyClosure),
		anomalies: make(map[ledger.AnomalyID]ledger.Anomaly),
	}
}

// Reset clears everything. Demo and test support only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outlets = make(map[ledger.OutletID]ledger.Outlet)
	m.records = make(map[ledger.RecordID]ledger.DailyRecord)
	m.recByDate = make(map[recordKey]ledger.RecordID)
	m.txs = make(map[ledger.TransactionID]ledger.Transaction)
	m.txOrder = nil
	m.reversals = make(map[ledger.TransactionID]ledger.TransactionID)
	m.counters = make(map[ledger.OutletID]*ledger.OutletCounter)
	m.closures = make(map[closureKey]ledger.MonthlyClosure)
	m.anomalies = make(map[ledger.AnomalyID]ledger.Anomaly)
	m.audits = nil
	return nil
}

// =============================================================================
// OUTLETS
// =============================================================================

func (m *Memory) CreateOutlet(_ context.Context, o ledger.Outlet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outlets[o.ID]; ok {
		return &ledger.ConflictError{Entity: "outlet", Message: "already exists"}
	}
	m.outlets[o.ID] = o
	return nil
}

func (m *Memory) GetOutlet(_ context.Context, id ledger.OutletID) (*ledger.Outlet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.outlets[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) ListOutlets(_ context.Context) ([]ledger.Outlet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Outlet, 0, len(m.outlets))
	for _, o := range m.outlets {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

func (m *Memory) CreateDailyRecord(_ context.Context, rec ledger.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{OutletID: rec.OutletID, Date: rec.BusinessDate}
	if _, ok := m.recByDate[k]; ok {
		return &ledger.ConflictError{Entity: "daily_record", Message: "record already exists for this business date"}
	}
	m.records[rec.ID] = rec
	m.recByDate[k] = rec.ID
	return nil
}

func (m *Memory) GetDailyRecord(_ context.Context, id ledger.RecordID) (*ledger.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) GetDailyRecordByDate(_ context.Context, outletID ledger.OutletID, date ledger.Date) (*ledger.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.recByDate[recordKey{OutletID: outletID, Date: date}]
	if !ok {
		return nil, nil
	}
	rec := m.records[id]
	return &rec, nil
}

func (m *Memory) RecordsInRange(_ context.Context, outletID ledger.OutletID, from, to ledger.Date) ([]ledger.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.DailyRecord
	for _, rec := range m.records {
		if rec.OutletID != outletID {
			continue
		}
		if rec.BusinessDate.Before(from) || rec.BusinessDate.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusinessDate.Before(out[j].BusinessDate) })
	return out, nil
}

func (m *Memory) UpdateOpeningBalances(_ context.Context, id ledger.RecordID, cash, upi decimal.Decimal, confirmed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ledger.ErrNotFound
	}
	rec.OpeningCash, rec.OpeningUPI, rec.OpeningConfirmed = cash, upi, confirmed
	m.records[id] = rec
	return nil
}

func (m *Memory) UpdateRecordTotals(_ context.Context, id ledger.RecordID, totals ledger.RecordTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ledger.ErrNotFound
	}
	rec.ClosingCash = totals.ClosingCash
	rec.ClosingUPI = totals.ClosingUPI
	rec.TotalIncome = totals.TotalIncome
	rec.TotalExpense = totals.TotalExpense
	m.records[id] = rec
	return nil
}

func (m *Memory) TransitionRecord(_ context.Context, id ledger.RecordID, from, to ledger.RecordStatus, mut ledger.RecordMutation, audit ledger.AuditEntry) (*ledger.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	if rec.Status != from {
		return nil, &ledger.ConflictError{Entity: "daily_record", Message: "status changed concurrently"}
	}
	rec.Status = to
	if mut.Totals != nil {
		rec.ClosingCash = mut.Totals.ClosingCash
		rec.ClosingUPI = mut.Totals.ClosingUPI
		rec.TotalIncome = mut.Totals.TotalIncome
		rec.TotalExpense = mut.Totals.TotalExpense
	}
	if mut.LockedAt != nil {
		at := *mut.LockedAt
		rec.LockedAt = &at
		rec.LockedBy = mut.LockedBy
	}
	if mut.ClearLock {
		rec.LockedAt = nil
		rec.LockedBy = ""
	}
	m.records[id] = rec
	m.audits = append(m.audits, audit)
	return &rec, nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.ID]; ok {
		return &ledger.ConflictError{Entity: "transaction", Message: "duplicate id"}
	}
	if tx.IsReversal {
		if _, ok := m.reversals[tx.ReversedOf]; ok {
			return ledger.ErrDuplicateReversal
		}
		m.reversals[tx.ReversedOf] = tx.ID
	}
	m.txs[tx.ID] = tx
	m.txOrder = append(m.txOrder, tx.ID)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *Memory) TransactionsByDate(ctx context.Context, outletID ledger.OutletID, date ledger.Date) ([]ledger.Transaction, error) {
	return m.TransactionsInRange(ctx, outletID, date, date)
}

func (m *Memory) TransactionsInRange(_ context.Context, outletID ledger.OutletID, from, to ledger.Date) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Transaction
	for _, id := range m.txOrder {
		tx := m.txs[id]
		if tx.OutletID != outletID {
			continue
		}
		if tx.BusinessDate.Before(from) || tx.BusinessDate.After(to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (m *Memory) HasReversal(_ context.Context, id ledger.TransactionID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.reversals[id]
	return ok, nil
}

func (m *Memory) EntryNumbers(_ context.Context, outletID ledger.OutletID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, id := range m.txOrder {
		if tx := m.txs[id]; tx.OutletID == outletID {
			out = append(out, tx.EntryNumber)
		}
	}
	return out, nil
}

// =============================================================================
// COUNTERS
// =============================================================================

func (m *Memory) counterLocked(outletID ledger.OutletID) *ledger.OutletCounter {
	c, ok := m.counters[outletID]
	if !ok {
		c = &ledger.OutletCounter{OutletID: outletID, NextEntrySeq: 1, NextCustomerSeq: 1}
		m.counters[outletID] = c
	}
	return c
}

func (m *Memory) AllocateSequence(_ context.Context, outletID ledger.OutletID, kind ledger.CounterKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counterLocked(outletID)
	switch kind {
	case ledger.CounterCustomer:
		seq := c.NextCustomerSeq
		c.NextCustomerSeq++
		return seq, nil
	default:
		seq := c.NextEntrySeq
		c.NextEntrySeq++
		return seq, nil
	}
}

func (m *Memory) GetCounter(_ context.Context, outletID ledger.OutletID) (*ledger.OutletCounter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.counters[outletID]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (m *Memory) RaiseCounter(_ context.Context, outletID ledger.OutletID, kind ledger.CounterKind, min int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counterLocked(outletID)
	switch kind {
	case ledger.CounterCustomer:
		if c.NextCustomerSeq >= min {
			return false, nil
		}
		c.NextCustomerSeq = min
	default:
		if c.NextEntrySeq >= min {
			return false, nil
		}
		c.NextEntrySeq = min
	}
	return true, nil
}

// =============================================================================
// MONTHLY CLOSURES
// =============================================================================

func (m *Memory) GetClosure(_ context.Context, outletID ledger.OutletID, month ledger.Month) (*ledger.MonthlyClosure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.closures[closureKey{OutletID: outletID, Month: month}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) TransitionClosure(_ context.Context, c ledger.MonthlyClosure, from ledger.ClosureStatus, audit ledger.AuditEntry) (*ledger.MonthlyClosure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := closureKey{OutletID: c.OutletID, Month: c.Month}
	current := ledger.ClosureOpen
	if existing, ok := m.closures[k]; ok {
		current = existing.Status
	}
	if current != from {
		return nil, &ledger.ConflictError{Entity: "monthly_closure", Message: "status changed concurrently"}
	}
	m.closures[k] = c
	m.audits = append(m.audits, audit)
	return &c, nil
}

// =============================================================================
// ANOMALIES
// =============================================================================

func (m *Memory) UpsertAnomaly(_ context.Context, a ledger.Anomaly) (*ledger.Anomaly, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.anomalies {
		if existing.ResolvedAt == nil && existing.Key() == a.Key() {
			return &existing, false, nil
		}
	}
	m.anomalies[a.ID] = a
	return &a, true, nil
}

func (m *Memory) GetAnomaly(_ context.Context, id ledger.AnomalyID) (*ledger.Anomaly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.anomalies[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) OpenAnomalies(_ context.Context, outletID ledger.OutletID) ([]ledger.Anomaly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Anomaly
	for _, a := range m.anomalies {
		if a.OutletID == outletID && a.ResolvedAt == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusinessDate.After(out[j].BusinessDate) })
	return out, nil
}

func (m *Memory) ResolveAnomaly(_ context.Context, id ledger.AnomalyID, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.anomalies[id]
	if !ok {
		return ledger.ErrNotFound
	}
	a.ResolvedAt = &at
	a.ResolutionNotes = notes
	m.anomalies[id] = a
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.AuditEntry
	for _, e := range m.audits {
		if filter.OutletID != nil && e.OutletID != *filter.OutletID {
			continue
		}
		if filter.ActorID != nil && e.ActorID != *filter.ActorID {
			continue
		}
		if len(filter.Actions) > 0 {
			match := false
			for _, a := range filter.Actions {
				if e.Action == a {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.From != nil && e.At.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.At.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	// Newest first. Reversing before the stable sort makes entries with
	// identical timestamps come back last-written first, matching the
	// sqlite store.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
