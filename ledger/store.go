/*
store.go - Persistence and sink interfaces

PURPOSE:
  Defines the boundary between the engine and the authoritative relational
  store, plus the audit-log and external-sync sinks. Implementations:
  store/sqlite (production) and ledger/store (in-memory, for tests).

APPEND-ONLY CONTRACT:
  Transactions have Append and read methods only. No Update, no Delete.
  Corrections are new transactions (reversal.go). Daily records are never
  deleted; their mutations are lifecycle transitions and totals
  recomputation.

ATOMICITY:
  TransitionRecord and TransitionClosure are compare-and-swap on status and
  commit the transition together with its audit entry as one unit: a
  privileged status change missing from the audit trail is a correctness
  violation, not a logging gap. A losing concurrent transition gets
  ErrConflict.

CONVENTIONS:
  Get* methods return (nil, nil) when the row is absent; services translate
  that into ErrNotFound with context. Store-level failures are wrapped in
  ErrStorageUnavailable.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OUTLETS
// =============================================================================

type OutletStore interface {
	CreateOutlet(ctx context.Context, o Outlet) error
	GetOutlet(ctx context.Context, id OutletID) (*Outlet, error)
	ListOutlets(ctx context.Context) ([]Outlet, error)
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

// RecordMutation is the set of fields a lifecycle transition may change
// alongside the status flip.
type RecordMutation struct {
	Totals   *RecordTotals
	LockedAt *time.Time
	LockedBy string
	// ClearLock resets LockedAt/LockedBy on unlock.
	ClearLock bool
}

type RecordStore interface {
	// CreateDailyRecord inserts a new draft record. ErrConflict if a
	// record for (outlet, business date) already exists.
	CreateDailyRecord(ctx context.Context, rec DailyRecord) error

	GetDailyRecord(ctx context.Context, id RecordID) (*DailyRecord, error)
	GetDailyRecordByDate(ctx context.Context, outletID OutletID, date Date) (*DailyRecord, error)
	RecordsInRange(ctx context.Context, outletID OutletID, from, to Date) ([]DailyRecord, error)

	// UpdateOpeningBalances sets the day's baseline. Only meaningful while
	// the record is draft; the lifecycle service enforces that.
	UpdateOpeningBalances(ctx context.Context, id RecordID, cash, upi decimal.Decimal, confirmed bool) error

	// UpdateRecordTotals rewrites the derived aggregates. Totals are always
	// recomputed from the transaction set, never incremented in place.
	UpdateRecordTotals(ctx context.Context, id RecordID, totals RecordTotals) error

	// TransitionRecord flips status from -> to, applies the mutation, and
	// appends the audit entry, all atomically. ErrConflict if the current
	// status is not `from` (including a concurrent transition winning).
	TransitionRecord(ctx context.Context, id RecordID, from, to RecordStatus, m RecordMutation, audit AuditEntry) (*DailyRecord, error)
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

type TransactionStore interface {
	// AppendTransaction persists a transaction. ErrDuplicateReversal if a
	// reversal for the same original already exists. This is the ONLY
	// write operation on transactions.
	AppendTransaction(ctx context.Context, tx Transaction) error

	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	TransactionsByDate(ctx context.Context, outletID OutletID, date Date) ([]Transaction, error)
	TransactionsInRange(ctx context.Context, outletID OutletID, from, to Date) ([]Transaction, error)

	// HasReversal reports whether any transaction references id via
	// ReversedOf.
	HasReversal(ctx context.Context, id TransactionID) (bool, error)

	// EntryNumbers returns all persisted entry numbers for the outlet, for
	// counter reconciliation.
	EntryNumbers(ctx context.Context, outletID OutletID) ([]string, error)
}

// =============================================================================
// COUNTERS
// =============================================================================

type CounterStore interface {
	// AllocateSequence atomically issues the next number of the given
	// kind, serialized per outlet. No two callers ever receive the same
	// number; gaps from genuine rollback are acceptable.
	AllocateSequence(ctx context.Context, outletID OutletID, kind CounterKind) (int64, error)

	GetCounter(ctx context.Context, outletID OutletID) (*OutletCounter, error)

	// RaiseCounter lifts the stored next value to at least min. It never
	// lowers a counter and reports whether anything changed.
	RaiseCounter(ctx context.Context, outletID OutletID, kind CounterKind, min int64) (bool, error)
}

// =============================================================================
// MONTHLY CLOSURES
// =============================================================================

type ClosureStore interface {
	GetClosure(ctx context.Context, outletID OutletID, month Month) (*MonthlyClosure, error)

	// TransitionClosure writes the closure and its audit entry atomically,
	// CAS-guarded on the existing status (a missing row counts as open).
	TransitionClosure(ctx context.Context, c MonthlyClosure, from ClosureStatus, audit AuditEntry) (*MonthlyClosure, error)
}

// =============================================================================
// ANOMALIES
// =============================================================================

type AnomalyStore interface {
	// UpsertAnomaly inserts the anomaly unless an open anomaly with the
	// same (type, outlet, business date) key exists, in which case the
	// existing row is returned unchanged. Reports whether a row was
	// created.
	UpsertAnomaly(ctx context.Context, a Anomaly) (*Anomaly, bool, error)

	GetAnomaly(ctx context.Context, id AnomalyID) (*Anomaly, error)
	OpenAnomalies(ctx context.Context, outletID OutletID) ([]Anomaly, error)
	ResolveAnomaly(ctx context.Context, id AnomalyID, notes string, at time.Time) error
}

// =============================================================================
// AUDIT LOG - Append-only, separate from the ledger
// =============================================================================

type AuditAction string

const (
	AuditDaySubmitted    AuditAction = "day_submitted"
	AuditDayLocked       AuditAction = "day_locked"
	AuditDayUnlocked     AuditAction = "day_unlocked"
	AuditMonthClosed     AuditAction = "month_closed"
	AuditMonthReopened   AuditAction = "month_reopened"
	AuditReversalPosted  AuditAction = "reversal_posted"
	AuditCounterRepaired AuditAction = "counter_repaired"
	AuditOpeningSet      AuditAction = "opening_balances_set"
)

type AuditSeverity string

const (
	AuditInfo     AuditSeverity = "info"
	AuditCritical AuditSeverity = "critical"
)

// AuditEntry records who did what when, with before/after context in
// Details for privileged changes.
type AuditEntry struct {
	ID         string
	At         time.Time
	ActorID    string
	Action     AuditAction
	OutletID   OutletID
	EntityType string
	EntityID   string
	Severity   AuditSeverity
	Reason     string
	Details    map[string]any
}

type AuditFilter struct {
	OutletID *OutletID
	ActorID  *string
	Actions  []AuditAction
	From     *time.Time
	To       *time.Time
	Limit    int
}

type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// STORE - Everything the engine persists through
// =============================================================================

type Store interface {
	OutletStore
	RecordStore
	TransactionStore
	CounterStore
	ClosureStore
	AnomalyStore
	AuditLog
}

// =============================================================================
// SYNC NOTIFIER - External mirroring collaborator (fire-and-forget)
// =============================================================================

// SyncNotifier mirrors authoritative state to an external copy (e.g. a
// spreadsheet). Calls happen after the domain operation has committed;
// failures are logged and never roll back or block the committed result.
type SyncNotifier interface {
	SyncDailyRecord(ctx context.Context, rec DailyRecord, txs []Transaction) error
}

// NopSyncNotifier is the default when no external mirror is configured.
type NopSyncNotifier struct{}

func (NopSyncNotifier) SyncDailyRecord(context.Context, DailyRecord, []Transaction) error {
	return nil
}
