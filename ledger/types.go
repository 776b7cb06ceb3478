/*
Package ledger implements the Ledger Integrity Engine: business-day
attribution, the daily record lock lifecycle, role/time edit permissions,
append-only correction via reversals, per-outlet sequence allocation, and
anomaly scanning over posted data.

KEY CONCEPTS IN THIS FILE (types.go):
  - Outlet: a physical operational unit; owns its own counters and records
  - DailyRecord: the ledger header for one outlet on one business day
  - Transaction: an immutable financial event; never updated, only reversed
  - MonthlyClosure: an aggregation/freeze over a month of daily records
  - Anomaly: a heuristically detected irregularity in posted data

DESIGN PRINCIPLES:
  1. Immutability: transactions are never modified, only reversed
  2. Precision: uses decimal.Decimal to avoid floating-point errors
  3. Recompute, don't accumulate: record totals are always derived from the
     underlying transaction set, never incremented in place
  4. Auditability: every privileged state change carries actor and reason

SEE ALSO:
  - calendar.go:   business-day mapping and operating-hours gate
  - permission.go: role x time x lock-state decision
  - lifecycle.go:  draft -> submitted -> locked state machine
  - reversal.go:   append-only correction
  - anomaly.go:    heuristic detectors
  - store.go:      persistence and sink interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OutletID string
type RecordID string
type TransactionID string
type ClosureID string
type AnomalyID string

// =============================================================================
// ROLES
// =============================================================================

// Role drives every decision in the permission engine.
type Role string

const (
	RoleSuperAdmin    Role = "superadmin"
	RoleMasterAdmin   Role = "master_admin"
	RoleHOAccountant  Role = "ho_accountant"
	RoleOutletManager Role = "outlet_manager"
	RoleOutletStaff   Role = "outlet_staff"
	RoleAuditor       Role = "auditor"
)

// Privileged reports whether the role may lock/unlock days, close months,
// and post corrections past the outlet-level edit window.
func (r Role) Privileged() bool {
	switch r {
	case RoleHOAccountant, RoleMasterAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// OutletRole reports whether the role is bound to a single outlet's counter.
func (r Role) OutletRole() bool {
	return r == RoleOutletManager || r == RoleOutletStaff
}

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleMasterAdmin, RoleHOAccountant,
		RoleOutletManager, RoleOutletStaff, RoleAuditor:
		return true
	}
	return false
}

// Actor is the acting user as seen by the engine. Authentication is an
// external collaborator; the engine only needs identity and role.
type Actor struct {
	ID   string
	Role Role
}

// =============================================================================
// OUTLET
// =============================================================================

type Outlet struct {
	ID       OutletID
	Name     string
	Code     string // entry-number prefix, e.g. "HP-TVL"
	Active   bool
	Timezone string // IANA name; empty means the engine default

	CreatedAt time.Time
}

// =============================================================================
// DAILY RECORD - Ledger header for one outlet on one business day
// =============================================================================

type RecordStatus string

const (
	StatusDraft     RecordStatus = "draft"
	StatusSubmitted RecordStatus = "submitted"
	StatusLocked    RecordStatus = "locked"
)

// DailyRecord is the per-day ledger header. Exactly one exists per
// (outlet, business date). It is never deleted; lifecycle transitions and
// totals recomputation are its only mutations.
type DailyRecord struct {
	ID           RecordID
	OutletID     OutletID
	BusinessDate Date
	Status       RecordStatus

	OpeningCash decimal.Decimal
	OpeningUPI  decimal.Decimal
	// OpeningConfirmed guards against starting a day on an unset baseline:
	// submit requires balances carried from the prior day's close or an
	// explicit confirmation (including confirmed zero).
	OpeningConfirmed bool

	ClosingCash  decimal.Decimal
	ClosingUPI   decimal.Decimal
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal

	LockedAt *time.Time
	LockedBy string

	CreatedAt time.Time
}

// RecordTotals is the aggregate recomputed from the day's transaction set.
type RecordTotals struct {
	ClosingCash  decimal.Decimal
	ClosingUPI   decimal.Decimal
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
}

// =============================================================================
// TRANSACTION - Atomic financial event (append-only)
// =============================================================================

type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

// Flip returns the opposite entry type. A reversal always carries the
// opposite type of its target with identical amount and category.
func (t EntryType) Flip() EntryType {
	if t == EntryIncome {
		return EntryExpense
	}
	return EntryIncome
}

func (t EntryType) Valid() bool {
	return t == EntryIncome || t == EntryExpense
}

type PaymentMode string

const (
	ModeCash         PaymentMode = "cash"
	ModeUPI          PaymentMode = "upi"
	ModeCard         PaymentMode = "card"
	ModeCredit       PaymentMode = "credit"
	ModeBankTransfer PaymentMode = "bank_transfer"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case ModeCash, ModeUPI, ModeCard, ModeCredit, ModeBankTransfer:
		return true
	}
	return false
}

// ModeAmount is one leg of a transaction's payment split. The legs of a
// transaction sum to its Amount.
type ModeAmount struct {
	Mode   PaymentMode
	Amount decimal.Decimal
}

// Transaction is immutable once created. The only way to alter its
// financial effect is a new transaction with ReversedOf pointing at it.
type Transaction struct {
	ID            TransactionID
	DailyRecordID RecordID
	OutletID      OutletID
	EntryNumber   string // outlet-prefixed display id, e.g. "HP-TVL-00042"

	Type     EntryType
	Category string
	Amount   decimal.Decimal
	Splits   []ModeAmount

	Description string
	CreatedBy   string
	CreatedAt   time.Time

	// BusinessDate is the operational day the event is attributed to; it
	// may differ from the calendar date of CreatedAt (see calendar.go).
	BusinessDate Date

	IsReversal bool
	ReversedOf TransactionID // empty unless IsReversal
}

// HasMode reports whether any split leg uses the given payment mode.
func (tx Transaction) HasMode(m PaymentMode) bool {
	for _, s := range tx.Splits {
		if s.Mode == m {
			return true
		}
	}
	return false
}

// ModeAmount returns the portion of the amount paid via the given mode.
func (tx Transaction) ModeAmount(m PaymentMode) decimal.Decimal {
	total := decimal.Zero
	for _, s := range tx.Splits {
		if s.Mode == m {
			total = total.Add(s.Amount)
		}
	}
	return total
}

// Modes returns the distinct payment modes of the transaction, in split order.
func (tx Transaction) Modes() []PaymentMode {
	var modes []PaymentMode
	for _, s := range tx.Splits {
		seen := false
		for _, m := range modes {
			if m == s.Mode {
				seen = true
				break
			}
		}
		if !seen {
			modes = append(modes, s.Mode)
		}
	}
	return modes
}

// Signed returns the amount with income positive and expense negative.
func (tx Transaction) Signed() decimal.Decimal {
	if tx.Type == EntryIncome {
		return tx.Amount
	}
	return tx.Amount.Neg()
}

// =============================================================================
// MONTHLY CLOSURE
// =============================================================================

type ClosureStatus string

const (
	ClosureOpen   ClosureStatus = "open"
	ClosureClosed ClosureStatus = "closed"
)

// MonthlyClosure freezes an aggregate snapshot over a month of daily
// records. Reopening clears ClosedAt/ClosedBy and records the reason.
type MonthlyClosure struct {
	ID       ClosureID
	OutletID OutletID
	Month    Month
	Status   ClosureStatus

	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	OpeningCash  decimal.Decimal
	ClosingCash  decimal.Decimal

	ClosedAt     *time.Time
	ClosedBy     string
	ReopenReason string

	UpdatedAt time.Time
}

// =============================================================================
// OUTLET COUNTER - Per-outlet monotonic sequences
// =============================================================================

type CounterKind string

const (
	CounterEntry    CounterKind = "entry"
	CounterCustomer CounterKind = "customer"
)

// OutletCounter holds the next values for an outlet's sequences. Every
// issued number is unique and strictly increasing for that outlet; the
// counter must never be behind the maximum sequence embedded in persisted
// entry numbers (see SequenceAllocator.ReconcileCounters).
type OutletCounter struct {
	OutletID        OutletID
	NextEntrySeq    int64
	NextCustomerSeq int64
}

// =============================================================================
// ANOMALY
// =============================================================================

type AnomalyType string

const (
	AnomalyPostLockEdit  AnomalyType = "post_lock_edit"
	AnomalyZeroCashDay   AnomalyType = "zero_cash_day"
	AnomalyHighCreditDay AnomalyType = "high_credit_day"
	// AnomalySuddenDrop is reserved for a statistical comparator; no
	// detector emits it yet, but downstream consumers branch on the full
	// enum so the type stays defined.
	AnomalySuddenDrop AnomalyType = "sudden_drop"
)

func (t AnomalyType) Valid() bool {
	switch t {
	case AnomalyPostLockEdit, AnomalyZeroCashDay, AnomalyHighCreditDay, AnomalySuddenDrop:
		return true
	}
	return false
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ParseSeverity accepts the canonical severities plus the
// critical/warning/info aliases used by the manual ingestion API.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "high", "critical":
		return SeverityHigh, true
	case "medium", "warning":
		return SeverityMedium, true
	case "low", "info":
		return SeverityLow, true
	}
	return "", false
}

// Anomaly is created by the scanner or manual ingestion, mutated only to
// set resolution fields, and never deleted.
type Anomaly struct {
	ID           AnomalyID
	Type         AnomalyType
	Severity     Severity
	OutletID     OutletID
	BusinessDate Date
	Description  string
	Metrics      map[string]any

	DetectedAt      time.Time
	ResolvedAt      *time.Time
	ResolutionNotes string
}

// AnomalyKey is the dedup key: re-detection of an already-open anomaly
// with the same key must not create a duplicate row.
type AnomalyKey struct {
	Type         AnomalyType
	OutletID     OutletID
	BusinessDate Date
}

func (a Anomaly) Key() AnomalyKey {
	return AnomalyKey{Type: a.Type, OutletID: a.OutletID, BusinessDate: a.BusinessDate}
}
