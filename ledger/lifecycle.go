/*
lifecycle.go - Daily record and monthly closure state machines

PURPOSE:
  Implements the entry write path and the two lifecycle ladders:

    DailyRecord:     draft -> submitted -> locked   (unlock steps back one)
    MonthlyClosure:  open  -> closed               (reopen steps back)

  All transitions are compare-and-swap at the store, so two privileged
  users racing the same transition produce exactly one audit entry and one
  state change; the loser sees ErrConflict.

TOTALS:
  closing_cash = opening_cash + sum(cash legs of income) - sum(cash legs of expense)
  (same shape for UPI). Totals are recomputed from the full transaction set
  on every write and at lock time, never incremented in place. A reversed
  original and its reversal cancel and are excluded from total_income and
  total_expense so the day's activity figures reflect real activity.

SYNC:
  Locking a day notifies the external mirror after the transition has
  committed. A sync failure is logged and surfaced nowhere else; it never
  unwinds the lock.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Lifecycle owns the entry write path and both state machines.
type Lifecycle struct {
	Store    Store
	Calendar *Calendar
	Sync     SyncNotifier
	Log      *logrus.Logger
}

func NewLifecycle(store Store, cal *Calendar, sync SyncNotifier, log *logrus.Logger) *Lifecycle {
	if sync == nil {
		sync = NopSyncNotifier{}
	}
	return &Lifecycle{Store: store, Calendar: cal, Sync: sync, Log: log}
}

// =============================================================================
// ENTRY WRITE PATH
// =============================================================================

// EntryInput is a request to post a new transaction to today's ledger.
type EntryInput struct {
	OutletID    OutletID
	Type        EntryType
	Category    string
	Amount      decimal.Decimal
	Splits      []ModeAmount
	Description string
}

// AppendEntry posts a new transaction to the current business day. The
// operating-hours gate runs first: during the 02:00-07:00 blackout no
// business day is open and nothing can be posted.
func (l *Lifecycle) AppendEntry(ctx context.Context, actor Actor, in EntryInput) (*Transaction, error) {
	today, err := l.Calendar.Today()
	if err != nil {
		return nil, err
	}

	if err := validateEntryInput(in); err != nil {
		return nil, err
	}
	if actor.Role == RoleAuditor {
		return nil, &PermissionError{Role: actor.Role, BusinessDate: today, Reason: "auditor: view only access"}
	}

	outlet, err := l.requireOutlet(ctx, in.OutletID)
	if err != nil {
		return nil, err
	}

	rec, err := l.EnsureDailyRecord(ctx, in.OutletID, today)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusLocked {
		return nil, &PermissionError{
			Role:         actor.Role,
			BusinessDate: today,
			DayLocked:    true,
			Reason:       "day is locked; corrections post as reversals",
		}
	}

	entryNumber, err := NewSequenceAllocator(l.Store, l.Log).NextEntryNumber(ctx, *outlet)
	if err != nil {
		return nil, err
	}

	tx := Transaction{
		ID:            TransactionID(uuid.NewString()),
		DailyRecordID: rec.ID,
		OutletID:      in.OutletID,
		EntryNumber:   entryNumber,
		Type:          in.Type,
		Category:      in.Category,
		Amount:        in.Amount,
		Splits:        in.Splits,
		Description:   in.Description,
		CreatedBy:     actor.ID,
		CreatedAt:     l.Calendar.Clock.Now(),
		BusinessDate:  today,
	}
	if err := l.Store.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}

	if err := l.RecomputeTotals(ctx, rec); err != nil {
		return nil, err
	}
	return &tx, nil
}

func validateEntryInput(in EntryInput) error {
	if !in.Type.Valid() {
		return &ValidationError{Field: "type", Message: "must be income or expense"}
	}
	if strings.TrimSpace(in.Category) == "" {
		return &ValidationError{Field: "category", Message: "required"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if len(in.Splits) == 0 {
		return &ValidationError{Field: "splits", Message: "at least one payment mode required"}
	}
	sum := decimal.Zero
	for i, s := range in.Splits {
		if !s.Mode.Valid() {
			return &ValidationError{Field: fmt.Sprintf("splits[%d].mode", i), Message: "unknown payment mode"}
		}
		if !s.Amount.IsPositive() {
			return &ValidationError{Field: fmt.Sprintf("splits[%d].amount", i), Message: "must be positive"}
		}
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(in.Amount) {
		return &ValidationError{Field: "splits", Message: "payment splits must sum to the amount"}
	}
	return nil
}

// =============================================================================
// DAILY RECORD CREATION AND BASELINES
// =============================================================================

// EnsureDailyRecord returns the record for (outlet, date), creating it as a
// draft if absent. On creation, opening balances carry forward from the
// previous day's closing balances; a day with no predecessor starts at an
// unconfirmed zero baseline that must be explicitly confirmed before submit.
func (l *Lifecycle) EnsureDailyRecord(ctx context.Context, outletID OutletID, date Date) (*DailyRecord, error) {
	rec, err := l.Store.GetDailyRecordByDate(ctx, outletID, date)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	openingCash, openingUPI := decimal.Zero, decimal.Zero
	confirmed := false
	if prev, err := l.Store.GetDailyRecordByDate(ctx, outletID, date.AddDays(-1)); err != nil {
		return nil, err
	} else if prev != nil && prev.Status == StatusLocked {
		openingCash, openingUPI = prev.ClosingCash, prev.ClosingUPI
		confirmed = true
	}

	rec = &DailyRecord{
		ID:               RecordID(uuid.NewString()),
		OutletID:         outletID,
		BusinessDate:     date,
		Status:           StatusDraft,
		OpeningCash:      openingCash,
		OpeningUPI:       openingUPI,
		OpeningConfirmed: confirmed,
		ClosingCash:      openingCash,
		ClosingUPI:       openingUPI,
		CreatedAt:        l.Calendar.Clock.Now(),
	}
	if err := l.Store.CreateDailyRecord(ctx, *rec); err != nil {
		// A concurrent creator won the unique index; read theirs back.
		if IsConflict(err) {
			return l.requireRecord(ctx, outletID, date)
		}
		return nil, err
	}
	return rec, nil
}

// SetOpeningBalances sets and confirms the day's baseline. Only a draft
// record accepts a new baseline; once submitted the opening figures are
// part of the posted day.
func (l *Lifecycle) SetOpeningBalances(ctx context.Context, actor Actor, outletID OutletID, date Date, cash, upi decimal.Decimal) (*DailyRecord, error) {
	if cash.IsNegative() || upi.IsNegative() {
		return nil, &ValidationError{Field: "opening_balances", Message: "must not be negative"}
	}
	if actor.Role == RoleAuditor {
		return nil, &PermissionError{Role: actor.Role, BusinessDate: date, Reason: "auditor: view only access"}
	}

	rec, err := l.EnsureDailyRecord(ctx, outletID, date)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusDraft {
		return nil, &ConflictError{Entity: "daily_record", Message: fmt.Sprintf("opening balances are fixed once %s", rec.Status)}
	}

	if err := l.Store.UpdateOpeningBalances(ctx, rec.ID, cash, upi, true); err != nil {
		return nil, err
	}
	rec.OpeningCash, rec.OpeningUPI, rec.OpeningConfirmed = cash, upi, true

	if err := l.RecomputeTotals(ctx, rec); err != nil {
		return nil, err
	}

	audit := l.newAudit(actor, AuditOpeningSet, outletID, "daily_record", string(rec.ID), AuditInfo, "")
	audit.Details = map[string]any{"opening_cash": cash.String(), "opening_upi": upi.String(), "business_date": date.String()}
	if err := l.Store.AppendAudit(ctx, audit); err != nil {
		return nil, err
	}
	return l.Store.GetDailyRecord(ctx, rec.ID)
}

// =============================================================================
// DAILY RECORD TRANSITIONS
// =============================================================================

// SubmitDay moves draft -> submitted. Outlet staff and managers close out
// their own day; the baseline must have been confirmed first.
func (l *Lifecycle) SubmitDay(ctx context.Context, actor Actor, outletID OutletID, date Date) (*DailyRecord, error) {
	if !actor.Role.OutletRole() && !actor.Role.Privileged() {
		return nil, &PermissionError{Role: actor.Role, BusinessDate: date, Reason: "role cannot submit a day"}
	}

	rec, err := l.requireRecord(ctx, outletID, date)
	if err != nil {
		return nil, err
	}
	if !rec.OpeningConfirmed {
		return nil, &ValidationError{Field: "opening_balances", Message: "confirm opening balances before submitting"}
	}

	audit := l.newAudit(actor, AuditDaySubmitted, outletID, "daily_record", string(rec.ID), AuditInfo, "")
	audit.Details = map[string]any{"business_date": date.String()}
	return l.Store.TransitionRecord(ctx, rec.ID, StatusDraft, StatusSubmitted, RecordMutation{}, audit)
}

// LockDay moves submitted -> locked. Privileged only. Totals are recomputed
// from the full transaction set inside the same transition, so the frozen
// figures are exactly what the ledger contains at lock time.
func (l *Lifecycle) LockDay(ctx context.Context, actor Actor, outletID OutletID, date Date) (*DailyRecord, error) {
	if !actor.Role.Privileged() {
		return nil, &PermissionError{Role: actor.Role, BusinessDate: date, Reason: "only head-office roles lock days"}
	}

	rec, err := l.requireRecord(ctx, outletID, date)
	if err != nil {
		return nil, err
	}

	txs, err := l.Store.TransactionsByDate(ctx, outletID, date)
	if err != nil {
		return nil, err
	}
	totals := computeTotals(rec.OpeningCash, rec.OpeningUPI, txs)

	now := l.Calendar.Clock.Now()
	audit := l.newAudit(actor, AuditDayLocked, outletID, "daily_record", string(rec.ID), AuditInfo, "")
	audit.Details = map[string]any{
		"business_date": date.String(),
		"closing_cash":  totals.ClosingCash.String(),
		"closing_upi":   totals.ClosingUPI.String(),
	}

	locked, err := l.Store.TransitionRecord(ctx, rec.ID, StatusSubmitted, StatusLocked, RecordMutation{
		Totals:   &totals,
		LockedAt: &now,
		LockedBy: actor.ID,
	}, audit)
	if err != nil {
		return nil, err
	}

	l.notifySync(ctx, *locked, txs)
	return locked, nil
}

// UnlockDay moves locked -> submitted. Privileged only, reason required.
// The lock fields clear but the audit trail keeps who locked and unlocked.
func (l *Lifecycle) UnlockDay(ctx context.Context, actor Actor, outletID OutletID, date Date, reason string) (*DailyRecord, error) {
	if !actor.Role.Privileged() {
		return nil, &PermissionError{Role: actor.Role, BusinessDate: date, DayLocked: true, Reason: "only head-office roles unlock days"}
	}
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "required to unlock a day"}
	}

	rec, err := l.requireRecord(ctx, outletID, date)
	if err != nil {
		return nil, err
	}

	audit := l.newAudit(actor, AuditDayUnlocked, outletID, "daily_record", string(rec.ID), AuditCritical, reason)
	audit.Details = map[string]any{"business_date": date.String(), "previously_locked_by": rec.LockedBy}
	return l.Store.TransitionRecord(ctx, rec.ID, StatusLocked, StatusSubmitted, RecordMutation{ClearLock: true}, audit)
}

// =============================================================================
// MONTHLY CLOSURE
// =============================================================================

// CloseMonth freezes the month's aggregate snapshot. Every daily record in
// the month must already be locked; the snapshot is derived from the locked
// records, not recomputed from raw transactions. A month with no records
// closes with a zero snapshot.
func (l *Lifecycle) CloseMonth(ctx context.Context, actor Actor, outletID OutletID, month Month) (*MonthlyClosure, error) {
	if !actor.Role.Privileged() {
		return nil, &PermissionError{Role: actor.Role, Reason: "only head-office roles close months"}
	}

	existing, err := l.Store.GetClosure(ctx, outletID, month)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == ClosureClosed {
		return nil, &ConflictError{Entity: "monthly_closure", Message: fmt.Sprintf("%s is already closed", month)}
	}

	records, err := l.Store.RecordsInRange(ctx, outletID, month.First(), month.Last())
	if err != nil {
		return nil, err
	}

	var unlocked int
	totalIncome, totalExpense := decimal.Zero, decimal.Zero
	for _, r := range records {
		if r.Status != StatusLocked {
			unlocked++
			continue
		}
		totalIncome = totalIncome.Add(r.TotalIncome)
		totalExpense = totalExpense.Add(r.TotalExpense)
	}
	if unlocked > 0 {
		return nil, &ConflictError{
			Entity:  "monthly_closure",
			Message: fmt.Sprintf("%d day(s) in %s are not locked yet", unlocked, month),
		}
	}

	now := l.Calendar.Clock.Now()
	closure := MonthlyClosure{
		ID:           ClosureID(uuid.NewString()),
		OutletID:     outletID,
		Month:        month,
		Status:       ClosureClosed,
		TotalIncome:  totalIncome,
		TotalExpense: totalExpense,
		ClosedAt:     &now,
		ClosedBy:     actor.ID,
		UpdatedAt:    now,
	}
	if len(records) > 0 {
		closure.OpeningCash = records[0].OpeningCash
		closure.ClosingCash = records[len(records)-1].ClosingCash
	}
	if existing != nil {
		closure.ID = existing.ID
		closure.ReopenReason = existing.ReopenReason
	}

	audit := l.newAudit(actor, AuditMonthClosed, outletID, "monthly_closure", string(closure.ID), AuditInfo, "")
	audit.Details = map[string]any{
		"month":         month.String(),
		"total_income":  totalIncome.String(),
		"total_expense": totalExpense.String(),
	}
	return l.Store.TransitionClosure(ctx, closure, ClosureOpen, audit)
}

// ReopenMonth steps a closed month back to open. Privileged only, with a
// substantive reason. The snapshot figures stay until the next close
// rewrites them.
func (l *Lifecycle) ReopenMonth(ctx context.Context, actor Actor, outletID OutletID, month Month, reason string) (*MonthlyClosure, error) {
	if !actor.Role.Privileged() {
		return nil, &PermissionError{Role: actor.Role, Reason: "only head-office roles reopen months"}
	}
	if len(strings.TrimSpace(reason)) < 10 {
		return nil, &ValidationError{Field: "reason", Message: "at least 10 characters required to reopen a month"}
	}

	existing, err := l.Store.GetClosure(ctx, outletID, month)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("closure for %s %s: %w", outletID, month, ErrNotFound)
	}
	if existing.Status != ClosureClosed {
		return nil, &ConflictError{Entity: "monthly_closure", Message: fmt.Sprintf("%s is not closed", month)}
	}

	reopened := *existing
	reopened.Status = ClosureOpen
	reopened.ClosedAt = nil
	reopened.ClosedBy = ""
	reopened.ReopenReason = strings.TrimSpace(reason)
	reopened.UpdatedAt = l.Calendar.Clock.Now()

	audit := l.newAudit(actor, AuditMonthReopened, outletID, "monthly_closure", string(existing.ID), AuditCritical, reason)
	audit.Details = map[string]any{"month": month.String(), "previously_closed_by": existing.ClosedBy}
	return l.Store.TransitionClosure(ctx, reopened, ClosureClosed, audit)
}

// =============================================================================
// TOTALS
// =============================================================================

// RecomputeTotals rederives the record's aggregates from its full
// transaction set and persists them.
func (l *Lifecycle) RecomputeTotals(ctx context.Context, rec *DailyRecord) error {
	txs, err := l.Store.TransactionsByDate(ctx, rec.OutletID, rec.BusinessDate)
	if err != nil {
		return err
	}
	totals := computeTotals(rec.OpeningCash, rec.OpeningUPI, txs)
	return l.Store.UpdateRecordTotals(ctx, rec.ID, totals)
}

// computeTotals folds a day's transactions over the opening baseline. A
// reversed original and its reversal cancel exactly, so the pair is
// excluded from the activity totals; including them would inflate both
// total_income and total_expense while leaving the closing balances
// unchanged.
func computeTotals(openingCash, openingUPI decimal.Decimal, txs []Transaction) RecordTotals {
	reversed := make(map[TransactionID]bool)
	for _, tx := range txs {
		if tx.IsReversal && tx.ReversedOf != "" {
			reversed[tx.ReversedOf] = true
		}
	}

	t := RecordTotals{
		ClosingCash:  openingCash,
		ClosingUPI:   openingUPI,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	for _, tx := range txs {
		if reversed[tx.ID] || (tx.IsReversal && reversed[tx.ReversedOf]) {
			continue
		}
		switch tx.Type {
		case EntryIncome:
			t.TotalIncome = t.TotalIncome.Add(tx.Amount)
			t.ClosingCash = t.ClosingCash.Add(tx.ModeAmount(ModeCash))
			t.ClosingUPI = t.ClosingUPI.Add(tx.ModeAmount(ModeUPI))
		case EntryExpense:
			t.TotalExpense = t.TotalExpense.Add(tx.Amount)
			t.ClosingCash = t.ClosingCash.Sub(tx.ModeAmount(ModeCash))
			t.ClosingUPI = t.ClosingUPI.Sub(tx.ModeAmount(ModeUPI))
		}
	}
	return t
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Lifecycle) requireOutlet(ctx context.Context, id OutletID) (*Outlet, error) {
	outlet, err := l.Store.GetOutlet(ctx, id)
	if err != nil {
		return nil, err
	}
	if outlet == nil {
		return nil, fmt.Errorf("outlet %s: %w", id, ErrNotFound)
	}
	return outlet, nil
}

func (l *Lifecycle) requireRecord(ctx context.Context, outletID OutletID, date Date) (*DailyRecord, error) {
	rec, err := l.Store.GetDailyRecordByDate(ctx, outletID, date)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("daily record for %s on %s: %w", outletID, date, ErrNotFound)
	}
	return rec, nil
}

func (l *Lifecycle) newAudit(actor Actor, action AuditAction, outletID OutletID, entityType, entityID string, sev AuditSeverity, reason string) AuditEntry {
	return AuditEntry{
		ID:         uuid.NewString(),
		At:         l.Calendar.Clock.Now(),
		ActorID:    actor.ID,
		Action:     action,
		OutletID:   outletID,
		EntityType: entityType,
		EntityID:   entityID,
		Severity:   sev,
		Reason:     reason,
	}
}

// notifySync pushes the locked day to the external mirror. Failures are
// logged with full context and never surfaced to the caller.
func (l *Lifecycle) notifySync(ctx context.Context, rec DailyRecord, txs []Transaction) {
	if err := l.Sync.SyncDailyRecord(ctx, rec, txs); err != nil && l.Log != nil {
		l.Log.WithFields(logrus.Fields{
			"outlet_id":     rec.OutletID,
			"business_date": rec.BusinessDate.String(),
			"record_id":     rec.ID,
		}).WithError(err).Error("external sync failed after lock; ledger state is committed")
	}
}
