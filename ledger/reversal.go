/*
reversal.go - Append-only correction

PURPOSE:
  The only way to alter a posted transaction's financial effect. A reversal
  is itself an ordinary transaction: opposite type, identical amount,
  category and payment splits, a ReversedOf pointer back to the target, and
  a fresh entry number from the outlet's sequence.

RULES:
  - One reversal per original, enforced twice: a pre-check here and a
    unique index on reversed_of at the store. The index wins races.
  - A reversal cannot itself be reversed. Correcting an erroneous reversal
    means posting the original entry again as a new transaction.
  - The reversal posts to the ORIGINAL's business date, so the day's
    aggregates net out where the error lives, not where today happens
    to be.
  - Reversing into a locked day is permitted for privileged roles only and
    is audited as critical with before/after totals.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReversalPoster posts correcting transactions.
type ReversalPoster struct {
	Store    Store
	Calendar *Calendar
	Sync     SyncNotifier
	Log      *logrus.Logger
}

func NewReversalPoster(store Store, cal *Calendar, sync SyncNotifier, log *logrus.Logger) *ReversalPoster {
	if sync == nil {
		sync = NopSyncNotifier{}
	}
	return &ReversalPoster{Store: store, Calendar: cal, Sync: sync, Log: log}
}

// Reverse posts the correcting transaction for the given original.
func (p *ReversalPoster) Reverse(ctx context.Context, actor Actor, originalID TransactionID, reason string) (*Transaction, error) {
	now := p.Calendar.Clock.Now()
	today, err := p.Calendar.BusinessDate(now)
	if err != nil {
		return nil, err
	}

	original, err := p.Store.GetTransaction(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, fmt.Errorf("transaction %s: %w", originalID, ErrNotFound)
	}
	if original.IsReversal {
		return nil, &ValidationError{Field: "transaction_id", Message: "a reversal cannot be reversed; post the entry again instead"}
	}

	already, err := p.Store.HasReversal(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, fmt.Errorf("transaction %s: %w", originalID, ErrDuplicateReversal)
	}

	rec, err := p.Store.GetDailyRecordByDate(ctx, original.OutletID, original.BusinessDate)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("daily record for %s on %s: %w", original.OutletID, original.BusinessDate, ErrNotFound)
	}

	locked := rec.Status == StatusLocked
	decision := Decide(original.BusinessDate, actor.Role, locked, rec.Status, today)
	if !decision.Allowed || decision.Action != ActionReverse {
		return nil, &PermissionError{
			Role:         actor.Role,
			BusinessDate: original.BusinessDate,
			DayLocked:    locked,
			Reason:       decision.Reason,
		}
	}

	reason = strings.TrimSpace(reason)
	if len(reason) < 5 {
		return nil, &ValidationError{Field: "reason", Message: "at least 5 characters required"}
	}

	outlet, err := p.Store.GetOutlet(ctx, original.OutletID)
	if err != nil {
		return nil, err
	}
	if outlet == nil {
		return nil, fmt.Errorf("outlet %s: %w", original.OutletID, ErrNotFound)
	}
	entryNumber, err := NewSequenceAllocator(p.Store, p.Log).NextEntryNumber(ctx, *outlet)
	if err != nil {
		return nil, err
	}

	splits := make([]ModeAmount, len(original.Splits))
	copy(splits, original.Splits)

	reversal := Transaction{
		ID:            TransactionID(uuid.NewString()),
		DailyRecordID: rec.ID,
		OutletID:      original.OutletID,
		EntryNumber:   entryNumber,
		Type:          original.Type.Flip(),
		Category:      original.Category,
		Amount:        original.Amount,
		Splits:        splits,
		Description:   fmt.Sprintf("REVERSAL: %s (ref %s)", reason, shortRef(originalID)),
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		BusinessDate:  original.BusinessDate,
		IsReversal:    true,
		ReversedOf:    originalID,
	}

	before := RecordTotals{
		ClosingCash:  rec.ClosingCash,
		ClosingUPI:   rec.ClosingUPI,
		TotalIncome:  rec.TotalIncome,
		TotalExpense: rec.TotalExpense,
	}

	// The store's unique index on reversed_of settles concurrent attempts;
	// exactly one insert wins.
	if err := p.Store.AppendTransaction(ctx, reversal); err != nil {
		return nil, err
	}

	txs, err := p.Store.TransactionsByDate(ctx, original.OutletID, original.BusinessDate)
	if err != nil {
		return nil, err
	}
	totals := computeTotals(rec.OpeningCash, rec.OpeningUPI, txs)
	if err := p.Store.UpdateRecordTotals(ctx, rec.ID, totals); err != nil {
		return nil, err
	}

	severity := AuditInfo
	if locked {
		severity = AuditCritical
	}
	audit := AuditEntry{
		ID:         uuid.NewString(),
		At:         now,
		ActorID:    actor.ID,
		Action:     AuditReversalPosted,
		OutletID:   original.OutletID,
		EntityType: "transaction",
		EntityID:   string(reversal.ID),
		Severity:   severity,
		Reason:     reason,
		Details: map[string]any{
			"reversed_of":          string(originalID),
			"business_date":        original.BusinessDate.String(),
			"amount":               original.Amount.String(),
			"day_locked":           locked,
			"closing_cash_before":  before.ClosingCash.String(),
			"closing_cash_after":   totals.ClosingCash.String(),
			"total_income_before":  before.TotalIncome.String(),
			"total_income_after":   totals.TotalIncome.String(),
			"total_expense_before": before.TotalExpense.String(),
			"total_expense_after":  totals.TotalExpense.String(),
		},
	}
	if err := p.Store.AppendAudit(ctx, audit); err != nil {
		return nil, err
	}

	if locked {
		p.notifySync(ctx, rec.ID, txs)
	}
	return &reversal, nil
}

func shortRef(id TransactionID) string {
	s := string(id)
	if len(s) > 6 {
		return s[:6]
	}
	return s
}

func (p *ReversalPoster) notifySync(ctx context.Context, recID RecordID, txs []Transaction) {
	rec, err := p.Store.GetDailyRecord(ctx, recID)
	if err != nil || rec == nil {
		return
	}
	if err := p.Sync.SyncDailyRecord(ctx, *rec, txs); err != nil && p.Log != nil {
		p.Log.WithFields(logrus.Fields{
			"outlet_id":     rec.OutletID,
			"business_date": rec.BusinessDate.String(),
		}).WithError(err).Error("external sync failed after reversal; ledger state is committed")
	}
}
