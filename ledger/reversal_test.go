package ledger_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sahakar/ledger-engine/ledger"
)

// =============================================================================
// REVERSAL FLOW
// =============================================================================

func TestReverse_LockedDayNetsOut(t *testing.T) {
	// GIVEN: a locked day whose income entry turns out to be wrong
	f := newFixture(t)
	ctx := context.Background()
	today, _ := f.cal.Today()

	if _, err := f.life.SetOpeningBalances(ctx, manager, "o1", today, rs("500"), rs("0")); err != nil {
		t.Fatalf("set opening: %v", err)
	}
	original := f.postIncome(t, "1000")
	if _, err := f.life.SubmitDay(ctx, manager, "o1", today); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.life.LockDay(ctx, accountant, "o1", today); err != nil {
		t.Fatalf("lock: %v", err)
	}
	syncsBefore := f.sync.calls

	// WHEN: a privileged user reverses it
	reversal, err := f.rev.Reverse(ctx, accountant, original.ID, "customer refund issued")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}

	// THEN: the reversal is the mirror image of the original
	if reversal.Type != ledger.EntryExpense {
		t.Errorf("expected flipped type expense, got %s", reversal.Type)
	}
	if !reversal.Amount.Equal(original.Amount) || reversal.Category != original.Category {
		t.Errorf("amount/category must match the original: %+v", reversal)
	}
	if reversal.ReversedOf != original.ID || !reversal.IsReversal {
		t.Errorf("back-pointer wrong: %+v", reversal)
	}
	if reversal.BusinessDate != original.BusinessDate {
		t.Errorf("reversal must post to the original's business day, got %s", reversal.BusinessDate)
	}
	if !strings.HasPrefix(reversal.Description, "REVERSAL: customer refund issued") {
		t.Errorf("description: %q", reversal.Description)
	}
	if reversal.EntryNumber == original.EntryNumber {
		t.Error("reversal must consume a fresh entry number")
	}

	// AND: the day's aggregates net back to the baseline
	rec, err := f.store.GetDailyRecordByDate(ctx, "o1", today)
	if err != nil || rec == nil {
		t.Fatalf("get record: %v", err)
	}
	if !rec.ClosingCash.Equal(rs("500")) {
		t.Errorf("closing cash should net to opening 500, got %s", rec.ClosingCash)
	}
	if !rec.TotalIncome.IsZero() || !rec.TotalExpense.IsZero() {
		t.Errorf("cancelled pair must not inflate totals: income=%s expense=%s", rec.TotalIncome, rec.TotalExpense)
	}

	// AND: a critical audit entry and a fresh sync were produced
	entries, err := f.store.QueryAudit(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditReversalPosted}})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Severity != ledger.AuditCritical {
		t.Fatalf("expected one critical reversal audit entry, got %+v", entries)
	}
	if entries[0].Details["closing_cash_before"] != "1500" || entries[0].Details["closing_cash_after"] != "500" {
		t.Errorf("before/after missing from audit details: %+v", entries[0].Details)
	}
	if f.sync.calls != syncsBefore+1 {
		t.Errorf("locked-day reversal should re-sync, calls=%d", f.sync.calls)
	}
}

func TestReverse_UnlockedDayIsInfoSeverity(t *testing.T) {
	// GIVEN: a submitted (not locked) day from the privileged perspective
	f := newFixture(t)
	ctx := context.Background()
	today, _ := f.cal.Today()
	if _, err := f.life.SetOpeningBalances(ctx, manager, "o1", today, rs("0"), rs("0")); err != nil {
		t.Fatalf("set opening: %v", err)
	}
	original := f.postIncome(t, "400")
	if _, err := f.life.SubmitDay(ctx, manager, "o1", today); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// WHEN: reversing
	if _, err := f.rev.Reverse(ctx, accountant, original.ID, "wrong category used"); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	// THEN: audited as info, and no mirror push for an unlocked day
	entries, _ := f.store.QueryAudit(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditReversalPosted}})
	if len(entries) != 1 || entries[0].Severity != ledger.AuditInfo {
		t.Errorf("expected one info reversal entry, got %+v", entries)
	}
	if f.sync.calls != 0 {
		t.Errorf("unlocked reversal should not sync, calls=%d", f.sync.calls)
	}
}

// =============================================================================
// REVERSAL GUARDS
// =============================================================================

func TestReverse_UnknownTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.rev.Reverse(context.Background(), accountant, "nope", "entered twice by mistake")
	if !ledger.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestReverse_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today, _ := f.cal.Today()
	if _, err := f.life.SetOpeningBalances(ctx, manager, "o1", today, rs("0"), rs("0")); err != nil {
		t.Fatalf("set opening: %v", err)
	}
	original := f.postIncome(t, "100")
	if _, err := f.life.SubmitDay(ctx, manager, "o1", today); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := f.rev.Reverse(ctx, accountant, original.ID, "entered twice"); err != nil {
		t.Fatalf("first reverse: %v", err)
	}
	_, err := f.rev.Reverse(ctx, accountant, original.ID, "entered twice")
	if ledger.Code(err) != "duplicate_reversal" {
		t.Errorf("expected duplicate_reversal, got %v", err)
	}
}

func TestReverse_ReversalCannotBeReversed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today, _ := f.cal.Today()
	if _, err := f.life.SetOpeningBalances(ctx, manager, "o1", today, rs("0"), rs("0")); err != nil {
		t.Fatalf("set opening: %v", err)
	}
	original := f.postIncome(t, "100")
	if _, err := f.life.SubmitDay(ctx, manager, "o1", today); err != nil {
		t.Fatalf("submit: %v", err)
	}
	reversal, err := f.rev.Reverse(ctx, accountant, original.ID, "entered twice")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}

	_, err = f.rev.Reverse(ctx, accountant, reversal.ID, "undo the undo")
	if ledger.Code(err) != "validation_error" {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReverse_StaffCannotReverseLockedDay(t *testing.T) {
	f := newFixture(t)
	f.prepareLockedDay(t)
	ctx := context.Background()
	today, _ := f.cal.Today()

	txs, _ := f.store.TransactionsByDate(ctx, "o1", today)
	if len(txs) == 0 {
		t.Fatal("fixture produced no transactions")
	}

	_, err := f.rev.Reverse(ctx, staff, txs[0].ID, "I made a mistake")
	if ledger.Code(err) != "forbidden" {
		t.Errorf("expected forbidden, got %v", err)
	}
	_, err = f.rev.Reverse(ctx, auditor, txs[0].ID, "spotted during review")
	if ledger.Code(err) != "forbidden" {
		t.Errorf("auditor: expected forbidden, got %v", err)
	}
}

func TestReverse_ReasonTooShort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today, _ := f.cal.Today()
	if _, err := f.life.SetOpeningBalances(ctx, manager, "o1", today, rs("0"), rs("0")); err != nil {
		t.Fatalf("set opening: %v", err)
	}
	original := f.postIncome(t, "100")
	if _, err := f.life.SubmitDay(ctx, manager, "o1", today); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := f.rev.Reverse(ctx, accountant, original.ID, " bad ")
	if ledger.Code(err) != "validation_error" {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReverse_BlackoutRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.postIncome(t, "100")

	// GIVEN: the clock has moved into the blackout
	f.clock.at = time.Date(2025, time.March, 11, 4, 0, 0, 0, ist(t))

	_, err := f.rev.Reverse(ctx, accountant, original.ID, "entered twice by mistake")
	if err != ledger.ErrOperatingHoursClosed {
		t.Errorf("expected ErrOperatingHoursClosed, got %v", err)
	}
}
