/*
spec_test.go - Specification Tests for the Ledger Integrity Engine

PURPOSE:
  These tests serve as EXECUTABLE SPECIFICATIONS of the system design.
  Each test documents a behavior from DESIGN.md and validates that the
  implementation conforms to it, exercising whole flows rather than
  single functions.

ORGANIZATION:
  Tests are grouped by specification area:
  1. Business-Day Attribution - The 07:00-02:00 IST trading day
  2. Closing Arithmetic - closing = opening + income - expense, per mode
  3. Immutability After Lock - No edits, corrections only via reversal
  4. Baseline Continuity - Locked closings carry into the next day
  5. Month Closure Discipline - All days locked before the month closes
  6. Numbering - Gap-free, outlet-scoped entry numbers

READING THESE TESTS:
  Each test has:
  - A descriptive name that states the behavior
  - GIVEN/WHEN/THEN comments explaining the scenario
  - Clear assertions with explanatory messages

These tests are intentionally verbose for documentation purposes.
*/
package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/sahakar/ledger-engine/ledger"
)

// =============================================================================
// 1. BUSINESS-DAY ATTRIBUTION
// =============================================================================

func TestSpec_EarlyMorningSalesBelongToThePreviousTradingDay(t *testing.T) {
	// GIVEN: a shop still open at 01:30 on the calendar date March 11
	f := newFixture(t)
	ctx := context.Background()
	f.clock.at = time.Date(2025, time.March, 11, 1, 30, 0, 0, ist(t))

	// WHEN: staff posts a sale
	tx := f.postIncome(t, "250")

	// THEN: the entry and its totals land on March 10's record
	march10 := date(2025, time.March, 10)
	if tx.BusinessDate != march10 {
		t.Fatalf("expected business date %s, got %s", march10, tx.BusinessDate)
	}
	rec, err := f.store.GetDailyRecordByDate(ctx, "o1", march10)
	if err != nil || rec == nil {
		t.Fatalf("get record: %v", err)
	}
	if !rec.TotalIncome.Equal(rs("250")) {
		t.Errorf("income must aggregate on the trading day, got %s", rec.TotalIncome)
	}
}

func TestSpec_BlackoutWindowRejectsAllWrites(t *testing.T) {
	// GIVEN: a posted entry, then the clock inside the 02:00-07:00 blackout
	f := newFixture(t)
	ctx := context.Background()
	original := f.postIncome(t, "100")
	f.clock.at = time.Date(2025, time.March, 11, 3, 15, 0, 0, ist(t))

	// WHEN/THEN: both entry posting and reversal posting are refused
	_, err := f.life.AppendEntry(ctx, staff, ledger.EntryInput{
		OutletID: "o1", Type: ledger.EntryIncome, Category: "sales",
		Amount: rs("10"), Splits: cashSplit("10"),
	})
	if err != ledger.ErrOperatingHoursClosed {
		t.Errorf("append during blackout: got %v", err)
	}
	_, err = f.rev.Reverse(ctx, accountant, original.ID, "entered twice by mistake")
	if err != ledger.ErrOperatingHoursClosed {
		t.Errorf("reverse during blackout: got %v", err)
	}
}

// =============================================================================
// 2. CLOSING ARITHMETIC
// =============================================================================

func TestSpec_ClosingBalancesFollowTheAccountingIdentity(t *testing.T) {
	// GIVEN: opening 500 cash / 200 UPI, a mixed-mode sale and a cash expense
	f := newFixture(t)
	ctx := context.Background()
	today, _ := f.cal.Today()
	if _, err := f.life.SetOpeningBalances(ctx, manager, "o1", today, rs("500"), rs("200")); err != nil {
		t.Fatalf("set opening: %v", err)
	}
	_, err := f.life.AppendEntry(ctx, staff, ledger.EntryInput{
		OutletID: "o1", Type: ledger.EntryIncome, Category: "sales", Amount: rs("1000"),
		Splits: []ledger.ModeAmount{
			{Mode: ledger.ModeCash, Amount: rs("600")},
			{Mode: ledger.ModeUPI, Amount: rs("400")},
		},
	})
	if err != nil {
		t.Fatalf("post sale: %v", err)
	}
	_, err = f.life.AppendEntry(ctx, staff, ledger.EntryInput{
		OutletID: "o1", Type: ledger.EntryExpense, Category: "supplies", Amount: rs("300"),
		Splits: cashSplit("300"),
	})
	if err != nil {
		t.Fatalf("post expense: %v", err)
	}
	if _, err := f.life.SubmitDay(ctx, manager, "o1", today); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// WHEN: the day is locked
	rec, err := f.life.LockDay(ctx, accountant, "o1", today)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// THEN: closing = opening + income - expense, tracked per payment mode
	if !rec.ClosingCash.Equal(rs("800")) {
		t.Errorf("cash: 500 + 600 - 300 = 800, got %s", rec.ClosingCash)
	}
	if !rec.ClosingUPI.Equal(rs("600")) {
		t.Errorf("upi: 200 + 400 = 600, got %s", rec.ClosingUPI)
	}
	if !rec.TotalIncome.Equal(rs("1000")) || !rec.TotalExpense.Equal(rs("300")) {
		t.Errorf("totals: income=%s expense=%s", rec.TotalIncome, rec.TotalExpense)
	}
}

// =============================================================================
// 3. IMMUTABILITY AFTER LOCK
// =============================================================================

func TestSpec_LockedDaysAcceptNoDirectEditsFromAnyRole(t *testing.T) {
	// GIVEN: a locked day
	f := newFixture(t)
	ctx := context.Background()
	f.prepareLockedDay(t)

	// WHEN/THEN: no role, however privileged, may append to it
	for _, actor := range []ledger.Actor{staff, manager, accountant, auditor} {
		_, err := f.life.AppendEntry(ctx, actor, ledger.EntryInput{
			OutletID: "o1", Type: ledger.EntryIncome, Category: "sales",
			Amount: rs("10"), Splits: cashSplit("10"),
		})
		if ledger.Code(err) != "forbidden" {
			t.Errorf("%s: expected forbidden on a locked day, got %v", actor.Role, err)
		}
	}
}

func TestSpec_CorrectionsToLockedDaysLeaveAVisibleTrail(t *testing.T) {
	// GIVEN: a locked day with a wrong entry
	f := newFixture(t)
	ctx := context.Background()
	f.prepareLockedDay(t)
	today, _ := f.cal.Today()
	txs, _ := f.store.TransactionsByDate(ctx, "o1", today)

	// WHEN: the accountant corrects it by reversal
	if _, err := f.rev.Reverse(ctx, accountant, txs[0].ID, "amount keyed wrong"); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	// THEN: both legs survive in the ledger and the correction is audited
	after, _ := f.store.TransactionsByDate(ctx, "o1", today)
	if len(after) != len(txs)+1 {
		t.Errorf("reversal must add a row, never remove one: %d -> %d", len(txs), len(after))
	}
	entries, _ := f.store.QueryAudit(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditReversalPosted}})
	if len(entries) != 1 || entries[0].Severity != ledger.AuditCritical {
		t.Errorf("locked-day correction must be audited critical: %+v", entries)
	}
}

// =============================================================================
// 4. BASELINE CONTINUITY
// =============================================================================

func TestSpec_LockedClosingBecomesNextDaysConfirmedOpening(t *testing.T) {
	// GIVEN: March 10 locked with closing 1500 cash / 200 UPI
	f := newFixture(t)
	ctx := context.Background()
	locked := f.prepareLockedDay(t)

	// WHEN: the next trading day opens
	f.clock.at = f.clock.at.Add(24 * time.Hour)
	today, _ := f.cal.Today()
	rec, err := f.life.EnsureDailyRecord(ctx, "o1", today)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// THEN: yesterday's closing is today's opening, already confirmed
	if !rec.OpeningCash.Equal(locked.ClosingCash) || !rec.OpeningUPI.Equal(locked.ClosingUPI) {
		t.Errorf("opening %s/%s must carry from closing %s/%s",
			rec.OpeningCash, rec.OpeningUPI, locked.ClosingCash, locked.ClosingUPI)
	}
	if !rec.OpeningConfirmed {
		t.Error("a baseline carried from a locked day needs no re-confirmation")
	}
}

// =============================================================================
// 5. MONTH CLOSURE DISCIPLINE
// =============================================================================

func TestSpec_AMonthClosesOnlyWhenEveryDayIsLocked(t *testing.T) {
	// GIVEN: one locked day and one still-draft day in March
	f := newFixture(t)
	ctx := context.Background()
	f.prepareLockedDay(t)
	f.clock.at = f.clock.at.Add(24 * time.Hour)
	f.postIncome(t, "50")

	month := ledger.Month{Year: 2025, Month: time.March}

	// WHEN: closing with a straggler
	_, err := f.life.CloseMonth(ctx, accountant, "o1", month)

	// THEN: refused until the straggler is locked
	if !ledger.IsConflict(err) {
		t.Fatalf("expected conflict while a day is unlocked, got %v", err)
	}

	today, _ := f.cal.Today()
	if _, err := f.life.SubmitDay(ctx, manager, "o1", today); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.life.LockDay(ctx, accountant, "o1", today); err != nil {
		t.Fatalf("lock: %v", err)
	}
	closure, err := f.life.CloseMonth(ctx, accountant, "o1", month)
	if err != nil {
		t.Fatalf("close after locking everything: %v", err)
	}
	if closure.Status != ledger.ClosureClosed {
		t.Errorf("closure status: %s", closure.Status)
	}
	if !closure.TotalIncome.Equal(rs("1050")) {
		t.Errorf("snapshot income: expected 1050, got %s", closure.TotalIncome)
	}
}

// =============================================================================
// 6. NUMBERING
// =============================================================================

func TestSpec_EntryNumbersAreGapFreeAcrossDays(t *testing.T) {
	// GIVEN: entries posted across a day boundary
	f := newFixture(t)
	first := f.postIncome(t, "10")
	f.clock.at = f.clock.at.Add(24 * time.Hour)
	second := f.postIncome(t, "20")
	third := f.postIncome(t, "30")

	// THEN: the outlet-scoped sequence never restarts or skips
	want := []string{"HP-TVL-00001", "HP-TVL-00002", "HP-TVL-00003"}
	got := []string{first.EntryNumber, second.EntryNumber, third.EntryNumber}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i+1, want[i], got[i])
		}
	}
}
