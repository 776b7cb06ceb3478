/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates outlets, daily
	records, and transactions that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-outlet:     Two registered outlets, empty ledgers
	busy-day:         Confirmed baseline plus a day of mixed-mode entries
	month-to-close:   A locked week with carried baselines, today submitted
	suspicious-week:  Days that trip every anomaly detector

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register outlets
 3. Seed past days through the day lifecycle (confirm, post, lock)
 4. Leave today in the state the scenario demonstrates

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "month-to-close"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - server.go: Scenario route definitions
  - scheduler.go: The scan scheduler picks up seeded anomalies
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sahakar/ledger-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-outlet",
		Name:        "Fresh Outlets",
		Description: "Two registered outlets with empty ledgers",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Confirmed opening float plus a day of mixed-mode sales and expenses",
	},
	{
		ID:          "month-to-close",
		Name:        "Month To Close",
		Description: "Five locked days with carried baselines; today submitted and ready to lock",
	},
	{
		ID:          "suspicious-week",
		Name:        "Suspicious Week",
		Description: "A post-lock edit, a zero-cash day, and a high-credit day for the detectors",
	},
}

// resetter is implemented by stores that can wipe themselves for demos.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario wipes the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	res, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support scenario loading", nil)
		return
	}
	if err := res.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-outlet":
		err = h.loadFreshOutletScenario(ctx)
	case "busy-day":
		err = h.loadBusyDayScenario(ctx)
	case "month-to-close":
		err = h.loadMonthToCloseScenario(ctx)
	case "suspicious-week":
		err = h.loadSuspiciousWeekScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshOutletScenario(ctx context.Context) error {
	if _, err := h.seedOutlet(ctx, "demo-tvl", "Trivandrum", "HP-TVL"); err != nil {
		return err
	}
	_, err := h.seedOutlet(ctx, "demo-ekm", "Ernakulam", "HP-EKM")
	return err
}

func (h *Handler) loadBusyDayScenario(ctx context.Context) error {
	outlet, err := h.seedOutlet(ctx, "demo-tvl", "Trivandrum", "HP-TVL")
	if err != nil {
		return err
	}
	today := h.Calendar.DayOf(h.Calendar.Clock.Now())

	_, err = h.seedDay(ctx, *outlet, today, seedOpening{cash: "2000", upi: "500"}, []seedEntry{
		income("sales", "1500", split("cash", "900"), split("upi", "600")),
		income("sales", "750", split("card", "750")),
		income("service", "300", split("cash", "300")),
		expense("supplies", "450", split("cash", "450")),
		expense("utilities", "220", split("upi", "220")),
	}, ledger.StatusDraft)
	return err
}

func (h *Handler) loadMonthToCloseScenario(ctx context.Context) error {
	outlet, err := h.seedOutlet(ctx, "demo-tvl", "Trivandrum", "HP-TVL")
	if err != nil {
		return err
	}
	today := h.Calendar.DayOf(h.Calendar.Clock.Now())

	// Five locked days. The first confirms an opening float; the rest
	// inherit their baseline from the previous day's lock.
	for i := 5; i >= 1; i-- {
		day := today.AddDays(-i)
		opening := seedOpening{}
		if i == 5 {
			opening = seedOpening{cash: "1000", upi: "0"}
		}
		_, err := h.seedDay(ctx, *outlet, day, opening, []seedEntry{
			income("sales", "1200", split("cash", "800"), split("upi", "400")),
			expense("supplies", "350", split("cash", "350")),
		}, ledger.StatusLocked)
		if err != nil {
			return err
		}
	}

	// Today is submitted and waiting for the accountant.
	_, err = h.seedDay(ctx, *outlet, today, seedOpening{}, []seedEntry{
		income("sales", "900", split("cash", "900")),
	}, ledger.StatusSubmitted)
	return err
}

func (h *Handler) loadSuspiciousWeekScenario(ctx context.Context) error {
	outlet, err := h.seedOutlet(ctx, "demo-tvl", "Trivandrum", "HP-TVL")
	if err != nil {
		return err
	}
	today := h.Calendar.DayOf(h.Calendar.Clock.Now())

	// A locked day that someone wrote to afterwards.
	tampered, err := h.seedDay(ctx, *outlet, today.AddDays(-3), seedOpening{cash: "500", upi: "0"}, []seedEntry{
		income("sales", "1000", split("cash", "1000")),
	}, ledger.StatusLocked)
	if err != nil {
		return err
	}
	if err := h.seedPostLockEntry(ctx, *outlet, tampered); err != nil {
		return err
	}

	// A day with income but not a rupee of cash.
	if _, err := h.seedDay(ctx, *outlet, today.AddDays(-2), seedOpening{}, []seedEntry{
		income("sales", "900", split("upi", "900")),
	}, ledger.StatusSubmitted); err != nil {
		return err
	}

	// A material day sold mostly on credit.
	_, err = h.seedDay(ctx, *outlet, today.AddDays(-1), seedOpening{}, []seedEntry{
		income("sales", "1200", split("credit", "1200")),
		income("sales", "300", split("cash", "300")),
	}, ledger.StatusSubmitted)
	return err
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

type seedOpening struct{ cash, upi string }

type seedEntry struct {
	typ      ledger.EntryType
	category string
	amount   string
	splits   []ledger.ModeAmount
}

func income(category, amount string, splits ...ledger.ModeAmount) seedEntry {
	return seedEntry{typ: ledger.EntryIncome, category: category, amount: amount, splits: splits}
}

func expense(category, amount string, splits ...ledger.ModeAmount) seedEntry {
	return seedEntry{typ: ledger.EntryExpense, category: category, amount: amount, splits: splits}
}

func split(mode, amount string) ledger.ModeAmount {
	return ledger.ModeAmount{Mode: ledger.PaymentMode(mode), Amount: decimal.RequireFromString(amount)}
}

func (h *Handler) seedOutlet(ctx context.Context, id, name, code string) (*ledger.Outlet, error) {
	o := ledger.Outlet{
		ID:        ledger.OutletID(id),
		Name:      name,
		Code:      code,
		Active:    true,
		CreatedAt: h.Calendar.Clock.Now(),
	}
	if err := h.Store.CreateOutlet(ctx, o); err != nil {
		return nil, err
	}
	return &o, nil
}

// seedDay builds one business day: ensure the record, confirm the baseline
// if the scenario supplies one, post entries at mid-day timestamps, then
// walk the record to the target status with audited transitions.
func (h *Handler) seedDay(ctx context.Context, outlet ledger.Outlet, day ledger.Date, opening seedOpening, entries []seedEntry, target ledger.RecordStatus) (*ledger.DailyRecord, error) {
	rec, err := h.Lifecycle.EnsureDailyRecord(ctx, outlet.ID, day)
	if err != nil {
		return nil, err
	}
	if opening.cash != "" {
		cash := decimal.RequireFromString(opening.cash)
		upi := decimal.RequireFromString(opening.upi)
		if err := h.Store.UpdateOpeningBalances(ctx, rec.ID, cash, upi, true); err != nil {
			return nil, err
		}
		rec.OpeningCash, rec.OpeningUPI, rec.OpeningConfirmed = cash, upi, true
	} else if !rec.OpeningConfirmed {
		// No carried baseline and no explicit float; confirm zeros so the
		// day can still be submitted.
		if err := h.Store.UpdateOpeningBalances(ctx, rec.ID, rec.OpeningCash, rec.OpeningUPI, true); err != nil {
			return nil, err
		}
		rec.OpeningConfirmed = true
	}

	at := day.Time(h.Calendar.Location).Add(12 * time.Hour)
	for i, e := range entries {
		number, err := h.Sequences.NextEntryNumber(ctx, outlet)
		if err != nil {
			return nil, err
		}
		tx := ledger.Transaction{
			ID:            ledger.TransactionID(uuid.NewString()),
			DailyRecordID: rec.ID,
			OutletID:      outlet.ID,
			EntryNumber:   number,
			Type:          e.typ,
			Category:      e.category,
			Amount:        decimal.RequireFromString(e.amount),
			Splits:        e.splits,
			CreatedBy:     "seed",
			CreatedAt:     at.Add(time.Duration(i) * 7 * time.Minute),
			BusinessDate:  day,
		}
		if err := h.Store.AppendTransaction(ctx, tx); err != nil {
			return nil, err
		}
	}
	if err := h.Lifecycle.RecomputeTotals(ctx, rec); err != nil {
		return nil, err
	}
	rec, err = h.Store.GetDailyRecord(ctx, rec.ID)
	if err != nil || rec == nil {
		return nil, fmt.Errorf("reread seeded record: %w", err)
	}

	if target == ledger.StatusDraft {
		return rec, nil
	}
	rec, err = h.Store.TransitionRecord(ctx, rec.ID, ledger.StatusDraft, ledger.StatusSubmitted,
		ledger.RecordMutation{}, h.seedAudit(ledger.AuditDaySubmitted, outlet.ID, rec))
	if err != nil {
		return nil, err
	}
	if target == ledger.StatusSubmitted {
		return rec, nil
	}

	lockedAt := at.Add(10 * time.Hour)
	totals := ledger.RecordTotals{
		ClosingCash:  rec.ClosingCash,
		ClosingUPI:   rec.ClosingUPI,
		TotalIncome:  rec.TotalIncome,
		TotalExpense: rec.TotalExpense,
	}
	return h.Store.TransitionRecord(ctx, rec.ID, ledger.StatusSubmitted, ledger.StatusLocked,
		ledger.RecordMutation{Totals: &totals, LockedAt: &lockedAt, LockedBy: "seed-accountant"},
		h.seedAudit(ledger.AuditDayLocked, outlet.ID, rec))
}

// seedPostLockEntry appends a transaction well past the day's lock, the
// tampering signature the post_lock_edit detector looks for.
func (h *Handler) seedPostLockEntry(ctx context.Context, outlet ledger.Outlet, rec *ledger.DailyRecord) error {
	number, err := h.Sequences.NextEntryNumber(ctx, outlet)
	if err != nil {
		return err
	}
	at := rec.CreatedAt
	if rec.LockedAt != nil {
		at = rec.LockedAt.Add(15 * time.Minute)
	}
	return h.Store.AppendTransaction(ctx, ledger.Transaction{
		ID:            ledger.TransactionID(uuid.NewString()),
		DailyRecordID: rec.ID,
		OutletID:      outlet.ID,
		EntryNumber:   number,
		Type:          ledger.EntryIncome,
		Category:      "sales",
		Amount:        decimal.RequireFromString("500"),
		Splits:        []ledger.ModeAmount{{Mode: ledger.ModeCash, Amount: decimal.RequireFromString("500")}},
		CreatedBy:     "seed-tamper",
		CreatedAt:     at,
		BusinessDate:  rec.BusinessDate,
	})
}

func (h *Handler) seedAudit(action ledger.AuditAction, outletID ledger.OutletID, rec *ledger.DailyRecord) ledger.AuditEntry {
	return ledger.AuditEntry{
		ID:         uuid.NewString(),
		At:         h.Calendar.Clock.Now(),
		ActorID:    "seed",
		Action:     action,
		OutletID:   outletID,
		EntityType: "daily_record",
		EntityID:   string(rec.ID),
		Severity:   ledger.AuditInfo,
	}
}
