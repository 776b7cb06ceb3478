/*
anomaly.go - Heuristic detectors over posted ledger data

PURPOSE:
  Read-only scanning of the recent ledger for irregularities worth a
  human look. Detection never mutates ledger data; its only writes are
  anomaly rows, deduplicated on (type, outlet, business date) while open.

DETECTORS:
  post_lock_edit   HIGH    a transaction created after its day's lock
                           (beyond a short grace for the lock's own
                           recompute writes)
  zero_cash_day    MEDIUM  a day with income but not a rupee of cash
  high_credit_day  MEDIUM  credit sales above half of material total sales

  Detectors are heuristics: tune thresholds here, not in callers.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// postLockGrace absorbs the lock transition's own recompute writes so
	// they are not flagged as tampering.
	postLockGrace = 60 * time.Second

	// creditShareThreshold flags days where more than this share of sales
	// went out on credit.
	creditShareThreshold = 0.5
)

// materialityFloor keeps trivial days out of the credit detector.
var materialityFloor = decimal.NewFromInt(1000)

// Scanner runs the detectors and records their findings.
type Scanner struct {
	Store    Store
	Calendar *Calendar
	Log      *logrus.Logger
}

func NewScanner(store Store, cal *Calendar, log *logrus.Logger) *Scanner {
	return &Scanner{Store: store, Calendar: cal, Log: log}
}

// Scan runs every detector over the outlet's last lookbackDays business
// days (default 30) and returns the open anomalies found, newest business
// date first. Re-detection of an already-open anomaly is a no-op.
func (s *Scanner) Scan(ctx context.Context, outletID OutletID, lookbackDays int) ([]Anomaly, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	end := s.Calendar.DayOf(s.Calendar.Clock.Now())
	start := end.AddDays(-(lookbackDays - 1))

	records, err := s.Store.RecordsInRange(ctx, outletID, start, end)
	if err != nil {
		return nil, err
	}
	txs, err := s.Store.TransactionsInRange(ctx, outletID, start, end)
	if err != nil {
		return nil, err
	}

	byDate := make(map[Date][]Transaction)
	for _, tx := range txs {
		byDate[tx.BusinessDate] = append(byDate[tx.BusinessDate], tx)
	}

	var found []Anomaly
	for _, rec := range records {
		dayTxs := byDate[rec.BusinessDate]
		for _, candidate := range []*Anomaly{
			detectPostLockEdit(rec, dayTxs),
			detectZeroCashDay(rec, dayTxs),
			detectHighCreditDay(rec, dayTxs),
		} {
			if candidate == nil {
				continue
			}
			candidate.ID = AnomalyID(uuid.NewString())
			candidate.DetectedAt = s.Calendar.Clock.Now()
			stored, created, err := s.Store.UpsertAnomaly(ctx, *candidate)
			if err != nil {
				return nil, err
			}
			if created && s.Log != nil {
				s.Log.WithFields(logrus.Fields{
					"outlet_id":     outletID,
					"type":          stored.Type,
					"severity":      stored.Severity,
					"business_date": stored.BusinessDate.String(),
				}).Warn("anomaly detected")
			}
			found = append(found, *stored)
		}
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].BusinessDate.After(found[j].BusinessDate)
	})
	return found, nil
}

// =============================================================================
// DETECTORS - Pure functions over one day's data
// =============================================================================

func detectPostLockEdit(rec DailyRecord, txs []Transaction) *Anomaly {
	if rec.Status != StatusLocked || rec.LockedAt == nil {
		return nil
	}
	cutoff := rec.LockedAt.Add(postLockGrace)
	count := 0
	for _, tx := range txs {
		if tx.CreatedAt.After(cutoff) {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return &Anomaly{
		Type:         AnomalyPostLockEdit,
		Severity:     SeverityHigh,
		OutletID:     rec.OutletID,
		BusinessDate: rec.BusinessDate,
		Description:  fmt.Sprintf("%d transaction(s) created after the day was locked", count),
		Metrics:      map[string]any{"count": count},
	}
}

func detectZeroCashDay(rec DailyRecord, txs []Transaction) *Anomaly {
	totalIncome, cashIncome := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.Type != EntryIncome {
			continue
		}
		totalIncome = totalIncome.Add(tx.Amount)
		cashIncome = cashIncome.Add(tx.ModeAmount(ModeCash))
	}
	if !totalIncome.IsPositive() || cashIncome.IsPositive() {
		return nil
	}
	return &Anomaly{
		Type:         AnomalyZeroCashDay,
		Severity:     SeverityMedium,
		OutletID:     rec.OutletID,
		BusinessDate: rec.BusinessDate,
		Description:  "income was recorded but no cash was received all day",
		Metrics:      map[string]any{"total_income": totalIncome.String()},
	}
}

func detectHighCreditDay(rec DailyRecord, txs []Transaction) *Anomaly {
	totalSales, creditSales := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.Type != EntryIncome {
			continue
		}
		totalSales = totalSales.Add(tx.Amount)
		creditSales = creditSales.Add(tx.ModeAmount(ModeCredit))
	}
	if totalSales.LessThan(materialityFloor) {
		return nil
	}
	share, _ := creditSales.Div(totalSales).Float64()
	if share <= creditShareThreshold {
		return nil
	}
	return &Anomaly{
		Type:         AnomalyHighCreditDay,
		Severity:     SeverityMedium,
		OutletID:     rec.OutletID,
		BusinessDate: rec.BusinessDate,
		Description:  fmt.Sprintf("%.0f%% of sales went out on credit", share*100),
		Metrics: map[string]any{
			"credit_sales": creditSales.String(),
			"total_sales":  totalSales.String(),
		},
	}
}

// =============================================================================
// MANUAL INGESTION AND RESOLUTION
// =============================================================================

// Ingest records an externally observed anomaly (e.g. a supervisor's
// finding). Severity accepts the critical/warning/info aliases.
func (s *Scanner) Ingest(ctx context.Context, typ AnomalyType, severity string, outletID OutletID, date Date, description string) (*Anomaly, error) {
	if !typ.Valid() {
		return nil, &ValidationError{Field: "type", Message: "unknown anomaly type"}
	}
	sev, ok := ParseSeverity(severity)
	if !ok {
		return nil, &ValidationError{Field: "severity", Message: "must be high/medium/low (or critical/warning/info)"}
	}
	if strings.TrimSpace(description) == "" {
		return nil, &ValidationError{Field: "description", Message: "required"}
	}

	a := Anomaly{
		ID:           AnomalyID(uuid.NewString()),
		Type:         typ,
		Severity:     sev,
		OutletID:     outletID,
		BusinessDate: date,
		Description:  strings.TrimSpace(description),
		DetectedAt:   s.Calendar.Clock.Now(),
	}
	stored, _, err := s.Store.UpsertAnomaly(ctx, a)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Resolve closes an open anomaly with the reviewer's notes.
func (s *Scanner) Resolve(ctx context.Context, id AnomalyID, notes string) (*Anomaly, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, &ValidationError{Field: "resolution_notes", Message: "required"}
	}
	existing, err := s.Store.GetAnomaly(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("anomaly %s: %w", id, ErrNotFound)
	}
	if existing.ResolvedAt != nil {
		return nil, &ConflictError{Entity: "anomaly", Message: "already resolved"}
	}
	if err := s.Store.ResolveAnomaly(ctx, id, strings.TrimSpace(notes), s.Calendar.Clock.Now()); err != nil {
		return nil, err
	}
	return s.Store.GetAnomaly(ctx, id)
}
