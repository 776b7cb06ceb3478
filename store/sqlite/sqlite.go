/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  The authoritative store. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on the transactions table
  - Corrections happen via reversal rows only
  - Daily records mutate only through lifecycle transitions and totals
    recomputation; audit_logs is insert-only

INVARIANTS CARRIED BY THE SCHEMA:
  idx_records_outlet_date     one daily record per (outlet, business date)
  idx_transactions_entry      entry numbers unique per outlet
  idx_unique_reversal         at most one reversal per original; this
                              index, not application code, settles races
  idx_closures_outlet_month   one closure row per (outlet, month)
  idx_open_anomaly            one OPEN anomaly per (outlet, type, date)

ATOMICITY:
  TransitionRecord and TransitionClosure run a single database
  transaction covering the compare-and-swap status flip and the audit
  insert. A transition without its audit entry cannot be observed.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode. With PostgreSQL,
  database-level concurrency control handles this instead.

MONEY:
  Amounts are stored as decimal strings, never floats. shopspring/decimal
  round-trips exactly through TEXT columns.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/sahakar/ledger-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset clears every table. Demo scenario loading only; production code
// never calls this.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transactions", "daily_records", "monthly_closures",
		"outlet_counters", "anomalies", "audit_logs", "outlets",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return storageErr("reset "+table, err)
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Outlets
	CREATE TABLE IF NOT EXISTS outlets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		timezone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Daily records (ledger headers, one per outlet per business day)
	CREATE TABLE IF NOT EXISTS daily_records (
		id TEXT PRIMARY KEY,
		outlet_id TEXT NOT NULL,
		business_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		opening_cash TEXT NOT NULL DEFAULT '0',
		opening_upi TEXT NOT NULL DEFAULT '0',
		opening_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		closing_cash TEXT NOT NULL DEFAULT '0',
		closing_upi TEXT NOT NULL DEFAULT '0',
		total_income TEXT NOT NULL DEFAULT '0',
		total_expense TEXT NOT NULL DEFAULT '0',
		locked_at TEXT,
		locked_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_outlet_date
		ON daily_records(outlet_id, business_date);
	CREATE INDEX IF NOT EXISTS idx_records_status
		ON daily_records(status);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		daily_record_id TEXT NOT NULL,
		outlet_id TEXT NOT NULL,
		entry_number TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		splits_json TEXT NOT NULL,
		description TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		business_date TEXT NOT NULL,
		is_reversal BOOLEAN NOT NULL DEFAULT FALSE,
		reversed_of TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_entry
		ON transactions(outlet_id, entry_number);

	-- CRITICAL: at most one reversal per original. Concurrent reversal
	-- attempts race to this index; exactly one insert wins.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_reversal
		ON transactions(reversed_of) WHERE reversed_of IS NOT NULL;

	-- Hot path: a day's transaction set for totals recomputation
	CREATE INDEX IF NOT EXISTS idx_transactions_outlet_date
		ON transactions(outlet_id, business_date, created_at);

	-- Monthly closures
	CREATE TABLE IF NOT EXISTS monthly_closures (
		id TEXT PRIMARY KEY,
		outlet_id TEXT NOT NULL,
		month TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		total_income TEXT NOT NULL DEFAULT '0',
		total_expense TEXT NOT NULL DEFAULT '0',
		opening_cash TEXT NOT NULL DEFAULT '0',
		closing_cash TEXT NOT NULL DEFAULT '0',
		closed_at TEXT,
		closed_by TEXT,
		reopen_reason TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_closures_outlet_month
		ON monthly_closures(outlet_id, month);

	-- Per-outlet sequence counters
	CREATE TABLE IF NOT EXISTS outlet_counters (
		outlet_id TEXT PRIMARY KEY,
		next_entry_seq INTEGER NOT NULL DEFAULT 1,
		next_customer_seq INTEGER NOT NULL DEFAULT 1
	);

	-- Anomalies
	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		anomaly_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		outlet_id TEXT NOT NULL,
		business_date TEXT NOT NULL,
		description TEXT NOT NULL,
		metrics_json TEXT,
		detected_at TEXT NOT NULL,
		resolved_at TEXT,
		resolution_notes TEXT
	);

	-- Re-detection must not duplicate an open anomaly
	CREATE UNIQUE INDEX IF NOT EXISTS idx_open_anomaly
		ON anomalies(outlet_id, anomaly_type, business_date)
		WHERE resolved_at IS NULL;

	-- Audit log (insert-only)
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		outlet_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		reason TEXT,
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_outlet_at
		ON audit_logs(outlet_id, at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_action
		ON audit_logs(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// OUTLETS
// =============================================================================

func (s *Store) CreateOutlet(ctx context.Context, o ledger.Outlet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outlets (id, name, code, active, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.ID, o.Name, o.Code, o.Active, o.Timezone, o.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Entity: "outlet", Message: "already exists"}
		}
		return storageErr("insert outlet", err)
	}
	return nil
}

func (s *Store) GetOutlet(ctx context.Context, id ledger.OutletID) (*ledger.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var o ledger.Outlet
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, code, active, timezone, created_at FROM outlets WHERE id = ?", id,
	).Scan(&o.ID, &o.Name, &o.Code, &o.Active, &o.Timezone, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("query outlet", err)
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &o, nil
}

func (s *Store) ListOutlets(ctx context.Context) ([]ledger.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, code, active, timezone, created_at FROM outlets ORDER BY code")
	if err != nil {
		return nil, storageErr("query outlets", err)
	}
	defer rows.Close()

	var outlets []ledger.Outlet
	for rows.Next() {
		var o ledger.Outlet
		var createdAt string
		if err := rows.Scan(&o.ID, &o.Name, &o.Code, &o.Active, &o.Timezone, &createdAt); err != nil {
			return nil, storageErr("scan outlet", err)
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		outlets = append(outlets, o)
	}
	return outlets, rows.Err()
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

const recordColumns = `id, outlet_id, business_date, status,
	opening_cash, opening_upi, opening_confirmed,
	closing_cash, closing_upi, total_income, total_expense,
	locked_at, locked_by, created_at`

func (s *Store) CreateDailyRecord(ctx context.Context, rec ledger.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_records
		(id, outlet_id, business_date, status, opening_cash, opening_upi, opening_confirmed,
		 closing_cash, closing_upi, total_income, total_expense, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.OutletID, rec.BusinessDate.String(), rec.Status,
		rec.OpeningCash.String(), rec.OpeningUPI.String(), rec.OpeningConfirmed,
		rec.ClosingCash.String(), rec.ClosingUPI.String(),
		rec.TotalIncome.String(), rec.TotalExpense.String(),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Entity: "daily_record", Message: "record already exists for this business date"}
		}
		return storageErr("insert daily record", err)
	}
	return nil
}

func (s *Store) GetDailyRecord(ctx context.Context, id ledger.RecordID) (*ledger.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRecord(ctx, "SELECT "+recordColumns+" FROM daily_records WHERE id = ?", id)
}

func (s *Store) GetDailyRecordByDate(ctx context.Context, outletID ledger.OutletID, date ledger.Date) (*ledger.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRecord(ctx,
		"SELECT "+recordColumns+" FROM daily_records WHERE outlet_id = ? AND business_date = ?",
		outletID, date.String())
}

func (s *Store) RecordsInRange(ctx context.Context, outletID ledger.OutletID, from, to ledger.Date) ([]ledger.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM daily_records
		WHERE outlet_id = ? AND business_date >= ? AND business_date <= ?
		ORDER BY business_date ASC
	`, outletID, from.String(), to.String())
	if err != nil {
		return nil, storageErr("query daily records", err)
	}
	defer rows.Close()

	var records []ledger.DailyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) UpdateOpeningBalances(ctx context.Context, id ledger.RecordID, cash, upi decimal.Decimal, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE daily_records SET opening_cash = ?, opening_upi = ?, opening_confirmed = ?
		WHERE id = ?
	`, cash.String(), upi.String(), confirmed, id)
	if err != nil {
		return storageErr("update opening balances", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateRecordTotals(ctx context.Context, id ledger.RecordID, totals ledger.RecordTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE daily_records SET closing_cash = ?, closing_upi = ?, total_income = ?, total_expense = ?
		WHERE id = ?
	`, totals.ClosingCash.String(), totals.ClosingUPI.String(),
		totals.TotalIncome.String(), totals.TotalExpense.String(), id)
	if err != nil {
		return storageErr("update record totals", err)
	}
	return requireRow(res)
}

// TransitionRecord flips status with a compare-and-swap and writes the
// audit entry in the same database transaction.
func (s *Store) TransitionRecord(ctx context.Context, id ledger.RecordID, from, to ledger.RecordStatus, m ledger.RecordMutation, audit ledger.AuditEntry) (*ledger.DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin transition", err)
	}
	defer sqlTx.Rollback()

	set := []string{"status = ?"}
	args := []any{to}
	if m.Totals != nil {
		set = append(set, "closing_cash = ?", "closing_upi = ?", "total_income = ?", "total_expense = ?")
		args = append(args,
			m.Totals.ClosingCash.String(), m.Totals.ClosingUPI.String(),
			m.Totals.TotalIncome.String(), m.Totals.TotalExpense.String())
	}
	if m.LockedAt != nil {
		set = append(set, "locked_at = ?", "locked_by = ?")
		args = append(args, m.LockedAt.UTC().Format(time.RFC3339), m.LockedBy)
	}
	if m.ClearLock {
		set = append(set, "locked_at = NULL", "locked_by = NULL")
	}
	args = append(args, id, from)

	res, err := sqlTx.ExecContext(ctx,
		"UPDATE daily_records SET "+strings.Join(set, ", ")+" WHERE id = ? AND status = ?",
		args...)
	if err != nil {
		return nil, storageErr("transition daily record", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Either the record is gone or the CAS lost; distinguish for the caller.
		var exists int
		if err := sqlTx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM daily_records WHERE id = ?", id).Scan(&exists); err != nil {
			return nil, storageErr("check daily record", err)
		}
		if exists == 0 {
			return nil, ledger.ErrNotFound
		}
		return nil, &ledger.ConflictError{Entity: "daily_record", Message: "status changed concurrently"}
	}

	if err := s.insertAudit(ctx, sqlTx, audit); err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, storageErr("commit transition", err)
	}

	return s.queryRecord(ctx, "SELECT "+recordColumns+" FROM daily_records WHERE id = ?", id)
}

func (s *Store) queryRecord(ctx context.Context, query string, args ...any) (*ledger.DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query daily record", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecord(rows *sql.Rows) (ledger.DailyRecord, error) {
	var (
		rec          ledger.DailyRecord
		businessDate string
		openingCash  string
		openingUPI   string
		closingCash  string
		closingUPI   string
		totalIncome  string
		totalExpense string
		lockedAt     sql.NullString
		lockedBy     sql.NullString
		createdAt    string
	)
	err := rows.Scan(
		&rec.ID, &rec.OutletID, &businessDate, &rec.Status,
		&openingCash, &openingUPI, &rec.OpeningConfirmed,
		&closingCash, &closingUPI, &totalIncome, &totalExpense,
		&lockedAt, &lockedBy, &createdAt,
	)
	if err != nil {
		return rec, storageErr("scan daily record", err)
	}

	rec.BusinessDate, _ = ledger.ParseDate(businessDate)
	rec.OpeningCash = mustDecimal(openingCash)
	rec.OpeningUPI = mustDecimal(openingUPI)
	rec.ClosingCash = mustDecimal(closingCash)
	rec.ClosingUPI = mustDecimal(closingUPI)
	rec.TotalIncome = mustDecimal(totalIncome)
	rec.TotalExpense = mustDecimal(totalExpense)
	rec.LockedBy = lockedBy.String
	if lockedAt.Valid {
		t, _ := time.Parse(time.RFC3339, lockedAt.String)
		rec.LockedAt = &t
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rec, nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

const txColumns = `id, daily_record_id, outlet_id, entry_number, entry_type, category,
	amount, splits_json, description, created_by, created_at, business_date,
	is_reversal, reversed_of`

// AppendTransaction adds a transaction to the ledger. This is the only
// write path; there is no update or delete.
func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db execer, tx ledger.Transaction) error {
	splitsJSON, _ := json.Marshal(splitsToJSON(tx.Splits))

	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, daily_record_id, outlet_id, entry_number, entry_type, category,
		 amount, splits_json, description, created_by, created_at, business_date,
		 is_reversal, reversed_of)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID, tx.DailyRecordID, tx.OutletID, tx.EntryNumber, tx.Type, tx.Category,
		tx.Amount.String(), string(splitsJSON), tx.Description, tx.CreatedBy,
		tx.CreatedAt.UTC().Format(time.RFC3339), tx.BusinessDate.String(),
		tx.IsReversal, nullString(string(tx.ReversedOf)),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "reversed_of") {
				return ledger.ErrDuplicateReversal
			}
			return &ledger.ConflictError{Entity: "transaction", Message: "duplicate entry number or id"}
		}
		return storageErr("append transaction", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	if err != nil {
		return nil, storageErr("query transaction", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	tx, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) TransactionsByDate(ctx context.Context, outletID ledger.OutletID, date ledger.Date) ([]ledger.Transaction, error) {
	return s.TransactionsInRange(ctx, outletID, date, date)
}

func (s *Store) TransactionsInRange(ctx context.Context, outletID ledger.OutletID, from, to ledger.Date) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE outlet_id = ? AND business_date >= ? AND business_date <= ?
		ORDER BY business_date ASC, created_at ASC
	`, outletID, from.String(), to.String())
	if err != nil {
		return nil, storageErr("query transactions", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) HasReversal(ctx context.Context, id ledger.TransactionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE reversed_of = ?", id).Scan(&count)
	if err != nil {
		return false, storageErr("query reversal", err)
	}
	return count > 0, nil
}

func (s *Store) EntryNumbers(ctx context.Context, outletID ledger.OutletID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT entry_number FROM transactions WHERE outlet_id = ?", outletID)
	if err != nil {
		return nil, storageErr("query entry numbers", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, storageErr("scan entry number", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

type splitJSON struct {
	Mode   string `json:"mode"`
	Amount string `json:"amount"`
}

func splitsToJSON(splits []ledger.ModeAmount) []splitJSON {
	out := make([]splitJSON, len(splits))
	for i, s := range splits {
		out[i] = splitJSON{Mode: string(s.Mode), Amount: s.Amount.String()}
	}
	return out
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx           ledger.Transaction
		amount       string
		splitsRaw    string
		description  sql.NullString
		createdAt    string
		businessDate string
		reversedOf   sql.NullString
	)
	err := rows.Scan(
		&tx.ID, &tx.DailyRecordID, &tx.OutletID, &tx.EntryNumber, &tx.Type, &tx.Category,
		&amount, &splitsRaw, &description, &tx.CreatedBy, &createdAt, &businessDate,
		&tx.IsReversal, &reversedOf,
	)
	if err != nil {
		return tx, storageErr("scan transaction", err)
	}

	tx.Amount = mustDecimal(amount)
	tx.Description = description.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	tx.BusinessDate, _ = ledger.ParseDate(businessDate)
	tx.ReversedOf = ledger.TransactionID(reversedOf.String)

	var raw []splitJSON
	if err := json.Unmarshal([]byte(splitsRaw), &raw); err == nil {
		tx.Splits = make([]ledger.ModeAmount, len(raw))
		for i, sj := range raw {
			tx.Splits[i] = ledger.ModeAmount{Mode: ledger.PaymentMode(sj.Mode), Amount: mustDecimal(sj.Amount)}
		}
	}
	return tx, nil
}

// =============================================================================
// COUNTERS
// =============================================================================

// AllocateSequence issues the next number inside one database transaction.
// The store mutex plus the single-writer WAL serialize allocations, so a
// number can never be issued twice.
func (s *Store) AllocateSequence(ctx context.Context, outletID ledger.OutletID, kind ledger.CounterKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := counterColumn(kind)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin allocation", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx,
		"INSERT OR IGNORE INTO outlet_counters (outlet_id) VALUES (?)", outletID); err != nil {
		return 0, storageErr("seed counter", err)
	}

	var seq int64
	if err := sqlTx.QueryRowContext(ctx,
		"SELECT "+col+" FROM outlet_counters WHERE outlet_id = ?", outletID).Scan(&seq); err != nil {
		return 0, storageErr("read counter", err)
	}
	if _, err := sqlTx.ExecContext(ctx,
		"UPDATE outlet_counters SET "+col+" = ? WHERE outlet_id = ?", seq+1, outletID); err != nil {
		return 0, storageErr("advance counter", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, storageErr("commit allocation", err)
	}
	return seq, nil
}

func (s *Store) GetCounter(ctx context.Context, outletID ledger.OutletID) (*ledger.OutletCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c ledger.OutletCounter
	err := s.db.QueryRowContext(ctx,
		"SELECT outlet_id, next_entry_seq, next_customer_seq FROM outlet_counters WHERE outlet_id = ?",
		outletID,
	).Scan(&c.OutletID, &c.NextEntrySeq, &c.NextCustomerSeq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("query counter", err)
	}
	return &c, nil
}

// RaiseCounter lifts the counter to at least min. Raise-only: the WHERE
// clause refuses to move a counter backwards.
func (s *Store) RaiseCounter(ctx context.Context, outletID ledger.OutletID, kind ledger.CounterKind, min int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := counterColumn(kind)

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO outlet_counters (outlet_id) VALUES (?)", outletID); err != nil {
		return false, storageErr("seed counter", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE outlet_counters SET "+col+" = ? WHERE outlet_id = ? AND "+col+" < ?",
		min, outletID, min)
	if err != nil {
		return false, storageErr("raise counter", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func counterColumn(kind ledger.CounterKind) string {
	if kind == ledger.CounterCustomer {
		return "next_customer_seq"
	}
	return "next_entry_seq"
}

// =============================================================================
// MONTHLY CLOSURES
// =============================================================================

func (s *Store) GetClosure(ctx context.Context, outletID ledger.OutletID, month ledger.Month) (*ledger.MonthlyClosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryClosure(ctx, outletID, month)
}

func (s *Store) queryClosure(ctx context.Context, outletID ledger.OutletID, month ledger.Month) (*ledger.MonthlyClosure, error) {
	var (
		c            ledger.MonthlyClosure
		monthStr     string
		totalIncome  string
		totalExpense string
		openingCash  string
		closingCash  string
		closedAt     sql.NullString
		closedBy     sql.NullString
		reopenReason sql.NullString
		updatedAt    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, outlet_id, month, status, total_income, total_expense,
		       opening_cash, closing_cash, closed_at, closed_by, reopen_reason, updated_at
		FROM monthly_closures WHERE outlet_id = ? AND month = ?
	`, outletID, month.String()).Scan(
		&c.ID, &c.OutletID, &monthStr, &c.Status, &totalIncome, &totalExpense,
		&openingCash, &closingCash, &closedAt, &closedBy, &reopenReason, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("query closure", err)
	}

	c.Month, _ = ledger.ParseMonth(monthStr)
	c.TotalIncome = mustDecimal(totalIncome)
	c.TotalExpense = mustDecimal(totalExpense)
	c.OpeningCash = mustDecimal(openingCash)
	c.ClosingCash = mustDecimal(closingCash)
	c.ClosedBy = closedBy.String
	c.ReopenReason = reopenReason.String
	if closedAt.Valid {
		t, _ := time.Parse(time.RFC3339, closedAt.String)
		c.ClosedAt = &t
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

// TransitionClosure upserts the closure row with a compare-and-swap on
// its current status (a missing row counts as open) and writes the audit
// entry in the same database transaction.
func (s *Store) TransitionClosure(ctx context.Context, c ledger.MonthlyClosure, from ledger.ClosureStatus, audit ledger.AuditEntry) (*ledger.MonthlyClosure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin closure transition", err)
	}
	defer sqlTx.Rollback()

	var current ledger.ClosureStatus = ledger.ClosureOpen
	err = sqlTx.QueryRowContext(ctx,
		"SELECT status FROM monthly_closures WHERE outlet_id = ? AND month = ?",
		c.OutletID, c.Month.String()).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return nil, storageErr("check closure status", err)
	}
	if current != from {
		return nil, &ledger.ConflictError{Entity: "monthly_closure", Message: "status changed concurrently"}
	}

	var closedAt any
	if c.ClosedAt != nil {
		closedAt = c.ClosedAt.UTC().Format(time.RFC3339)
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO monthly_closures
		(id, outlet_id, month, status, total_income, total_expense,
		 opening_cash, closing_cash, closed_at, closed_by, reopen_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(outlet_id, month) DO UPDATE SET
			status = excluded.status,
			total_income = excluded.total_income,
			total_expense = excluded.total_expense,
			opening_cash = excluded.opening_cash,
			closing_cash = excluded.closing_cash,
			closed_at = excluded.closed_at,
			closed_by = excluded.closed_by,
			reopen_reason = excluded.reopen_reason,
			updated_at = excluded.updated_at
	`,
		c.ID, c.OutletID, c.Month.String(), c.Status,
		c.TotalIncome.String(), c.TotalExpense.String(),
		c.OpeningCash.String(), c.ClosingCash.String(),
		closedAt, nullString(c.ClosedBy), nullString(c.ReopenReason),
		c.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, storageErr("upsert closure", err)
	}

	if err := s.insertAudit(ctx, sqlTx, audit); err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, storageErr("commit closure transition", err)
	}
	return s.queryClosure(ctx, c.OutletID, c.Month)
}

// =============================================================================
// ANOMALIES
// =============================================================================

// UpsertAnomaly inserts the anomaly unless idx_open_anomaly says an open
// one already exists, in which case the existing row wins.
func (s *Store) UpsertAnomaly(ctx context.Context, a ledger.Anomaly) (*ledger.Anomaly, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metricsJSON, _ := json.Marshal(a.Metrics)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anomalies
		(id, anomaly_type, severity, outlet_id, business_date, description, metrics_json, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.Type, a.Severity, a.OutletID, a.BusinessDate.String(),
		a.Description, string(metricsJSON), a.DetectedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			existing, qerr := s.openAnomalyByKey(ctx, a.Key())
			if qerr != nil {
				return nil, false, qerr
			}
			return existing, false, nil
		}
		return nil, false, storageErr("insert anomaly", err)
	}
	return &a, true, nil
}

func (s *Store) openAnomalyByKey(ctx context.Context, k ledger.AnomalyKey) (*ledger.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+anomalyColumns+` FROM anomalies
		WHERE outlet_id = ? AND anomaly_type = ? AND business_date = ? AND resolved_at IS NULL
	`, k.OutletID, k.Type, k.BusinessDate.String())
	if err != nil {
		return nil, storageErr("query anomaly by key", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAnomaly(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const anomalyColumns = `id, anomaly_type, severity, outlet_id, business_date,
	description, metrics_json, detected_at, resolved_at, resolution_notes`

func (s *Store) GetAnomaly(ctx context.Context, id ledger.AnomalyID) (*ledger.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+anomalyColumns+" FROM anomalies WHERE id = ?", id)
	if err != nil {
		return nil, storageErr("query anomaly", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAnomaly(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) OpenAnomalies(ctx context.Context, outletID ledger.OutletID) ([]ledger.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+anomalyColumns+` FROM anomalies
		WHERE outlet_id = ? AND resolved_at IS NULL
		ORDER BY business_date DESC
	`, outletID)
	if err != nil {
		return nil, storageErr("query open anomalies", err)
	}
	defer rows.Close()

	var anomalies []ledger.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func (s *Store) ResolveAnomaly(ctx context.Context, id ledger.AnomalyID, notes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE anomalies SET resolved_at = ?, resolution_notes = ?
		WHERE id = ? AND resolved_at IS NULL
	`, at.UTC().Format(time.RFC3339), notes, id)
	if err != nil {
		return storageErr("resolve anomaly", err)
	}
	return requireRow(res)
}

func scanAnomaly(rows *sql.Rows) (ledger.Anomaly, error) {
	var (
		a            ledger.Anomaly
		businessDate string
		metricsJSON  sql.NullString
		detectedAt   string
		resolvedAt   sql.NullString
		notes        sql.NullString
	)
	err := rows.Scan(
		&a.ID, &a.Type, &a.Severity, &a.OutletID, &businessDate,
		&a.Description, &metricsJSON, &detectedAt, &resolvedAt, &notes,
	)
	if err != nil {
		return a, storageErr("scan anomaly", err)
	}

	a.BusinessDate, _ = ledger.ParseDate(businessDate)
	a.DetectedAt, _ = time.Parse(time.RFC3339, detectedAt)
	a.ResolutionNotes = notes.String
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		a.ResolvedAt = &t
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		json.Unmarshal([]byte(metricsJSON.String), &a.Metrics)
	}
	return a, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertAudit(ctx, s.db, entry)
}

func (s *Store) insertAudit(ctx context.Context, db execer, entry ledger.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	detailsJSON, _ := json.Marshal(entry.Details)

	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_logs
		(id, at, actor_id, action, outlet_id, entity_type, entity_id, severity, reason, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.At.UTC().Format(time.RFC3339), entry.ActorID, entry.Action,
		entry.OutletID, entry.EntityType, entry.EntityID, entry.Severity,
		nullString(entry.Reason), string(detailsJSON),
	)
	if err != nil {
		return storageErr("append audit entry", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, at, actor_id, action, outlet_id, entity_type, entity_id, severity, reason, details_json
		FROM audit_logs WHERE 1=1`
	var args []any

	if filter.OutletID != nil {
		query += " AND outlet_id = ?"
		args = append(args, *filter.OutletID)
	}
	if filter.ActorID != nil {
		query += " AND actor_id = ?"
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		query += " AND action IN (?" + strings.Repeat(", ?", len(filter.Actions)-1) + ")"
		for _, a := range filter.Actions {
			args = append(args, a)
		}
	}
	if filter.From != nil {
		query += " AND at >= ?"
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		query += " AND at <= ?"
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}
	// Timestamps persist at second granularity, so entries written in the
	// same second tie on at. The table is insert-only; rowid settles ties
	// in insertion order.
	query += " ORDER BY at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query audit log", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e           ledger.AuditEntry
			at          string
			reason      sql.NullString
			detailsJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.ActorID, &e.Action, &e.OutletID,
			&e.EntityType, &e.EntityID, &e.Severity, &reason, &detailsJSON); err != nil {
			return nil, storageErr("scan audit entry", err)
		}
		e.At, _ = time.Parse(time.RFC3339, at)
		e.Reason = reason.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			json.Unmarshal([]byte(detailsJSON.String), &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ledger.ErrStorageUnavailable)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
