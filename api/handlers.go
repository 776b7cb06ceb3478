/*
handlers.go - HTTP API handlers for the ledger integrity engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Outlets:
    GET    /api/outlets                         List outlets
    POST   /api/outlets                         Register outlet
    GET    /api/outlets/{id}                    Outlet details

  Daily records:
    GET    /api/outlets/{id}/records             Records in a date range
    GET    /api/outlets/{id}/records/{date}      One day's record
    PUT    /api/outlets/{id}/records/{date}/opening  Set opening balances
    POST   /api/outlets/{id}/records/{date}/submit   draft -> submitted
    POST   /api/outlets/{id}/records/{date}/lock     submitted -> locked
    POST   /api/outlets/{id}/records/{date}/unlock   locked -> submitted
    GET    /api/outlets/{id}/records/{date}/permission  Permission check
    GET    /api/outlets/{id}/locked-dates        Locked dates in a range

  Transactions:
    POST   /api/outlets/{id}/entries             Post a transaction (today)
    GET    /api/outlets/{id}/entries             List by date/range
    GET    /api/transactions/{id}                One transaction
    POST   /api/transactions/{id}/reverse        Post a reversal

  Monthly closures:
    GET    /api/outlets/{id}/closures/{month}
    POST   /api/outlets/{id}/closures/{month}/close
    POST   /api/outlets/{id}/closures/{month}/reopen

  Anomalies:
    POST   /api/outlets/{id}/anomalies/scan      Run detectors
    GET    /api/outlets/{id}/anomalies           Open anomalies
    POST   /api/outlets/{id}/anomalies           Ingest a manual anomaly
    POST   /api/anomalies/{id}/resolve           Resolve with notes

  Counters / audit:
    GET    /api/outlets/{id}/counters
    POST   /api/outlets/{id}/counters/reconcile
    POST   /api/outlets/{id}/customers/number    Allocate a customer number
    GET    /api/outlets/{id}/audit               Query the audit trail

ACTOR IDENTITY:
  Authentication is an external collaborator. The acting user arrives via
  the X-Actor-Id and X-Actor-Role headers, set by the gateway in front of
  this service.

ERROR HANDLING:
  Domain errors map to status codes via their stable codes:
  - 400: validation_error
  - 403: forbidden, operating_hours_closed
  - 404: not_found
  - 409: conflict, duplicate_reversal
  - 503: storage_unavailable
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sahakar/ledger-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     ledger.Store
	Calendar  *ledger.Calendar
	Lifecycle *ledger.Lifecycle
	Reversals *ledger.ReversalPoster
	Scanner   *ledger.Scanner
	Sequences *ledger.SequenceAllocator
	Log       *logrus.Logger

	currentScenario string
}

// NewHandler wires the engine services over the given store.
func NewHandler(store ledger.Store, cal *ledger.Calendar, sync ledger.SyncNotifier, log *logrus.Logger) *Handler {
	sequences := ledger.NewSequenceAllocator(store, log)
	sequences.Clock = cal.Clock
	return &Handler{
		Store:     store,
		Calendar:  cal,
		Lifecycle: ledger.NewLifecycle(store, cal, sync, log),
		Reversals: ledger.NewReversalPoster(store, cal, sync, log),
		Scanner:   ledger.NewScanner(store, cal, log),
		Sequences: sequences,
		Log:       log,
	}
}

// actorFrom extracts the acting user from gateway headers.
func actorFrom(r *http.Request) ledger.Actor {
	return ledger.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Role: ledger.Role(r.Header.Get("X-Actor-Role")),
	}
}

// requireActor rejects requests whose gateway headers carry no actor id or
// an unknown role. Unknown roles must never reach the permission rules,
// where they would be indistinguishable from a misconfigured gateway.
func requireActor(w http.ResponseWriter, r *http.Request) (ledger.Actor, bool) {
	actor := actorFrom(r)
	if actor.ID == "" || !actor.Role.Valid() {
		writeDomainError(w, fmt.Errorf("unknown actor %q with role %q: %w",
			actor.ID, actor.Role, ledger.ErrForbidden))
		return ledger.Actor{}, false
	}
	return actor, true
}

// =============================================================================
// OUTLET HANDLERS
// =============================================================================

// ListOutlets returns all outlets.
func (h *Handler) ListOutlets(w http.ResponseWriter, r *http.Request) {
	outlets, err := h.Store.ListOutlets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]OutletDTO, len(outlets))
	for i, o := range outlets {
		dtos[i] = toOutletDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOutlet registers a new outlet.
func (h *Handler) CreateOutlet(w http.ResponseWriter, r *http.Request) {
	var req CreateOutletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "name and code are required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	o := ledger.Outlet{
		ID:        ledger.OutletID(req.ID),
		Name:      req.Name,
		Code:      req.Code,
		Active:    true,
		Timezone:  req.Timezone,
		CreatedAt: h.Calendar.Clock.Now(),
	}
	if err := h.Store.CreateOutlet(r.Context(), o); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutletDTO(o))
}

// GetOutlet returns a single outlet.
func (h *Handler) GetOutlet(w http.ResponseWriter, r *http.Request) {
	id := ledger.OutletID(chi.URLParam(r, "id"))
	o, err := h.Store.GetOutlet(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Outlet not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toOutletDTO(*o))
}

// =============================================================================
// DAILY RECORD HANDLERS
// =============================================================================

// GetRecords returns the records in a date range.
func (h *Handler) GetRecords(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}
	records, err := h.Store.RecordsInRange(r.Context(), outletID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]DailyRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRecord returns one day's record, creating it if the day is new.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	date, ok := datePath(w, r)
	if !ok {
		return
	}
	rec, err := h.Lifecycle.EnsureDailyRecord(r.Context(), outletID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// SetOpening sets and confirms the day's opening balances.
func (h *Handler) SetOpening(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	date, ok := datePath(w, r)
	if !ok {
		return
	}
	var req SetOpeningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cash, err := decimal.NewFromString(req.OpeningCash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid opening_cash", err)
		return
	}
	upi, err := decimal.NewFromString(req.OpeningUPI)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid opening_upi", err)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	rec, err := h.Lifecycle.SetOpeningBalances(r.Context(), actor, outletID, date, cash, upi)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// SubmitDay moves the day to submitted.
func (h *Handler) SubmitDay(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	date, ok := datePath(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	rec, err := h.Lifecycle.SubmitDay(r.Context(), actor, outletID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// LockDay freezes the day's figures.
func (h *Handler) LockDay(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	date, ok := datePath(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	rec, err := h.Lifecycle.LockDay(r.Context(), actor, outletID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// UnlockDay steps a locked day back to submitted.
func (h *Handler) UnlockDay(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	date, ok := datePath(w, r)
	if !ok {
		return
	}
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	rec, err := h.Lifecycle.UnlockDay(r.Context(), actor, outletID, date, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// CheckPermission answers what the actor may do with entries on a day.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	date, ok := datePath(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	rec, err := h.Store.GetDailyRecordByDate(r.Context(), outletID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status, locked := ledger.StatusDraft, false
	if rec != nil {
		status = rec.Status
		locked = rec.Status == ledger.StatusLocked
	}
	today := h.Calendar.DayOf(h.Calendar.Clock.Now())

	d := ledger.Decide(date, actor.Role, locked, status, today)
	writeJSON(w, http.StatusOK, PermissionDTO{Allowed: d.Allowed, Action: string(d.Action), Reason: d.Reason})
}

// GetLockedDates lists the locked business dates in a range.
func (h *Handler) GetLockedDates(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}
	records, err := h.Store.RecordsInRange(r.Context(), outletID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	locked := []string{}
	for _, rec := range records {
		if rec.Status == ledger.StatusLocked {
			locked = append(locked, rec.BusinessDate.String())
		}
	}
	writeJSON(w, http.StatusOK, LockedDatesDTO{
		OutletID: string(outletID),
		From:     from.String(),
		To:       to.String(),
		Locked:   locked,
	})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateEntry posts a new transaction to today's ledger.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	splits, err := parseSplits(req.Splits)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid splits", err)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tx, err := h.Lifecycle.AppendEntry(r.Context(), actor, ledger.EntryInput{
		OutletID:    outletID,
		Type:        ledger.EntryType(req.Type),
		Category:    req.Category,
		Amount:      amount,
		Splits:      splits,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// ListEntries returns an outlet's transactions in a date range.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}
	txs, err := h.Store.TransactionsInRange(r.Context(), outletID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetTransaction returns a single transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	tx, err := h.Store.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// ReverseTransaction posts a reversal for a transaction.
func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	reversal, err := h.Reversals.Reverse(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*reversal))
}

// =============================================================================
// MONTHLY CLOSURE HANDLERS
// =============================================================================

// GetClosure returns the closure state for a month.
func (h *Handler) GetClosure(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	month, err := ledger.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}
	c, err := h.Store.GetClosure(r.Context(), outletID, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusOK, ClosureDTO{
			OutletID: string(outletID),
			Month:    month.String(),
			Status:   string(ledger.ClosureOpen),
		})
		return
	}
	writeJSON(w, http.StatusOK, toClosureDTO(*c))
}

// CloseMonth freezes the month's snapshot.
func (h *Handler) CloseMonth(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	month, err := ledger.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	c, err := h.Lifecycle.CloseMonth(r.Context(), actor, outletID, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClosureDTO(*c))
}

// ReopenMonth steps a closed month back to open.
func (h *Handler) ReopenMonth(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	month, err := ledger.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}
	var req ReopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	c, err := h.Lifecycle.ReopenMonth(r.Context(), actor, outletID, month, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClosureDTO(*c))
}

// =============================================================================
// ANOMALY HANDLERS
// =============================================================================

// ScanAnomalies runs the detectors over the recent ledger.
func (h *Handler) ScanAnomalies(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	lookback := 0
	if v := r.URL.Query().Get("lookback_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid lookback_days", err)
			return
		}
		lookback = n
	}
	found, err := h.Scanner.Scan(r.Context(), outletID, lookback)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AnomalyDTO, len(found))
	for i, a := range found {
		dtos[i] = toAnomalyDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAnomalies returns the outlet's open anomalies.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	anomalies, err := h.Store.OpenAnomalies(r.Context(), outletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AnomalyDTO, len(anomalies))
	for i, a := range anomalies {
		dtos[i] = toAnomalyDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// IngestAnomaly records an externally observed anomaly.
func (h *Handler) IngestAnomaly(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	var req IngestAnomalyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := ledger.ParseDate(req.BusinessDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid business_date format (use YYYY-MM-DD)", err)
		return
	}
	a, err := h.Scanner.Ingest(r.Context(), ledger.AnomalyType(req.Type), req.Severity, outletID, date, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnomalyDTO(*a))
}

// ResolveAnomaly closes an open anomaly with notes.
func (h *Handler) ResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	id := ledger.AnomalyID(chi.URLParam(r, "id"))
	var req ResolveAnomalyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	a, err := h.Scanner.Resolve(r.Context(), id, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnomalyDTO(*a))
}

// =============================================================================
// COUNTER AND AUDIT HANDLERS
// =============================================================================

// GetCounters exposes the outlet's sequence counters.
func (h *Handler) GetCounters(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	c, err := h.Store.GetCounter(r.Context(), outletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if c == nil {
		c = &ledger.OutletCounter{OutletID: outletID, NextEntrySeq: 1, NextCustomerSeq: 1}
	}
	writeJSON(w, http.StatusOK, CounterDTO{
		OutletID:        string(c.OutletID),
		NextEntrySeq:    c.NextEntrySeq,
		NextCustomerSeq: c.NextCustomerSeq,
	})
}

// ReconcileCounters repairs a counter that fell behind the persisted data.
func (h *Handler) ReconcileCounters(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	raised, err := h.Sequences.ReconcileCounters(r.Context(), outletID, actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"repaired": raised})
}

// AllocateCustomerNumber issues the next customer display number.
func (h *Handler) AllocateCustomerNumber(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	outlet, err := h.Store.GetOutlet(r.Context(), outletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if outlet == nil {
		writeError(w, http.StatusNotFound, "Outlet not found", nil)
		return
	}
	number, err := h.Sequences.NextCustomerNumber(r.Context(), *outlet)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NumberDTO{Number: number})
}

// QueryAudit returns the outlet's audit trail, newest first.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	outletID := ledger.OutletID(chi.URLParam(r, "id"))
	filter := ledger.AuditFilter{OutletID: &outletID, Limit: 100}
	if v := r.URL.Query().Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := r.URL.Query().Get("action"); v != "" {
		filter.Actions = []ledger.AuditAction{ledger.AuditAction(v)}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func datePath(w http.ResponseWriter, r *http.Request) (ledger.Date, bool) {
	date, err := ledger.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return ledger.Date{}, false
	}
	return date, true
}

func dateRange(w http.ResponseWriter, r *http.Request) (ledger.Date, ledger.Date, bool) {
	from, err := ledger.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return ledger.Date{}, ledger.Date{}, false
	}
	to, err := ledger.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return ledger.Date{}, ledger.Date{}, false
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a ledger error to its transport status via the
// engine's stable error codes.
func writeDomainError(w http.ResponseWriter, err error) {
	code := ledger.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case "validation_error":
		status = http.StatusBadRequest
	case "forbidden", "operating_hours_closed":
		status = http.StatusForbidden
	case "not_found":
		status = http.StatusNotFound
	case "conflict", "duplicate_reversal":
		status = http.StatusConflict
	case "storage_unavailable":
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
