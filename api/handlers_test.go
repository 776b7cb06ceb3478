/*
handlers_test.go - HTTP API tests

Runs the full router against a fresh in-memory SQLite store, driving the
day lifecycle, reversals, closures, anomalies, and counters the way the
dashboard does: JSON over HTTP with gateway identity headers.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahakar/ledger-engine/ledger"
	"github.com/sahakar/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testDate = "2025-03-10"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	clock := ledger.FixedClock{At: time.Date(2025, time.March, 10, 12, 0, 0, 0, loc)}
	cal := ledger.NewCalendar("Asia/Kolkata", clock)

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := NewHandler(store, cal, ledger.NopSyncNotifier{}, log)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	// Every test gets one registered outlet.
	status, _ := do(t, srv, http.MethodPost, "/api/outlets", manager, CreateOutletRequest{
		ID: "o1", Name: "Trivandrum", Code: "HP-TVL",
	})
	require.Equal(t, http.StatusCreated, status)
	return srv
}

type identity struct {
	id   string
	role string
}

var (
	staff      = identity{"u-staff", "outlet_staff"}
	manager    = identity{"u-mgr", "outlet_manager"}
	accountant = identity{"u-acct", "ho_accountant"}
	auditor    = identity{"u-aud", "auditor"}
)

// do sends a JSON request with actor headers and returns the status and
// raw response body.
func do(t *testing.T, srv *httptest.Server, method, path string, who identity, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", who.id)
	req.Header.Set("X-Actor-Role", who.role)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return v
}

func postEntry(t *testing.T, srv *httptest.Server, who identity, entryType, amount string, splits ...SplitDTO) (int, []byte) {
	t.Helper()
	if len(splits) == 0 {
		splits = []SplitDTO{{Mode: "cash", Amount: amount}}
	}
	return do(t, srv, http.MethodPost, "/api/outlets/o1/entries", who, CreateEntryRequest{
		Type: entryType, Category: "sales", Amount: amount, Splits: splits,
	})
}

// =============================================================================
// OUTLETS
// =============================================================================

func TestAPI_OutletLookup(t *testing.T) {
	srv := newTestServer(t)

	status, raw := do(t, srv, http.MethodGet, "/api/outlets/o1", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	outlet := decode[OutletDTO](t, raw)
	assert.Equal(t, "HP-TVL", outlet.Code)
	assert.True(t, outlet.Active)

	status, _ = do(t, srv, http.MethodGet, "/api/outlets/ghost", auditor, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, raw = do(t, srv, http.MethodGet, "/api/outlets", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]OutletDTO](t, raw), 1)
}

// =============================================================================
// DAY LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_FullDayLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// Manager confirms the opening float.
	status, raw := do(t, srv, http.MethodPut, "/api/outlets/o1/records/"+testDate+"/opening", manager,
		SetOpeningRequest{OpeningCash: "500", OpeningUPI: "200"})
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	rec := decode[DailyRecordDTO](t, raw)
	assert.True(t, rec.OpeningConfirmed)

	// Staff posts a mixed-mode sale and a cash expense.
	status, raw = postEntry(t, srv, staff, "income", "1000",
		SplitDTO{Mode: "cash", Amount: "600"}, SplitDTO{Mode: "upi", Amount: "400"})
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)
	tx := decode[TransactionDTO](t, raw)
	assert.Equal(t, "HP-TVL-00001", tx.EntryNumber)
	assert.Equal(t, testDate, tx.BusinessDate)

	status, raw = postEntry(t, srv, staff, "expense", "300")
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)

	// Manager submits, accountant locks.
	status, _ = do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/submit", manager, nil)
	require.Equal(t, http.StatusOK, status)
	status, raw = do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/lock", accountant, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	rec = decode[DailyRecordDTO](t, raw)
	assert.Equal(t, "locked", rec.Status)
	assert.Equal(t, "800", rec.ClosingCash)
	assert.Equal(t, "600", rec.ClosingUPI)
	assert.Equal(t, "u-acct", rec.LockedBy)

	// The locked day shows up in the locked-dates range.
	status, raw = do(t, srv, http.MethodGet,
		"/api/outlets/o1/locked-dates?from=2025-03-01&to=2025-03-31", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	lockedDates := decode[LockedDatesDTO](t, raw)
	assert.Equal(t, []string{testDate}, lockedDates.Locked)

	// Direct edits are now refused, even for the accountant.
	status, raw = postEntry(t, srv, accountant, "income", "10")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, raw).Code)

	// The permission endpoint says the same thing.
	status, raw = do(t, srv, http.MethodGet,
		"/api/outlets/o1/records/"+testDate+"/permission", accountant, nil)
	require.Equal(t, http.StatusOK, status)
	perm := decode[PermissionDTO](t, raw)
	assert.True(t, perm.Allowed)
	assert.Equal(t, "reverse", perm.Action)

	// Corrections go through the reversal endpoint.
	status, raw = do(t, srv, http.MethodPost, "/api/transactions/"+tx.ID+"/reverse", accountant,
		ReverseRequest{Reason: "customer refund issued"})
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)
	reversal := decode[TransactionDTO](t, raw)
	assert.True(t, reversal.IsReversal)
	assert.Equal(t, tx.ID, reversal.ReversedOf)
	assert.Equal(t, "expense", reversal.Type)

	// A second reversal of the same entry conflicts.
	status, raw = do(t, srv, http.MethodPost, "/api/transactions/"+tx.ID+"/reverse", accountant,
		ReverseRequest{Reason: "customer refund issued"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_reversal", decode[ErrorResponse](t, raw).Code)

	// The audit trail recorded the privileged actions, newest first.
	status, raw = do(t, srv, http.MethodGet, "/api/outlets/o1/audit", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	trail := decode[[]AuditEntryDTO](t, raw)
	require.NotEmpty(t, trail)
	assert.Equal(t, "reversal_posted", trail[0].Action)
	assert.Equal(t, "critical", trail[0].Severity)
}

func TestAPI_UnlockRequiresReason(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPut, "/api/outlets/o1/records/"+testDate+"/opening", manager,
		SetOpeningRequest{OpeningCash: "0", OpeningUPI: "0"})
	do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/submit", manager, nil)
	do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/lock", accountant, nil)

	status, raw := do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/unlock", accountant,
		UnlockRequest{Reason: ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, raw).Code)

	status, raw = do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/unlock", accountant,
		UnlockRequest{Reason: "totals keyed wrong"})
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	rec := decode[DailyRecordDTO](t, raw)
	assert.Equal(t, "submitted", rec.Status)
	assert.Empty(t, rec.LockedBy)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	// Splits that do not add up -> 400 validation_error.
	status, raw := postEntry(t, srv, staff, "income", "100",
		SplitDTO{Mode: "cash", Amount: "60"}, SplitDTO{Mode: "upi", Amount: "30"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, raw).Code)

	// Auditors cannot write -> 403 forbidden.
	status, raw = postEntry(t, srv, auditor, "income", "100")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, raw).Code)

	// Reversing a transaction that does not exist -> 404.
	status, raw = do(t, srv, http.MethodPost, "/api/transactions/ghost/reverse", accountant,
		ReverseRequest{Reason: "entered twice by mistake"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, raw).Code)

	// Garbage dates -> 400 before any domain logic runs.
	status, _ = do(t, srv, http.MethodGet, "/api/outlets/o1/records/10-03-2025", staff, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_UnknownRoleIsRejectedAtTheDoor(t *testing.T) {
	srv := newTestServer(t)

	// A role the engine does not know must not slide through the
	// permission rules as a de facto staff member.
	intern := identity{"u-intern", "intern"}
	status, raw := postEntry(t, srv, intern, "income", "100")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, raw).Code)

	// Same for a gateway that forgot the headers entirely.
	nobody := identity{"", ""}
	status, raw = do(t, srv, http.MethodPost,
		"/api/outlets/o1/records/"+testDate+"/submit", nobody, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, raw).Code)

	status, raw = do(t, srv, http.MethodGet,
		"/api/outlets/o1/records/"+testDate+"/permission", intern, nil)
	assert.Equal(t, http.StatusForbidden, status, "body: %s", raw)

	// Known roles still pass the boundary and reach the domain rules.
	status, _ = postEntry(t, srv, staff, "income", "100")
	assert.Equal(t, http.StatusCreated, status)
}

// =============================================================================
// MONTHLY CLOSURES
// =============================================================================

func TestAPI_ClosureRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	// An untouched month reads as open.
	status, raw := do(t, srv, http.MethodGet, "/api/outlets/o1/closures/2025-03", accountant, nil)
	require.Equal(t, http.StatusOK, status)
	closure := decode[ClosureDTO](t, raw)
	assert.Equal(t, "open", closure.Status)

	// Lock the month's only day, then close.
	do(t, srv, http.MethodPut, "/api/outlets/o1/records/"+testDate+"/opening", manager,
		SetOpeningRequest{OpeningCash: "500", OpeningUPI: "0"})
	postEntry(t, srv, staff, "income", "1000")
	do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/submit", manager, nil)
	do(t, srv, http.MethodPost, "/api/outlets/o1/records/"+testDate+"/lock", accountant, nil)

	status, raw = do(t, srv, http.MethodPost, "/api/outlets/o1/closures/2025-03/close", accountant, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	closure = decode[ClosureDTO](t, raw)
	assert.Equal(t, "closed", closure.Status)
	assert.Equal(t, "1000", closure.TotalIncome)
	assert.Equal(t, "u-acct", closure.ClosedBy)

	// Managers cannot close or reopen months.
	status, _ = do(t, srv, http.MethodPost, "/api/outlets/o1/closures/2025-03/reopen", manager,
		ReopenRequest{Reason: "vendor invoice arrived late"})
	assert.Equal(t, http.StatusForbidden, status)

	status, raw = do(t, srv, http.MethodPost, "/api/outlets/o1/closures/2025-03/reopen", accountant,
		ReopenRequest{Reason: "vendor invoice arrived late"})
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	closure = decode[ClosureDTO](t, raw)
	assert.Equal(t, "open", closure.Status)
	assert.Equal(t, "vendor invoice arrived late", closure.ReopenReason)
}

// =============================================================================
// ANOMALIES
// =============================================================================

func TestAPI_AnomalyScanIngestResolve(t *testing.T) {
	srv := newTestServer(t)

	// A UPI-only day trips the zero-cash detector.
	postEntry(t, srv, staff, "income", "900", SplitDTO{Mode: "upi", Amount: "900"})
	status, raw := do(t, srv, http.MethodPost, "/api/outlets/o1/anomalies/scan?lookback_days=7", accountant, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	found := decode[[]AnomalyDTO](t, raw)
	require.Len(t, found, 1)
	assert.Equal(t, "zero_cash_day", found[0].Type)

	// A supervisor files a finding by hand.
	status, raw = do(t, srv, http.MethodPost, "/api/outlets/o1/anomalies", accountant, IngestAnomalyRequest{
		Type: "sudden_drop", Severity: "warning", BusinessDate: "2025-03-08",
		Description: "sales fell off a cliff",
	})
	require.Equal(t, http.StatusCreated, status, "body: %s", raw)
	assert.Equal(t, "medium", decode[AnomalyDTO](t, raw).Severity)

	status, raw = do(t, srv, http.MethodGet, "/api/outlets/o1/anomalies", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	open := decode[[]AnomalyDTO](t, raw)
	assert.Len(t, open, 2)

	// Resolving with notes removes it from the open list.
	status, raw = do(t, srv, http.MethodPost, "/api/anomalies/"+found[0].ID+"/resolve", accountant,
		ResolveAnomalyRequest{Notes: "outlet runs UPI-only on Mondays"})
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	assert.NotEmpty(t, decode[AnomalyDTO](t, raw).ResolvedAt)

	status, raw = do(t, srv, http.MethodGet, "/api/outlets/o1/anomalies", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]AnomalyDTO](t, raw), 1)
}

// =============================================================================
// COUNTERS
// =============================================================================

func TestAPI_CountersAndCustomerNumbers(t *testing.T) {
	srv := newTestServer(t)

	// Fresh outlet: both counters report 1.
	status, raw := do(t, srv, http.MethodGet, "/api/outlets/o1/counters", accountant, nil)
	require.Equal(t, http.StatusOK, status)
	counters := decode[CounterDTO](t, raw)
	assert.Equal(t, int64(1), counters.NextEntrySeq)
	assert.Equal(t, int64(1), counters.NextCustomerSeq)

	// Entries and customer numbers draw from independent sequences.
	postEntry(t, srv, staff, "income", "100")
	status, raw = do(t, srv, http.MethodPost, "/api/outlets/o1/customers/number", manager, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "HP-TVL-C00001", decode[NumberDTO](t, raw).Number)

	status, raw = do(t, srv, http.MethodGet, "/api/outlets/o1/counters", accountant, nil)
	require.Equal(t, http.StatusOK, status)
	counters = decode[CounterDTO](t, raw)
	assert.Equal(t, int64(2), counters.NextEntrySeq)
	assert.Equal(t, int64(2), counters.NextCustomerSeq)

	// Reconciliation on a healthy outlet is a no-op.
	status, raw = do(t, srv, http.MethodPost, "/api/outlets/o1/counters/reconcile", accountant, nil)
	require.Equal(t, http.StatusOK, status)
	result := decode[map[string]bool](t, raw)
	assert.False(t, result["repaired"])
}

// Guard against accidental route drift: every read path in the doc header
// must answer a well-formed request.
func TestAPI_RoutesAreWired(t *testing.T) {
	srv := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/outlets"},
		{http.MethodGet, "/api/outlets/o1"},
		{http.MethodGet, "/api/outlets/o1/records?from=2025-03-01&to=2025-03-31"},
		{http.MethodGet, "/api/outlets/o1/records/" + testDate},
		{http.MethodGet, "/api/outlets/o1/records/" + testDate + "/permission"},
		{http.MethodGet, "/api/outlets/o1/locked-dates?from=2025-03-01&to=2025-03-31"},
		{http.MethodGet, "/api/outlets/o1/entries?from=2025-03-01&to=2025-03-31"},
		{http.MethodGet, "/api/outlets/o1/closures/2025-03"},
		{http.MethodGet, "/api/outlets/o1/anomalies"},
		{http.MethodGet, "/api/outlets/o1/counters"},
		{http.MethodGet, "/api/outlets/o1/audit"},
		{http.MethodGet, "/api/health"},
	}
	for _, p := range paths {
		status, _ := do(t, srv, p.method, p.path, auditor, nil)
		assert.Equal(t, http.StatusOK, status, fmt.Sprintf("%s %s", p.method, p.path))
	}
}
