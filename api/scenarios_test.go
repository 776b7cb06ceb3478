/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Outlets are registered
	- Daily records carry the right statuses and baselines
	- Seeded days survive the detectors or trip them as intended

These tests ensure scenarios work correctly and can be used as integration tests.
*/
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	status, raw := do(t, srv, http.MethodPost, "/api/scenarios/load", accountant,
		map[string]string{"scenario_id": id})
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
}

func TestScenarios_Listing(t *testing.T) {
	srv := newTestServer(t)

	status, raw := do(t, srv, http.MethodGet, "/api/scenarios", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	listed := decode[[]ScenarioDTO](t, raw)
	assert.Len(t, listed, 4)

	// Nothing loaded yet.
	status, raw = do(t, srv, http.MethodGet, "/api/scenarios/current", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "null", string(raw[:4]))
}

func TestScenarios_UnknownRejected(t *testing.T) {
	srv := newTestServer(t)
	status, _ := do(t, srv, http.MethodPost, "/api/scenarios/load", accountant,
		map[string]string{"scenario_id": "time-travel"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScenarios_FreshOutlet(t *testing.T) {
	srv := newTestServer(t)
	loadScenario(t, srv, "fresh-outlet")

	// Loading replaced the test outlet with the two demo outlets.
	status, raw := do(t, srv, http.MethodGet, "/api/outlets", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	outlets := decode[[]OutletDTO](t, raw)
	require.Len(t, outlets, 2)
	assert.Equal(t, "HP-EKM", outlets[0].Code)
	assert.Equal(t, "HP-TVL", outlets[1].Code)

	status, raw = do(t, srv, http.MethodGet, "/api/scenarios/current", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fresh-outlet", decode[ScenarioDTO](t, raw).ID)
}

func TestScenarios_BusyDayLeavesADraft(t *testing.T) {
	srv := newTestServer(t)
	loadScenario(t, srv, "busy-day")

	status, raw := do(t, srv, http.MethodGet, "/api/outlets/demo-tvl/records/"+testDate, staff, nil)
	require.Equal(t, http.StatusOK, status)
	rec := decode[DailyRecordDTO](t, raw)
	assert.Equal(t, "draft", rec.Status)
	assert.True(t, rec.OpeningConfirmed)
	assert.Equal(t, "2000", rec.OpeningCash)
	// 2000 + 900 + 300 - 450 = 2750 cash; 500 + 600 - 220 = 880 UPI.
	assert.Equal(t, "2750", rec.ClosingCash)
	assert.Equal(t, "880", rec.ClosingUPI)

	status, raw = do(t, srv, http.MethodGet,
		"/api/outlets/demo-tvl/entries?from="+testDate+"&to="+testDate, staff, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]TransactionDTO](t, raw), 5)
}

func TestScenarios_MonthToCloseIsLockable(t *testing.T) {
	srv := newTestServer(t)
	loadScenario(t, srv, "month-to-close")

	// Five locked days behind today.
	status, raw := do(t, srv, http.MethodGet,
		"/api/outlets/demo-tvl/locked-dates?from=2025-03-01&to=2025-03-31", auditor, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[LockedDatesDTO](t, raw).Locked, 5)

	// Today is submitted; the accountant can lock it and close the month.
	status, raw = do(t, srv, http.MethodGet, "/api/outlets/demo-tvl/records/"+testDate, accountant, nil)
	require.Equal(t, http.StatusOK, status)
	rec := decode[DailyRecordDTO](t, raw)
	assert.Equal(t, "submitted", rec.Status)
	assert.True(t, rec.OpeningConfirmed, "baseline should carry from the locked chain")

	status, raw = do(t, srv, http.MethodPost, "/api/outlets/demo-tvl/records/"+testDate+"/lock", accountant, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)

	status, raw = do(t, srv, http.MethodPost, "/api/outlets/demo-tvl/closures/2025-03/close", accountant, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	assert.Equal(t, "closed", decode[ClosureDTO](t, raw).Status)
}

func TestScenarios_SuspiciousWeekTripsEveryDetector(t *testing.T) {
	srv := newTestServer(t)
	loadScenario(t, srv, "suspicious-week")

	status, raw := do(t, srv, http.MethodPost, "/api/outlets/demo-tvl/anomalies/scan?lookback_days=7", accountant, nil)
	require.Equal(t, http.StatusOK, status, "body: %s", raw)
	found := decode[[]AnomalyDTO](t, raw)

	types := make(map[string]bool)
	for _, a := range found {
		types[a.Type] = true
	}
	assert.True(t, types["post_lock_edit"], "found: %+v", found)
	assert.True(t, types["zero_cash_day"], "found: %+v", found)
	assert.True(t, types["high_credit_day"], "found: %+v", found)
}
