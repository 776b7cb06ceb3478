/*
scheduler_test.go - Unit tests for the anomaly scan scheduler

PURPOSE:
	Tests the scheduler's lifecycle: start/stop idempotence and a clean
	shutdown while a sweep is still running against the store.
*/
package api

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sahakar/ledger-engine/ledger"
	"github.com/sahakar/ledger-engine/ledger/store"
)

// stallingStore holds the first outlet listing open until released, keeping
// a sweep in flight for as long as the test needs.
type stallingStore struct {
	ledger.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingStore) ListOutlets(ctx context.Context) ([]ledger.Outlet, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.ListOutlets(ctx)
}

func newStalledScheduler(t *testing.T) (*ScanScheduler, *stallingStore) {
	t.Helper()
	slow := &stallingStore{
		Store:   store.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	cal := ledger.NewCalendar("Asia/Kolkata", ledger.FixedClock{
		At: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)),
	})
	return &ScanScheduler{
		Store:         slow,
		Scanner:       ledger.NewScanner(slow, cal, log),
		Log:           log,
		CheckInterval: time.Millisecond,
		LookbackDays:  1,
		Enabled:       true,
	}, slow
}

func TestScheduler_StopDuringSweepShutsDownCleanly(t *testing.T) {
	// GIVEN: a running scheduler whose first sweep is blocked in the store,
	// with a tick interval short enough that ticks pile up behind it
	sched, slow := newStalledScheduler(t)
	sched.Start()
	<-slow.entered

	// WHEN: Stop races the in-flight sweep
	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	close(slow.release)

	// THEN: the loop drains and Stop returns without panicking
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not shut down")
	}

	// AND: a second Stop is a no-op
	sched.Stop()
}

func TestScheduler_DisabledStartIsNoop(t *testing.T) {
	sched, slow := newStalledScheduler(t)
	sched.Enabled = false
	sched.Start()

	// No sweep ever runs, so the store is never entered.
	select {
	case <-slow.entered:
		t.Fatal("disabled scheduler ran a sweep")
	case <-time.After(20 * time.Millisecond):
	}
	sched.Stop()
}
