/*
scheduler.go - Automated anomaly scan scheduler

PURPOSE:
  Periodically runs the anomaly detectors over every outlet's recent
  ledger so irregularities surface without anyone pressing the scan
  button on the dashboard.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans each outlet over a short lookback window
  - Re-detection of an already-open anomaly is a no-op, so repeated
    sweeps never duplicate findings
  - A failing outlet is logged and skipped; the sweep continues

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - LookbackDays:  Window each sweep covers (default: 7)
  - Enabled:       Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewScanScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ScanAnomalies endpoint (manual sweep)
  - ledger/anomaly.go: The detectors themselves
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sahakar/ledger-engine/ledger"
)

// ScanScheduler sweeps every outlet's recent ledger for anomalies.
type ScanScheduler struct {
	Store         ledger.Store
	Scanner       *ledger.Scanner
	Log           *logrus.Logger
	CheckInterval time.Duration
	LookbackDays  int
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScanScheduler creates a scheduler over the handler's store and scanner.
func NewScanScheduler(h *Handler) *ScanScheduler {
	return &ScanScheduler{
		Store:         h.Store,
		Scanner:       h.Scanner,
		Log:           h.Log,
		CheckInterval: time.Hour,
		LookbackDays:  7,
		Enabled:       true,
	}
}

// Start launches the background sweep loop.
func (s *ScanScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	if s.Log != nil {
		s.Log.WithField("interval", s.CheckInterval.String()).Info("anomaly scan scheduler started")
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *ScanScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
}

// run receives the ticker and stop channel as arguments. Stop nils the
// struct fields to mark the scheduler stopped, so the loop must never
// read them back.
func (s *ScanScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// First sweep immediately; the ticker covers the rest.
	s.sweep()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs the detectors over every outlet. Used by the loop; also
// callable directly for a synchronous one-shot sweep.
func (s *ScanScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	outlets, err := s.Store.ListOutlets(ctx)
	if err != nil {
		if s.Log != nil {
			s.Log.WithError(err).Error("scheduled scan: listing outlets failed")
		}
		return
	}

	for _, o := range outlets {
		if !o.Active {
			continue
		}
		found, err := s.Scanner.Scan(ctx, o.ID, s.LookbackDays)
		if err != nil {
			if s.Log != nil {
				s.Log.WithError(err).WithField("outlet_id", o.ID).Error("scheduled scan failed")
			}
			continue
		}
		if len(found) > 0 && s.Log != nil {
			s.Log.WithFields(logrus.Fields{
				"outlet_id": o.ID,
				"open":      len(found),
			}).Info("scheduled scan finished")
		}
	}
}
