/*
sequence.go - Per-outlet sequence allocation and reconciliation

PURPOSE:
  Issues the per-outlet monotonic numbers embedded in entry and customer
  display ids, and repairs counters that have fallen behind the persisted
  data (a failure mode of the pre-engine system, where a client-side race
  handed the same number to two writers).

GUARANTEES:
  - Uniqueness and monotonicity per (outlet, kind): the store serializes
    AllocateSequence, so no two callers ever receive the same number.
  - Gaps are acceptable. A number consumed by a transaction that later
    failed to persist is simply skipped; continuity is not a goal.
  - Reconciliation only ever raises a counter. A counter ahead of the data
    is left alone.
*/
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FormatEntryNumber renders an allocated entry sequence as the outlet's
// display id, e.g. "HP-TVL-00042".
func FormatEntryNumber(outletCode string, seq int64) string {
	return fmt.Sprintf("%s-%05d", outletCode, seq)
}

// FormatCustomerNumber renders a customer sequence, e.g. "HP-TVL-C00007".
func FormatCustomerNumber(outletCode string, seq int64) string {
	return fmt.Sprintf("%s-C%05d", outletCode, seq)
}

// ParseEntrySeq extracts the trailing integer from a display id. Returns
// false for ids with no numeric tail.
func ParseEntrySeq(entryNumber string) (int64, bool) {
	idx := strings.LastIndex(entryNumber, "-")
	if idx < 0 || idx == len(entryNumber)-1 {
		return 0, false
	}
	tail := entryNumber[idx+1:]
	tail = strings.TrimPrefix(tail, "C")
	seq, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// SequenceAllocator issues display numbers and reconciles counters against
// the persisted ledger.
type SequenceAllocator struct {
	Counters CounterStore
	Txs      TransactionStore
	Audit    AuditLog
	Clock    Clock
	Log      *logrus.Logger
}

func NewSequenceAllocator(store Store, log *logrus.Logger) *SequenceAllocator {
	return &SequenceAllocator{Counters: store, Txs: store, Audit: store, Clock: SystemClock{}, Log: log}
}

// Next allocates the next raw sequence number of the given kind.
func (a *SequenceAllocator) Next(ctx context.Context, outletID OutletID, kind CounterKind) (int64, error) {
	seq, err := a.Counters.AllocateSequence(ctx, outletID, kind)
	if err != nil {
		return 0, fmt.Errorf("allocate %s sequence for %s: %w", kind, outletID, err)
	}
	return seq, nil
}

// NextEntryNumber allocates and formats the next entry display id.
func (a *SequenceAllocator) NextEntryNumber(ctx context.Context, outlet Outlet) (string, error) {
	seq, err := a.Next(ctx, outlet.ID, CounterEntry)
	if err != nil {
		return "", err
	}
	return FormatEntryNumber(outlet.Code, seq), nil
}

// NextCustomerNumber allocates and formats the next customer display id.
func (a *SequenceAllocator) NextCustomerNumber(ctx context.Context, outlet Outlet) (string, error) {
	seq, err := a.Next(ctx, outlet.ID, CounterCustomer)
	if err != nil {
		return "", err
	}
	return FormatCustomerNumber(outlet.Code, seq), nil
}

// ReconcileCounters scans every persisted entry number for the outlet and
// raises the entry counter above the maximum sequence found. Run at
// startup and on demand; a repair is audited.
func (a *SequenceAllocator) ReconcileCounters(ctx context.Context, outletID OutletID, actorID string) (bool, error) {
	numbers, err := a.Txs.EntryNumbers(ctx, outletID)
	if err != nil {
		return false, fmt.Errorf("load entry numbers for %s: %w", outletID, err)
	}

	var max int64
	for _, n := range numbers {
		if seq, ok := ParseEntrySeq(n); ok && seq > max {
			max = seq
		}
	}
	if max == 0 {
		return false, nil
	}

	raised, err := a.Counters.RaiseCounter(ctx, outletID, CounterEntry, max+1)
	if err != nil {
		return false, fmt.Errorf("raise entry counter for %s: %w", outletID, err)
	}
	if !raised {
		return false, nil
	}

	if a.Log != nil {
		a.Log.WithFields(logrus.Fields{
			"outlet_id": outletID,
			"raised_to": max + 1,
		}).Warn("entry counter was behind persisted data, repaired")
	}

	entry := AuditEntry{
		ID:         uuid.NewString(),
		At:         a.Clock.Now(),
		ActorID:    actorID,
		Action:     AuditCounterRepaired,
		OutletID:   outletID,
		EntityType: "outlet_counter",
		EntityID:   string(outletID),
		Severity:   AuditInfo,
		Reason:     "counter behind persisted entry numbers",
		Details:    map[string]any{"raised_to": max + 1},
	}
	if err := a.Audit.AppendAudit(ctx, entry); err != nil {
		return true, fmt.Errorf("audit counter repair for %s: %w", outletID, err)
	}
	return true, nil
}
