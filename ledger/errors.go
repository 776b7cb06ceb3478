/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  Every operation that fails validation returns one of these errors, each
  with a stable code. Callers (HTTP handlers, CLIs) map codes to their own
  transport-level statuses; the engine never hides a failure behind a
  generic error.

PROPAGATION POLICY:
  All errors here surface to the caller verbatim. The only intentionally
  swallowed failure class is the external-sync notification after a
  committed lock/reversal, which is logged with full context instead.

SEE ALSO:
  - permission.go: builds PermissionError with enough context for the UI
    to explain WHY an action is blocked
  - store/sqlite:  translates driver failures into these sentinels
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input: reason too short,
	// missing opening balances, non-positive amounts, bad splits.
	ErrValidation = errors.New("validation error")

	// ErrForbidden is returned when role or lock state disallows the
	// requested action.
	ErrForbidden = errors.New("forbidden")

	// ErrOperatingHoursClosed is returned for writes attempted during the
	// 02:00-07:00 blackout, when no business day is open.
	ErrOperatingHoursClosed = errors.New("outside operating hours (07:00-02:00)")

	// ErrConflict is returned when a concurrent lifecycle transition is in
	// flight, or a month cannot close because days are unlocked.
	ErrConflict = errors.New("conflict")

	// ErrDuplicateReversal is returned when the original transaction has
	// already been reversed.
	ErrDuplicateReversal = errors.New("duplicate reversal")

	// ErrNotFound is returned when a referenced record or transaction is
	// absent.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable is returned when the underlying store fails;
	// transitions are never left half-applied.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Code returns the stable machine-readable code for an engine error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrOperatingHoursClosed):
		return "operating_hours_closed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDuplicateReversal):
		return "duplicate_reversal"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PermissionError explains a blocked action: current lock state, role, and
// the permission engine's reason, so the UI can say why, not just that.
type PermissionError struct {
	Role         Role
	BusinessDate Date
	DayLocked    bool
	Reason       string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied for %s on %s: %s", e.Role, e.BusinessDate, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrForbidden }

// ConflictError describes a rejected lifecycle transition.
type ConflictError struct {
	Entity  string // "daily_record" or "monthly_closure"
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the failure is due to the caller's input
// or the current state, rather than the engine or store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrOperatingHoursClosed) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateReversal)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
