/*
permission.go - Role x time x lock-state decision

PURPOSE:
  The single place deciding whether a ledger entry may be edited in place,
  corrected via reversal, or only viewed. The original system scattered
  this as ad-hoc conditionals across call sites; here every caller consumes
  the one Decide function, so the rules cannot drift.

CRITICAL INVARIANT:
  No role can mutate a transaction belonging to a locked day in place.
  The only path to correction past a lock is a reversal (reversal.go).

DECISION ORDER (first matching rule wins):
  1. auditor            -> view only, always
  2. day locked         -> privileged roles may reverse; everyone else views
  3. outlet staff/mgr   -> direct edit on today's business day only
  4. privileged roles   -> edit while draft, reverse once submitted
*/
package ledger

import "fmt"

// Action is the tagged result of a permission decision. Modeling this as a
// closed type (rather than a bool plus free text) keeps illegal states
// unrepresentable for callers switching on it.
type Action string

const (
	ActionEdit     Action = "edit"
	ActionReverse  Action = "reverse"
	ActionViewOnly Action = "view_only"
)

// Decision is the outcome of Decide. Reason is human-readable context for
// the UI; Action is the machine-binding part.
type Decision struct {
	Allowed bool
	Action  Action
	Reason  string
}

// Decide determines what the actor may do with a transaction on the given
// business day. Pure function, no I/O: the caller supplies the record's
// lock state and status plus today's business date.
func Decide(businessDate Date, role Role, dayLocked bool, status RecordStatus, today Date) Decision {
	// Rule 1: auditors never act, regardless of any other input.
	if role == RoleAuditor {
		return Decision{Allowed: false, Action: ActionViewOnly, Reason: "auditor: view only access"}
	}

	// Rule 2: once the day is locked, only privileged roles act, and only
	// via reversal.
	if dayLocked {
		if role.Privileged() {
			return Decision{Allowed: true, Action: ActionReverse, Reason: "day is locked; corrections post as reversals"}
		}
		return Decision{Allowed: false, Action: ActionViewOnly, Reason: "day is locked"}
	}

	// Rule 3: outlet roles may directly mutate same-day entries while the
	// record is still draft/submitted.
	if role.OutletRole() {
		if businessDate.Equal(today) {
			return Decision{Allowed: true, Action: ActionEdit, Reason: "within same-day edit window"}
		}
		return Decision{
			Allowed: false,
			Action:  ActionViewOnly,
			Reason:  fmt.Sprintf("edit window expired (window: %s)", EditWindowDescription(role)),
		}
	}

	// Rule 4: privileged roles edit drafts in place, but never silently
	// mutate a submitted entry; once other parties may rely on the posted
	// figures they post a correction instead.
	if role.Privileged() {
		if status == StatusDraft {
			return Decision{Allowed: true, Action: ActionEdit, Reason: "record still in draft"}
		}
		return Decision{Allowed: true, Action: ActionReverse, Reason: "record submitted; corrections post as reversals"}
	}

	return Decision{Allowed: false, Action: ActionViewOnly, Reason: fmt.Sprintf("unknown role %q", role)}
}
