package ledger_test

import (
	"testing"
	"time"

	"github.com/sahakar/ledger-engine/ledger"
)

// =============================================================================
// PERMISSION DECISIONS - Role x time x lock-state matrix
// =============================================================================

func TestDecide_AuditorIsAlwaysViewOnly(t *testing.T) {
	today := date(2025, time.March, 10)

	// GIVEN: an auditor, in every combination of lock state and status
	for _, locked := range []bool{true, false} {
		for _, status := range []ledger.RecordStatus{ledger.StatusDraft, ledger.StatusSubmitted, ledger.StatusLocked} {
			// WHEN: asking what the auditor may do, even on today's entries
			d := ledger.Decide(today, ledger.RoleAuditor, locked, status, today)

			// THEN: view only, always
			if d.Allowed || d.Action != ledger.ActionViewOnly {
				t.Errorf("locked=%v status=%s: auditor got %+v", locked, status, d)
			}
		}
	}
}

func TestDecide_LockedDayBlocksDirectEditsForEveryRole(t *testing.T) {
	today := date(2025, time.March, 10)

	roles := []ledger.Role{
		ledger.RoleOutletStaff, ledger.RoleOutletManager,
		ledger.RoleHOAccountant, ledger.RoleMasterAdmin, ledger.RoleSuperAdmin,
		ledger.RoleAuditor,
	}
	for _, role := range roles {
		// WHEN: the day is locked
		d := ledger.Decide(today, role, true, ledger.StatusLocked, today)

		// THEN: nobody gets a direct edit; privileged roles get reversal only
		if d.Action == ledger.ActionEdit {
			t.Errorf("%s: got direct edit on a locked day", role)
		}
		if role.Privileged() && (!d.Allowed || d.Action != ledger.ActionReverse) {
			t.Errorf("%s: privileged role should reverse on a locked day, got %+v", role, d)
		}
		if !role.Privileged() && d.Allowed {
			t.Errorf("%s: non-privileged role allowed on a locked day: %+v", role, d)
		}
	}
}

func TestDecide_OutletRolesEditSameDayOnly(t *testing.T) {
	today := date(2025, time.March, 10)
	yesterday := date(2025, time.March, 9)

	for _, role := range []ledger.Role{ledger.RoleOutletStaff, ledger.RoleOutletManager} {
		// GIVEN: an unlocked same-day entry
		d := ledger.Decide(today, role, false, ledger.StatusDraft, today)
		// THEN: direct edit
		if !d.Allowed || d.Action != ledger.ActionEdit {
			t.Errorf("%s same-day: expected edit, got %+v", role, d)
		}

		// GIVEN: yesterday's entry, still unlocked
		d = ledger.Decide(yesterday, role, false, ledger.StatusSubmitted, today)
		// THEN: the window is gone even though nothing is locked
		if d.Allowed || d.Action != ledger.ActionViewOnly {
			t.Errorf("%s yesterday: expected view only, got %+v", role, d)
		}
	}
}

func TestDecide_PrivilegedEditDraftReverseSubmitted(t *testing.T) {
	today := date(2025, time.March, 10)
	lastWeek := date(2025, time.March, 3)

	for _, role := range []ledger.Role{ledger.RoleHOAccountant, ledger.RoleMasterAdmin, ledger.RoleSuperAdmin} {
		// GIVEN: a draft record from last week
		d := ledger.Decide(lastWeek, role, false, ledger.StatusDraft, today)
		// THEN: drafts are still freely editable
		if !d.Allowed || d.Action != ledger.ActionEdit {
			t.Errorf("%s draft: expected edit, got %+v", role, d)
		}

		// GIVEN: the record is submitted
		d = ledger.Decide(lastWeek, role, false, ledger.StatusSubmitted, today)
		// THEN: corrections go through reversals, not silent edits
		if !d.Allowed || d.Action != ledger.ActionReverse {
			t.Errorf("%s submitted: expected reverse, got %+v", role, d)
		}
	}
}

func TestDecide_UnknownRoleDenied(t *testing.T) {
	today := date(2025, time.March, 10)
	d := ledger.Decide(today, ledger.Role("intern"), false, ledger.StatusDraft, today)
	if d.Allowed {
		t.Errorf("unknown role allowed: %+v", d)
	}
}
