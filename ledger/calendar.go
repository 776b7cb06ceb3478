package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day value type (ledger attribution key)
// =============================================================================

// Date is a timezone-free calendar day. Business attribution works in
// whole days; instants only matter at the calendar boundary below.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	// Normalize through time.Date so callers can pass e.g. day 0.
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

func (d Date) Before(other Date) bool { return d.Time(time.UTC).Before(other.Time(time.UTC)) }
func (d Date) After(other Date) bool  { return d.Time(time.UTC).After(other.Time(time.UTC)) }
func (d Date) Equal(other Date) bool  { return d == other }
func (d Date) IsZero() bool           { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// MONTH
// =============================================================================

type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(d Date) Month { return Month{Year: d.Year, Month: d.Month} }

func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// First returns the first day of the month.
func (m Month) First() Date { return NewDate(m.Year, m.Month, 1) }

// Last returns the last day of the month.
func (m Month) Last() Date { return NewDate(m.Year, m.Month+1, 0) }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// =============================================================================
// CLOCK - Explicit time source so time-dependent rules are testable
// =============================================================================

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At }

// =============================================================================
// CALENDAR - Business-day mapping and operating-hours gate
// =============================================================================

// The operational day runs 07:00 to 02:00 the next calendar day, a
// 19-hour window. Instants from 02:00 to 06:59 belong to no business day:
// the system is closed and writes are rejected.
const (
	dayOpenHour  = 7
	dayCloseHour = 2
)

// DefaultTimezone is where the outlets operate (IST).
const DefaultTimezone = "Asia/Kolkata"

// Calendar maps wall-clock instants to business days for one timezone.
type Calendar struct {
	Location *time.Location
	Clock    Clock
}

// NewCalendar builds a calendar for the given IANA timezone name. An empty
// name or unknown zone falls back to DefaultTimezone; a nil clock falls
// back to the system clock.
func NewCalendar(tz string, clock Clock) *Calendar {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Calendar{Location: loc, Clock: clock}
}

// DayOf returns the business day an instant is attributed to. Attribution
// is total: hours before the 07:00 open (including the closed gap) belong
// to the previous calendar date's business day. Whether a write is
// currently allowed is a separate question; see IsOperating.
func (c *Calendar) DayOf(t time.Time) Date {
	local := t.In(c.Location)
	if local.Hour() < dayOpenHour {
		return DateOf(local.AddDate(0, 0, -1))
	}
	return DateOf(local)
}

// IsOperating reports whether the instant falls inside the 07:00-02:00
// operating window. Also used to force session termination for time-boxed
// roles outside the window.
func (c *Calendar) IsOperating(t time.Time) bool {
	hour := t.In(c.Location).Hour()
	return hour >= dayOpenHour || hour < dayCloseHour
}

// BusinessDate is the write-path mapping: it rejects instants in the
// 02:00-06:59 blackout with OperatingHoursClosed and otherwise returns
// the attributed business day.
func (c *Calendar) BusinessDate(t time.Time) (Date, error) {
	if !c.IsOperating(t) {
		return Date{}, ErrOperatingHoursClosed
	}
	return c.DayOf(t), nil
}

// Today returns the current business day, rejecting the blackout window.
func (c *Calendar) Today() (Date, error) {
	return c.BusinessDate(c.Clock.Now())
}

// =============================================================================
// EDIT WINDOWS - UI messaging only; the binding decision is permission.go
// =============================================================================

// roleEditWindowHours mirrors the operational policy: how long each role
// retains raw-edit rights after an entry's business day.
var roleEditWindowHours = map[Role]int{
	RoleOutletStaff:   24,
	RoleOutletManager: 24 * 7,
	RoleHOAccountant:  24 * 30,
	RoleMasterAdmin:   24 * 365,
	RoleSuperAdmin:    24 * 365,
	RoleAuditor:       0,
}

// EditWindowDescription returns a static human-readable description of a
// role's edit window, for UI messaging.
func EditWindowDescription(role Role) string {
	hours := roleEditWindowHours[role]
	switch {
	case hours == 0:
		return "view only"
	case hours == 24:
		return "24 hours"
	case hours < 24*365:
		return fmt.Sprintf("%d days", hours/24)
	default:
		return "1 year"
	}
}
