package ledger

import "time"

// =============================================================================
// DATE RANGE - Inclusive day-granular filter used by balances and reports
// =============================================================================

// DateRange is an inclusive [From, To] range of calendar days.
// A zero From or To leaves that side unbounded.
//
// Examples:
//   - Fiscal year 2025:    {From: 2025-01-01, To: 2025-12-31}
//   - Everything up to a cut-off date: {To: 2025-06-30}
type DateRange struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether the range is unbounded on both sides.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Bounded reports whether both sides are set.
func (r DateRange) Bounded() bool { return !r.From.IsZero() && !r.To.IsZero() }

// Contains returns true if the day of t is within the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	if !r.From.IsZero() && d.Before(Day(r.From)) {
		return false
	}
	if !r.To.IsZero() && d.After(Day(r.To)) {
		return false
	}
	return true
}

// Valid reports whether To is not before From.
func (r DateRange) Valid() bool {
	if !r.Bounded() {
		return true
	}
	return !Day(r.To).Before(Day(r.From))
}

// String returns a string representation of the range.
func (r DateRange) String() string {
	return "[" + formatDay(r.From) + ", " + formatDay(r.To) + "]"
}

// =============================================================================
// DAY HELPERS
// =============================================================================

// DateLayout is the wire and storage format for calendar days.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDate builds a calendar day in UTC.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.Format(DateLayout)
}
