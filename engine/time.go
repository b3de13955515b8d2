package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date abstraction (no time-of-day, always UTC)
// =============================================================================

const DateLayout = "2006-01-02"

// Date is a calendar day. The zero value means "no date".
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// MarshalText renders the ISO form so Date can sit directly in JSON DTOs.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DATE CYCLE - Month-end clamping and cycle arithmetic
// =============================================================================

// RecurrenceKind says how an entry repeats.
type RecurrenceKind string

const (
	RecurrenceNone    RecurrenceKind = "none"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
	RecurrenceYearly  RecurrenceKind = "yearly"
	RecurrenceFixed   RecurrenceKind = "fixed" // unlimited template, replayed by projection
)

// Known reports whether the kind maps to a cycle the engine understands.
func (k RecurrenceKind) Known() bool {
	switch k {
	case RecurrenceNone, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly, RecurrenceFixed:
		return true
	}
	return false
}

// Recurring is true for every kind except none. The empty kind counts as none.
func (k RecurrenceKind) Recurring() bool {
	return k != RecurrenceNone && k != ""
}

// LastDayOf returns the number of days in the month.
func LastDayOf(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDayToMonth returns min(day, last day of year/month).
func ClampDayToMonth(year int, month time.Month, day int) int {
	if last := LastDayOf(year, month); day > last {
		return last
	}
	return day
}

// ClampedDate builds a date in year/month with day clamped to the month length.
// month may be out of [1,12]; it is normalized first so it never rolls by day overflow.
func ClampedDate(year int, month time.Month, day int) Date {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	y, m := first.Year(), first.Month()
	return NewDate(y, m, ClampDayToMonth(y, m, day))
}

// AddMonths advances n calendar months keeping the day, clamped to month end.
// Jan 31 + 1 month is Feb 28/29, never Mar 2/3.
func (d Date) AddMonths(n int) Date {
	return ClampedDate(d.Year(), d.Month()+time.Month(n), d.Day())
}

// AddYears advances n years; Feb 29 lands on Feb 28 in non-leap years.
func (d Date) AddYears(n int) Date {
	return ClampedDate(d.Year()+n, d.Month(), d.Day())
}

// AddCycles advances date by n cycles of kind. Weekly is 7n days, yearly is n
// years, and monthly (also the fallback for fixed and unrecognized kinds) is n
// months with the day clamped.
func AddCycles(date Date, kind RecurrenceKind, n int) Date {
	switch kind {
	case RecurrenceWeekly:
		return date.AddDays(7 * n)
	case RecurrenceYearly:
		return date.AddYears(n)
	default:
		return date.AddMonths(n)
	}
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween returns to - from in whole days (negative when to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month, LastDayOf(year, month))
}
