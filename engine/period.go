package engine

import "time"

// =============================================================================
// PERIOD - Inclusive date window
// =============================================================================

// Period is an inclusive [Start, End] window of calendar days. Billing cycles
// and projection months are both periods.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Contains returns true if the date is within the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns the number of days covered, both ends included.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// MonthPeriod returns the calendar month containing d.
func MonthPeriod(d Date) Period {
	return MonthOf(d.Year(), d.Month())
}

// MonthOf returns the calendar month year/month. month is normalized, so
// MonthOf(2024, 13) is January 2025.
func MonthOf(year int, month time.Month) Period {
	start := ClampedDate(year, month, 1)
	return Period{Start: start, End: EndOfMonth(start.Year(), start.Month())}
}

// NextMonth returns the calendar month after the one p starts in.
func (p Period) NextMonth() Period {
	return MonthOf(p.Start.Year(), p.Start.Month()+1)
}
