/*
Package calendar implements day-count convention arithmetic.

PURPOSE:
  Every interest accrual in the engine is a function of "how many days
  passed between two dates", and the answer depends on the market
  convention in force, not just the wall calendar. This package owns that
  arithmetic: signed day counts, convention-aware month addition, and the
  year/month denominators used to annualize rates.

KEY CONCEPTS:
  - Convention: which day-count rule applies (ACTUAL_ACTUAL, 30/360 EU, ...)
  - Calendar: a stateless value pairing a convention with a reference date
    (the reference date only matters for conventions whose year length
    depends on leap status)

INVARIANTS:
  - DaysBetween(d, d) == 0 for every convention
  - DaysBetween(a, b) == -DaysBetween(b, a)
  - Dates are day-granular: time-of-day and zone are normalized away

SEE ALSO:
  - interest: consumes DaysBetween/DaysInYear for accrual math
  - amort: resolves a per-period Calendar (primary or TermCalendar override)
*/
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// CONVENTION - Day-count rule identifiers
// =============================================================================

type Convention string

const (
	ActualActual Convention = "ACTUAL_ACTUAL"
	Actual360    Convention = "ACTUAL_360"
	Actual365    Convention = "ACTUAL_365"
	Actual365NL  Convention = "ACTUAL_365_NL" // no-leap: Feb 29 is skipped entirely
	Thirty360EU  Convention = "THIRTY_360_EU"
	Thirty360US  Convention = "THIRTY_360_US"
	ThirtyActual Convention = "THIRTY_ACTUAL"
)

// ErrUnknownConvention is returned by New for an unrecognized convention.
// This is a configuration error: fatal at construction, never retried.
var ErrUnknownConvention = errors.New("unknown day-count convention")

func (c Convention) valid() bool {
	switch c {
	case ActualActual, Actual360, Actual365, Actual365NL, Thirty360EU, Thirty360US, ThirtyActual:
		return true
	}
	return false
}

// =============================================================================
// CALENDAR - Convention + reference date
// =============================================================================

// Calendar performs day-count arithmetic under a single convention.
// The zero value is not valid; construct via New.
type Calendar struct {
	convention Convention
	reference  time.Time
}

// New builds a Calendar for the given convention.
func New(convention Convention) (Calendar, error) {
	if !convention.valid() {
		return Calendar{}, fmt.Errorf("%w: %q", ErrUnknownConvention, convention)
	}
	return Calendar{convention: convention}, nil
}

// MustNew is New for known-good conventions; it panics on error.
// Intended for tests and static configuration.
func MustNew(convention Convention) Calendar {
	c, err := New(convention)
	if err != nil {
		panic(err)
	}
	return c
}

// WithReferenceDate returns a copy anchored at the given date. The reference
// date drives DaysInYear for conventions whose year length tracks leap status
// (ACTUAL_ACTUAL, THIRTY_ACTUAL).
func (c Calendar) WithReferenceDate(d time.Time) Calendar {
	return Calendar{convention: c.convention, reference: Midnight(d)}
}

func (c Calendar) Convention() Convention { return c.convention }
func (c Calendar) ReferenceDate() time.Time { return c.reference }

// =============================================================================
// DAY COUNTING
// =============================================================================

// DaysBetween returns the signed day count from a to b under the convention.
func (c Calendar) DaysBetween(a, b time.Time) int {
	a, b = Midnight(a), Midnight(b)
	if b.Before(a) {
		return -c.daysForward(b, a)
	}
	return c.daysForward(a, b)
}

// daysForward assumes a <= b.
func (c Calendar) daysForward(a, b time.Time) int {
	switch c.convention {
	case Thirty360EU:
		return thirtyNumerator(a, b, false)
	case Thirty360US:
		return thirtyNumerator(a, b, true)
	case ThirtyActual:
		// 30-style numerator, actual-style denominator (see DaysInYear).
		return thirtyNumerator(a, b, false)
	case Actual365NL:
		return actualDays(a, b) - leapDaysIn(a, b)
	default:
		// ACTUAL_ACTUAL, ACTUAL_360, ACTUAL_365: actual calendar days,
		// Feb 29 included in the numerator.
		return actualDays(a, b)
	}
}

// thirtyNumerator computes 360*(y2-y1) + 30*(m2-m1) + (d2'-d1').
//
// European rule: both day-of-month values clamp to 30 independently.
// US/NASD rule: the end day clamps to 30 only when the start day has
// already clamped to 30 (i.e. the start fell on day 30 or 31).
func thirtyNumerator(a, b time.Time, us bool) int {
	d1, d2 := a.Day(), b.Day()
	if us {
		if d1 == 31 {
			d1 = 30
		}
		if d2 == 31 && d1 == 30 {
			d2 = 30
		}
	} else {
		if d1 > 30 {
			d1 = 30
		}
		if d2 > 30 {
			d2 = 30
		}
	}
	years := b.Year() - a.Year()
	months := int(b.Month()) - int(a.Month())
	return 360*years + 30*months + (d2 - d1)
}

func actualDays(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// leapDaysIn counts Feb 29 occurrences in (a, b].
func leapDaysIn(a, b time.Time) int {
	count := 0
	for year := a.Year(); year <= b.Year(); year++ {
		if !IsLeapYear(year) {
			continue
		}
		feb29 := time.Date(year, time.February, 29, 0, 0, 0, 0, time.UTC)
		if feb29.After(a) && !feb29.After(b) {
			count++
		}
	}
	return count
}

// =============================================================================
// DENOMINATORS
// =============================================================================

// DaysInYear returns the annualization denominator for the convention.
// ACTUAL_360 reports 360 unconditionally, regardless of leap status.
func (c Calendar) DaysInYear() int {
	switch c.convention {
	case Actual360, Thirty360EU, Thirty360US:
		return 360
	case Actual365, Actual365NL:
		return 365
	default:
		// ACTUAL_ACTUAL, THIRTY_ACTUAL: track the reference date's year.
		if IsLeapYear(c.reference.Year()) {
			return 366
		}
		return 365
	}
}

// DaysInMonth returns 30 for THIRTY variants, otherwise the actual month length.
func (c Calendar) DaysInMonth(d time.Time) int {
	switch c.convention {
	case Thirty360EU, Thirty360US, ThirtyActual:
		return 30
	}
	return LastDayOfMonth(d.Year(), d.Month())
}

// =============================================================================
// DATE ARITHMETIC
// =============================================================================

// AddMonths advances a date by n months, clamping the day-of-month to the last
// valid day when the target month is shorter. Under THIRTY variants a
// month-end date stays month-end (Feb 28 + 1 month = Mar 31, not Mar 28),
// which keeps 30/360 period boundaries stable across February.
func (c Calendar) AddMonths(d time.Time, n int) time.Time {
	d = Midnight(d)
	year, month := d.Year(), int(d.Month())

	month += n
	// Normalize month into [1,12], carrying into years.
	year += (month - 1) / 12
	month = (month-1)%12 + 1
	if month <= 0 {
		month += 12
		year--
	}

	targetLast := LastDayOfMonth(year, time.Month(month))
	day := d.Day()

	switch c.convention {
	case Thirty360EU, Thirty360US, ThirtyActual:
		if d.Day() == LastDayOfMonth(d.Year(), d.Month()) {
			day = targetLast
		}
	}
	if day > targetLast {
		day = targetLast
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// DATE HELPERS
// =============================================================================

// NewDate builds a day-granular UTC date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Midnight normalizes a timestamp to a day-granular UTC date.
func Midnight(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}

// FormatDate renders a date as an ISO-8601 calendar date (no time component).
// All serialized engine state uses this form.
func FormatDate(d time.Time) string { return Midnight(d).Format("2006-01-02") }

// ParseDate parses an ISO-8601 calendar date.
func ParseDate(s string) (time.Time, error) { return time.Parse("2006-01-02", s) }
