package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/calendar"
)

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_UnknownConvention_Rejected(t *testing.T) {
	_, err := calendar.New("ACTUAL_366")
	require.Error(t, err)
	assert.ErrorIs(t, err, calendar.ErrUnknownConvention)
}

func TestNew_AllConventions_Accepted(t *testing.T) {
	for _, conv := range []calendar.Convention{
		calendar.ActualActual, calendar.Actual360, calendar.Actual365,
		calendar.Actual365NL, calendar.Thirty360EU, calendar.Thirty360US,
		calendar.ThirtyActual,
	} {
		_, err := calendar.New(conv)
		assert.NoError(t, err, "convention %s", conv)
	}
}

// =============================================================================
// DAY COUNT INVARIANTS
// =============================================================================

func TestDaysBetween_SameDate_IsZero(t *testing.T) {
	d := calendar.NewDate(2024, time.March, 15)
	for _, conv := range []calendar.Convention{
		calendar.ActualActual, calendar.Actual360, calendar.Actual365,
		calendar.Actual365NL, calendar.Thirty360EU, calendar.Thirty360US,
		calendar.ThirtyActual,
	} {
		cal := calendar.MustNew(conv)
		assert.Zero(t, cal.DaysBetween(d, d), "convention %s", conv)
	}
}

func TestDaysBetween_Antisymmetric(t *testing.T) {
	a := calendar.NewDate(2024, time.January, 31)
	b := calendar.NewDate(2024, time.July, 4)
	for _, conv := range []calendar.Convention{
		calendar.ActualActual, calendar.Actual360, calendar.Actual365,
		calendar.Actual365NL, calendar.Thirty360EU, calendar.Thirty360US,
		calendar.ThirtyActual,
	} {
		cal := calendar.MustNew(conv)
		assert.Equal(t, -cal.DaysBetween(b, a), cal.DaysBetween(a, b), "convention %s", conv)
	}
}

// =============================================================================
// CONVENTION TABLES
// =============================================================================

func TestDaysBetween_ConventionFixtures(t *testing.T) {
	jan1 := calendar.NewDate(2024, time.January, 1)
	feb1 := calendar.NewDate(2024, time.February, 1)

	tests := []struct {
		name       string
		convention calendar.Convention
		from, to   time.Time
		want       int
	}{
		{"30/360 Jan 1 to Feb 1", calendar.Thirty360EU, jan1, feb1, 30},
		{"actual/actual Jan 1 to Feb 1", calendar.ActualActual, jan1, feb1, 31},
		{"actual/360 Jan 1 to Feb 1", calendar.Actual360, jan1, feb1, 31},

		// Leap day handling: 2024-02-28 -> 2024-03-01 spans Feb 29.
		{"actual includes leap day", calendar.ActualActual,
			calendar.NewDate(2024, time.February, 28), calendar.NewDate(2024, time.March, 1), 2},
		{"actual/365 includes leap day", calendar.Actual365,
			calendar.NewDate(2024, time.February, 28), calendar.NewDate(2024, time.March, 1), 2},
		{"actual/365 NL skips leap day", calendar.Actual365NL,
			calendar.NewDate(2024, time.February, 28), calendar.NewDate(2024, time.March, 1), 1},
		{"actual/365 NL skips leap day across years", calendar.Actual365NL,
			calendar.NewDate(2023, time.July, 1), calendar.NewDate(2024, time.July, 1), 365},

		// 30/360 European: both 31sts clamp independently.
		{"30E/360 31st to 31st", calendar.Thirty360EU,
			calendar.NewDate(2024, time.January, 31), calendar.NewDate(2024, time.March, 31), 60},
		{"30E/360 15th to 31st", calendar.Thirty360EU,
			calendar.NewDate(2024, time.January, 15), calendar.NewDate(2024, time.January, 31), 15},

		// 30U/360: end day clamps only when start day was 30/31.
		{"30U/360 15th to 31st keeps 31", calendar.Thirty360US,
			calendar.NewDate(2024, time.January, 15), calendar.NewDate(2024, time.January, 31), 16},
		{"30U/360 31st to 31st", calendar.Thirty360US,
			calendar.NewDate(2024, time.January, 31), calendar.NewDate(2024, time.March, 31), 60},
		{"30U/360 30th to 31st", calendar.Thirty360US,
			calendar.NewDate(2024, time.March, 30), calendar.NewDate(2024, time.May, 31), 60},

		// 30/actual shares the 30-style numerator.
		{"30/actual Jan 1 to Feb 1", calendar.ThirtyActual, jan1, feb1, 30},

		// Full year spans.
		{"30E/360 full year", calendar.Thirty360EU,
			jan1, calendar.NewDate(2025, time.January, 1), 360},
		{"actual full leap year", calendar.ActualActual,
			jan1, calendar.NewDate(2025, time.January, 1), 366},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := calendar.MustNew(tt.convention)
			assert.Equal(t, tt.want, cal.DaysBetween(tt.from, tt.to))
		})
	}
}

// =============================================================================
// DENOMINATORS
// =============================================================================

func TestDaysInYear(t *testing.T) {
	leap := calendar.NewDate(2024, time.June, 1)
	nonLeap := calendar.NewDate(2023, time.June, 1)

	tests := []struct {
		convention calendar.Convention
		reference  time.Time
		want       int
	}{
		{calendar.Actual360, leap, 360}, // unconditional, even in a leap year
		{calendar.Actual360, nonLeap, 360},
		{calendar.Thirty360EU, leap, 360},
		{calendar.Thirty360US, leap, 360},
		{calendar.Actual365, leap, 365},
		{calendar.Actual365NL, leap, 365},
		{calendar.ActualActual, leap, 366},
		{calendar.ActualActual, nonLeap, 365},
		{calendar.ThirtyActual, leap, 366},
		{calendar.ThirtyActual, nonLeap, 365},
	}
	for _, tt := range tests {
		cal := calendar.MustNew(tt.convention).WithReferenceDate(tt.reference)
		assert.Equal(t, tt.want, cal.DaysInYear(), "%s ref %s", tt.convention, tt.reference)
	}
}

func TestDaysInMonth(t *testing.T) {
	feb := calendar.NewDate(2024, time.February, 10)
	jan := calendar.NewDate(2024, time.January, 10)

	assert.Equal(t, 30, calendar.MustNew(calendar.Thirty360EU).DaysInMonth(jan))
	assert.Equal(t, 30, calendar.MustNew(calendar.ThirtyActual).DaysInMonth(feb))
	assert.Equal(t, 31, calendar.MustNew(calendar.ActualActual).DaysInMonth(jan))
	assert.Equal(t, 29, calendar.MustNew(calendar.Actual365).DaysInMonth(feb))
}

// =============================================================================
// MONTH ARITHMETIC
// =============================================================================

func TestAddMonths_ClampsToShorterMonth(t *testing.T) {
	cal := calendar.MustNew(calendar.ActualActual)

	// Jan 31 + 1 month clamps to Feb 29 (leap) / Feb 28 (non-leap).
	assert.Equal(t, calendar.NewDate(2024, time.February, 29),
		cal.AddMonths(calendar.NewDate(2024, time.January, 31), 1))
	assert.Equal(t, calendar.NewDate(2023, time.February, 28),
		cal.AddMonths(calendar.NewDate(2023, time.January, 31), 1))
}

func TestAddMonths_MonthEndStable_ThirtyVariants(t *testing.T) {
	cal := calendar.MustNew(calendar.Thirty360EU)

	// Feb 28 (month-end, non-leap) stays month-end: Mar 31, not Mar 28.
	assert.Equal(t, calendar.NewDate(2023, time.March, 31),
		cal.AddMonths(calendar.NewDate(2023, time.February, 28), 1))
	// Mid-month dates are untouched.
	assert.Equal(t, calendar.NewDate(2023, time.March, 15),
		cal.AddMonths(calendar.NewDate(2023, time.February, 15), 1))
}

func TestAddMonths_NegativeAndYearCarry(t *testing.T) {
	cal := calendar.MustNew(calendar.ActualActual)

	assert.Equal(t, calendar.NewDate(2023, time.November, 15),
		cal.AddMonths(calendar.NewDate(2024, time.January, 15), -2))
	assert.Equal(t, calendar.NewDate(2025, time.January, 15),
		cal.AddMonths(calendar.NewDate(2024, time.November, 15), 2))
}

func TestDateRoundTrip(t *testing.T) {
	d := calendar.NewDate(2024, time.February, 29)
	s := calendar.FormatDate(d)
	assert.Equal(t, "2024-02-29", s)

	parsed, err := calendar.ParseDate(s)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(d))
}
