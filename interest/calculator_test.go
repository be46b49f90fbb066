package interest_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/calendar"
	"github.com/warp/lending-engine/interest"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// =============================================================================
// ACCRUAL
// =============================================================================

func TestInterestBetween_Actual365(t *testing.T) {
	// GIVEN: 10,000 at 5% under actual/365
	// WHEN: accruing over 30 actual days
	// THEN: interest = 10000 * 0.05 * 30/365
	cal := calendar.MustNew(calendar.Actual365)
	calc := interest.NewCalculator(dec("0.05"), cal)

	start := calendar.NewDate(2023, time.March, 1)
	end := calendar.NewDate(2023, time.March, 31)

	want := dec("10000").Mul(dec("0.05")).Mul(decimal.NewFromInt(30)).Div(decimal.NewFromInt(365))
	got := calc.InterestBetween(dec("10000"), start, end)
	assert.True(t, want.Equal(got), "want %s got %s", want, got)
}

func TestInterestBetween_Thirty360_FullMonthIs30Days(t *testing.T) {
	cal := calendar.MustNew(calendar.Thirty360EU)
	calc := interest.NewCalculator(dec("0.12"), cal)

	// 30/360 makes every month 1/12 of a year: 1000 * 0.12 * 30/360 = 10.
	got := calc.InterestBetween(dec("1000"),
		calendar.NewDate(2024, time.January, 1), calendar.NewDate(2024, time.February, 1))
	assert.True(t, dec("10").Equal(got), "got %s", got)
}

func TestInterestBetween_ZeroSpan_IsZero(t *testing.T) {
	calc := interest.NewCalculator(dec("0.05"), calendar.MustNew(calendar.ActualActual))
	d := calendar.NewDate(2023, time.June, 1)
	assert.True(t, calc.InterestBetween(dec("5000"), d, d).IsZero())
}

// =============================================================================
// MONTHLY-RATE MODE
// =============================================================================

func TestMonthlyRateMode_RequiresPositiveDaysInMonth(t *testing.T) {
	cal := calendar.MustNew(calendar.ActualActual)

	_, err := interest.NewMonthlyRateCalculator(dec("0.06"), cal, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, interest.ErrInvalidDaysInMonth)

	_, err = interest.NewMonthlyRateCalculator(dec("0.06"), cal, -5)
	assert.ErrorIs(t, err, interest.ErrInvalidDaysInMonth)
}

func TestMonthlyRateMode_PerDiem(t *testing.T) {
	cal := calendar.MustNew(calendar.ActualActual)
	calc, err := interest.NewMonthlyRateCalculator(dec("0.12"), cal, 30)
	require.NoError(t, err)

	// perDiem = 3000 * (0.12/12) / 30 = 1
	got := calc.PerDiem(dec("3000"))
	assert.True(t, dec("1").Equal(got), "got %s", got)
}

// =============================================================================
// PAYMENT SPLIT
// =============================================================================

func TestPaymentSplit_InterestFirst(t *testing.T) {
	cal := calendar.MustNew(calendar.Thirty360EU)
	calc := interest.NewCalculator(dec("0.12"), cal)
	start := calendar.NewDate(2024, time.January, 1)
	end := calendar.NewDate(2024, time.February, 1)

	// Interest owed = 10; payment 100 leaves 90 principal.
	split := calc.PaymentSplit(dec("1000"), start, end, dec("100"), decimal.Zero)
	assert.True(t, dec("10").Equal(split.Interest), "interest %s", split.Interest)
	assert.True(t, dec("90").Equal(split.Principal), "principal %s", split.Principal)
	assert.True(t, split.RemainingDeferred.IsZero())
}

func TestPaymentSplit_CapBelowInterest_Defers(t *testing.T) {
	cal := calendar.MustNew(calendar.Thirty360EU)
	calc := interest.NewCalculator(dec("0.12"), cal)
	start := calendar.NewDate(2024, time.January, 1)
	end := calendar.NewDate(2024, time.February, 1)

	// Interest owed = 10; cap of 4 pays interest only, 6 defers.
	split := calc.PaymentSplit(dec("1000"), start, end, dec("4"), decimal.Zero)
	assert.True(t, split.Principal.IsZero())
	assert.True(t, dec("4").Equal(split.Interest))
	assert.True(t, dec("6").Equal(split.RemainingDeferred), "deferred %s", split.RemainingDeferred)
}

func TestPaymentSplit_ZeroCap_DefersEverything(t *testing.T) {
	// Skip-a-pay: explicit zero payment defers all accrued interest.
	cal := calendar.MustNew(calendar.Thirty360EU)
	calc := interest.NewCalculator(dec("0.12"), cal)
	start := calendar.NewDate(2024, time.January, 1)
	end := calendar.NewDate(2024, time.February, 1)

	split := calc.PaymentSplit(dec("1000"), start, end, decimal.Zero, dec("2.50"))
	assert.True(t, split.Principal.IsZero())
	assert.True(t, split.Interest.IsZero())
	assert.True(t, dec("12.50").Equal(split.RemainingDeferred), "deferred %s", split.RemainingDeferred)
}

func TestPaymentSplit_CarriedDeferredPaidWithCurrent(t *testing.T) {
	cal := calendar.MustNew(calendar.Thirty360EU)
	calc := interest.NewCalculator(dec("0.12"), cal)
	start := calendar.NewDate(2024, time.January, 1)
	end := calendar.NewDate(2024, time.February, 1)

	// Owed = 10 current + 5 deferred = 15; payment 100 leaves 85 principal.
	split := calc.PaymentSplit(dec("1000"), start, end, dec("100"), dec("5"))
	assert.True(t, dec("15").Equal(split.Interest))
	assert.True(t, dec("85").Equal(split.Principal))
	assert.True(t, split.RemainingDeferred.IsZero())
}

func TestPaymentSplit_PrincipalFlooredAtBalance(t *testing.T) {
	cal := calendar.MustNew(calendar.Thirty360EU)
	calc := interest.NewCalculator(dec("0.12"), cal)
	start := calendar.NewDate(2024, time.January, 1)
	end := calendar.NewDate(2024, time.February, 1)

	// Balance 50, owed interest 0.5; an oversized payment cannot extract
	// more principal than exists.
	split := calc.PaymentSplit(dec("50"), start, end, dec("500"), decimal.Zero)
	assert.True(t, dec("50").Equal(split.Principal), "principal %s", split.Principal)
}

func TestSplitOwed_MatchesPaymentSplit(t *testing.T) {
	// Callers that accrue interest themselves feed the owed amount in
	// directly; the split rule must be the same one PaymentSplit applies.
	cal := calendar.MustNew(calendar.Thirty360EU)
	calc := interest.NewCalculator(dec("0.12"), cal)
	start := calendar.NewDate(2024, time.January, 1)
	end := calendar.NewDate(2024, time.February, 1)

	cases := []struct {
		name          string
		cap, deferred string
	}{
		{"interest first", "100", "0"},
		{"cap below interest", "4", "0"},
		{"zero cap", "0", "2.50"},
		{"carried deferred", "100", "5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			owed := calc.InterestBetween(dec("1000"), start, end).Add(dec(tc.deferred))
			direct := interest.SplitOwed(owed, dec(tc.cap), dec("1000"))
			viaCalc := calc.PaymentSplit(dec("1000"), start, end, dec(tc.cap), dec(tc.deferred))
			assert.True(t, direct.Interest.Equal(viaCalc.Interest))
			assert.True(t, direct.Principal.Equal(viaCalc.Principal))
			assert.True(t, direct.RemainingDeferred.Equal(viaCalc.RemainingDeferred))
		})
	}
}
