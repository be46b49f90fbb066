/*
Package interest implements the per-period interest and payment-split math.

PURPOSE:
  Given a balance, an annual rate, and two dates, compute what interest
  accrued, and given a payment cap, split that payment into interest and
  principal with deferred-interest carry. All arithmetic is shopspring
  decimal: no floating point touches money.

ACCRUAL MODES:
  AnnualRateDividedByDaysInYear (default):
    interest = principal * annualRate * daysBetween / daysInYear
    where days and year length come from the calendar's convention.

  MonthlyRateDividedByDaysInMonth:
    perDiem = principal * (annualRate/12) / daysInMonth
    Requires an explicit positive days-in-month at construction.

PAYMENT SPLIT:
  Interest is always paid first: current-period interest plus any deferred
  interest carried in, capped by the payment. Whatever interest the cap
  cannot cover becomes the new deferred balance; whatever remains after
  interest pays down principal.

SEE ALSO:
  - calendar: day counts and year lengths
  - amort: drives this calculator period by period
*/
package interest

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
)

// =============================================================================
// ACCRUAL MODE
// =============================================================================

type AccrualMode string

const (
	AnnualRateDividedByDaysInYear   AccrualMode = "annual_rate_divided_by_days_in_year"
	MonthlyRateDividedByDaysInMonth AccrualMode = "monthly_rate_divided_by_days_in_month"
)

// ErrInvalidDaysInMonth is returned when MonthlyRateDividedByDaysInMonth is
// configured without a positive days-in-month value. Configuration error:
// fatal at construction.
var ErrInvalidDaysInMonth = errors.New("days in month must be positive for monthly-rate mode")

var twelve = decimal.NewFromInt(12)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes interest accrual for a fixed rate and calendar.
// It is a pure value: safe to copy, no internal state.
type Calculator struct {
	annualRate  decimal.Decimal
	cal         calendar.Calendar
	mode        AccrualMode
	daysInMonth int
}

// NewCalculator builds a calculator in the default annual-rate mode.
func NewCalculator(annualRate decimal.Decimal, cal calendar.Calendar) Calculator {
	return Calculator{annualRate: annualRate, cal: cal, mode: AnnualRateDividedByDaysInYear}
}

// NewMonthlyRateCalculator builds a calculator in monthly-rate mode.
// daysInMonth must be positive; this is validated here, not at call time.
func NewMonthlyRateCalculator(annualRate decimal.Decimal, cal calendar.Calendar, daysInMonth int) (Calculator, error) {
	if daysInMonth <= 0 {
		return Calculator{}, fmt.Errorf("%w: got %d", ErrInvalidDaysInMonth, daysInMonth)
	}
	return Calculator{
		annualRate:  annualRate,
		cal:         cal,
		mode:        MonthlyRateDividedByDaysInMonth,
		daysInMonth: daysInMonth,
	}, nil
}

func (c Calculator) AnnualRate() decimal.Decimal  { return c.annualRate }
func (c Calculator) Calendar() calendar.Calendar  { return c.cal }
func (c Calculator) Mode() AccrualMode            { return c.mode }

// DailyRate returns the per-diem rate factor (rate per day, not per dollar).
func (c Calculator) DailyRate() decimal.Decimal {
	if c.mode == MonthlyRateDividedByDaysInMonth {
		return c.annualRate.Div(twelve).Div(decimal.NewFromInt(int64(c.daysInMonth)))
	}
	return c.annualRate.Div(decimal.NewFromInt(int64(c.cal.DaysInYear())))
}

// PerDiem returns the daily interest on a principal balance.
func (c Calculator) PerDiem(principal decimal.Decimal) decimal.Decimal {
	return principal.Mul(c.DailyRate())
}

// InterestBetween computes unrounded interest accrued on principal over
// [start, end) under the calculator's rate, mode, and calendar.
func (c Calculator) InterestBetween(principal decimal.Decimal, start, end time.Time) decimal.Decimal {
	days := decimal.NewFromInt(int64(c.cal.DaysBetween(start, end)))
	return c.PerDiem(principal).Mul(days)
}

// InterestForDays computes unrounded interest for an explicit day count.
// Used by the DSI reconciler, where the day span comes from actual payment
// dates rather than period boundaries.
func (c Calculator) InterestForDays(principal decimal.Decimal, days int) decimal.Decimal {
	return c.PerDiem(principal).Mul(decimal.NewFromInt(int64(days)))
}

// =============================================================================
// PAYMENT SPLIT
// =============================================================================

// Split is the outcome of applying a capped payment against accrued and
// deferred interest.
type Split struct {
	Principal         decimal.Decimal
	Interest          decimal.Decimal
	RemainingDeferred decimal.Decimal
}

// PaymentSplit applies a payment of at most cap against the interest accrued
// on principal over [start, end) plus any deferred interest carried in.
//
// Interest (deferred first, since it is all owed interest) is paid up
// to cap. A shortfall becomes RemainingDeferred. Any remainder pays principal,
// floored at the cap: a payment never exceeds cap.
func (c Calculator) PaymentSplit(principal decimal.Decimal, start, end time.Time, cap, deferred decimal.Decimal) Split {
	owed := c.InterestBetween(principal, start, end).Add(deferred)
	return SplitOwed(owed, cap, principal)
}

// SplitOwed applies a payment of at most cap against already-accrued owed
// interest, then against principal. Callers that derive the accrual through
// overrides or per-term rates use this directly.
func SplitOwed(owed, cap, principal decimal.Decimal) Split {
	if owed.GreaterThanOrEqual(cap) {
		// Payment entirely consumed by interest; the rest defers.
		return Split{
			Principal:         decimal.Zero,
			Interest:          cap,
			RemainingDeferred: owed.Sub(cap),
		}
	}

	principalPortion := cap.Sub(owed)
	if principalPortion.GreaterThan(principal) {
		principalPortion = principal
	}
	return Split{
		Principal:         principalPortion,
		Interest:          owed,
		RemainingDeferred: decimal.Zero,
	}
}
