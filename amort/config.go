package amort

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
	"github.com/warp/lending-engine/overrides"
)

// =============================================================================
// ERRORS - Configuration failures, fatal at construction
// =============================================================================

var (
	ErrInvalidLoanAmount = errors.New("loan amount must be greater than zero")
	ErrInvalidTerm       = errors.New("term must be greater than zero")
	ErrNegativeRate      = errors.New("annual interest rate cannot be negative")

	// ErrRateAbove100 is returned for rates above 100% (decimal > 1) unless
	// the configuration explicitly opts in via AllowRateAbove100.
	ErrRateAbove100 = errors.New("annual interest rate above 100% requires explicit opt-in")
)

// =============================================================================
// ROUNDING
// =============================================================================

type RoundingMethod string

const (
	RoundHalfUp   RoundingMethod = "half_up"   // half away from zero
	RoundHalfEven RoundingMethod = "half_even" // banker's rounding
	RoundUp       RoundingMethod = "up"        // away from zero
	RoundDown     RoundingMethod = "down"      // toward zero
)

// Apply rounds d to the given number of decimal places.
func (m RoundingMethod) Apply(d decimal.Decimal, places int32) decimal.Decimal {
	switch m {
	case RoundHalfEven:
		return d.RoundBank(places)
	case RoundUp:
		return d.RoundUp(places)
	case RoundDown:
		return d.RoundDown(places)
	default:
		return d.Round(places)
	}
}

// FlushMethod controls how accumulated sub-cent rounding residue is disposed.
type FlushMethod string

const (
	FlushAtEnd       FlushMethod = "at_end"       // fold residual into the final period
	FlushAtThreshold FlushMethod = "at_threshold" // flush when |residual| exceeds the threshold
	FlushNone        FlushMethod = "none"         // never flush; residual stays metadata
)

// =============================================================================
// CONFIG - Immutable engine inputs
// =============================================================================

// Config is the full input set for an amortization engine. Zero-value
// collections are treated as empty; other zero values take the documented
// defaults in NewEngine.
type Config struct {
	LoanAmount decimal.Decimal
	AnnualRate decimal.Decimal // decimal fraction: 0.05 = 5%
	Term       int             // contractual term count
	StartDate  time.Time

	// FirstPaymentDate pins the first due date; zero means one month after
	// StartDate under the primary calendar.
	FirstPaymentDate time.Time

	Calendar calendar.Calendar

	RoundingMethod    RoundingMethod // default RoundHalfUp
	RoundingPrecision int32          // decimal places for billed amounts, default 2
	FlushMethod       FlushMethod    // default FlushAtEnd
	FlushThreshold    decimal.Decimal

	// PreBillDays is how many days before the due date a bill opens,
	// unless a per-term PreBillDaysConfiguration overrides it.
	PreBillDays int

	AllowRateAbove100 bool

	BillingModel overrides.BillingModel // default BillingAmortized

	Rates                 *overrides.RateSchedule
	TermRates             *overrides.TermInterestRateOverrides
	TermPaymentAmounts    *overrides.TermPaymentAmounts
	Extensions            *overrides.TermExtensions
	BalanceModifications  *overrides.BalanceModifications
	ChangePaymentDates    *overrides.ChangePaymentDates
	PreBillDaysOverrides  *overrides.PreBillDaysConfigurations
	TermCalendars         *overrides.TermCalendars
	BillingModelOverrides *overrides.BillingModelOverrides
}

var oneHundredPercent = decimal.NewFromInt(1)

// validate applies the construction-time rules and fills defaults in place.
func (c *Config) validate() error {
	if !c.LoanAmount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidLoanAmount, c.LoanAmount)
	}
	if c.Term <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTerm, c.Term)
	}
	if c.AnnualRate.IsNegative() {
		return fmt.Errorf("%w: got %s", ErrNegativeRate, c.AnnualRate)
	}
	if c.AnnualRate.GreaterThan(oneHundredPercent) && !c.AllowRateAbove100 {
		return fmt.Errorf("%w: got %s", ErrRateAbove100, c.AnnualRate)
	}
	if c.Calendar.Convention() == "" {
		return fmt.Errorf("%w: calendar not configured", calendar.ErrUnknownConvention)
	}

	c.StartDate = calendar.Midnight(c.StartDate)
	if !c.FirstPaymentDate.IsZero() {
		c.FirstPaymentDate = calendar.Midnight(c.FirstPaymentDate)
	}
	if c.RoundingMethod == "" {
		c.RoundingMethod = RoundHalfUp
	}
	if c.RoundingPrecision == 0 {
		c.RoundingPrecision = 2
	}
	if c.FlushMethod == "" {
		c.FlushMethod = FlushAtEnd
	}
	if c.FlushThreshold.IsZero() {
		// One unit at the rounding precision: flush as soon as the residual
		// is visible at billing granularity.
		c.FlushThreshold = decimal.New(1, -c.RoundingPrecision)
	}
	if c.BillingModel == "" {
		c.BillingModel = overrides.BillingAmortized
	}

	if c.Rates == nil {
		c.Rates, _ = overrides.NewRateSchedule()
	}
	if c.TermRates == nil {
		c.TermRates, _ = overrides.NewTermInterestRateOverrides()
	}
	if c.TermPaymentAmounts == nil {
		c.TermPaymentAmounts, _ = overrides.NewTermPaymentAmounts()
	}
	if c.Extensions == nil {
		c.Extensions = overrides.NewTermExtensions()
	}
	if c.BalanceModifications == nil {
		c.BalanceModifications, _ = overrides.NewBalanceModifications()
	}
	if c.ChangePaymentDates == nil {
		c.ChangePaymentDates, _ = overrides.NewChangePaymentDates()
	}
	if c.PreBillDaysOverrides == nil {
		c.PreBillDaysOverrides, _ = overrides.NewPreBillDaysConfigurations()
	}
	if c.TermCalendars == nil {
		c.TermCalendars, _ = overrides.NewTermCalendars()
	}
	if c.BillingModelOverrides == nil {
		c.BillingModelOverrides, _ = overrides.NewBillingModelOverrides()
	}
	return nil
}
