package amort

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/overrides"
)

// =============================================================================
// AMORTIZATION ENTRY - One schedule period
// =============================================================================

// Entry is one period of the amortization plan, 0-indexed by Term.
//
// INVARIANTS (maintained by the engine):
//   - EndBalance = StartBalance - Principal + BalanceModificationAmount
//   - StartBalance of term i+1 == EndBalance of term i
//   - The final entry's EndBalance is exactly zero
type Entry struct {
	Term int

	PeriodStart  time.Time
	PeriodEnd    time.Time
	BillOpenDate time.Time
	BillDueDate  time.Time

	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal

	// Principal and InterestAccrued are the billed (rounded) amounts.
	Principal       decimal.Decimal
	InterestAccrued decimal.Decimal
	TotalPayment    decimal.Decimal

	// UnroundedInterest is the raw accrual before rounding; the signed
	// difference against the billed interest feeds the rounding accumulator.
	UnroundedInterest decimal.Decimal

	// PeriodInterestRate is the annual rate applied over the period
	// (day-weighted when a rate change splits the period).
	PeriodInterestRate decimal.Decimal
	DaysInPeriod       int
	PerDiem            decimal.Decimal

	// InterestRoundingError is this period's signed delta
	// (unrounded - billed). UnbilledInterestDueToRounding is the running
	// residual after this period, post any flush.
	InterestRoundingError         decimal.Decimal
	UnbilledInterestDueToRounding decimal.Decimal

	// DeferredInterestCarried is interest owed from earlier periods that was
	// rolled into this period's owed interest.
	DeferredInterestCarried   decimal.Decimal
	RemainingDeferredInterest decimal.Decimal

	BalanceModificationAmount decimal.Decimal

	BillingModel overrides.BillingModel

	Metadata EntryMetadata

	// DSI holds reconciliation results once payment facts are applied.
	// Nil until the DSI reconciler runs over this term.
	DSI *DSIResult
}

// EntryMetadata carries flags about how the entry was produced.
type EntryMetadata struct {
	FinalAdjustment  bool // last-period principal forced to zero the balance
	SkipAPay         bool // explicit zero payment override
	EMIRecalculated  bool // the level payment changed entering this term
	RoundingFlushed  bool // accumulated rounding residual folded in here
	PaymentOverride  bool // TermPaymentAmount override applied
	RateOverride     bool // TermInterestRateOverride or RateSchedule applied
	CalendarOverride bool // TermCalendar override applied
}

// =============================================================================
// SCHEDULE
// =============================================================================

// Schedule is the ordered sequence of entries for one generated plan.
// It is immutable once generated; regeneration produces a new Schedule.
type Schedule []Entry

func (s Schedule) Last() Entry {
	if len(s) == 0 {
		return Entry{}
	}
	return s[len(s)-1]
}

// Totals aggregates the billed amounts across the plan.
type Totals struct {
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Payments  decimal.Decimal
}

func (s Schedule) Totals() Totals {
	t := Totals{Principal: decimal.Zero, Interest: decimal.Zero, Payments: decimal.Zero}
	for _, e := range s {
		t.Principal = t.Principal.Add(e.Principal)
		t.Interest = t.Interest.Add(e.InterestAccrued)
		t.Payments = t.Payments.Add(e.TotalPayment)
	}
	return t
}

// clone returns a deep-enough copy: entries are values, DSI results are
// re-pointed so callers cannot mutate the cached schedule.
func (s Schedule) clone() Schedule {
	out := make(Schedule, len(s))
	copy(out, s)
	for i := range out {
		if out[i].DSI != nil {
			dsi := *out[i].DSI
			out[i].DSI = &dsi
		}
	}
	return out
}
