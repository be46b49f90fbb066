/*
Package amort generates amortization schedules for installment loans.

PURPOSE:
  The Engine is the central state machine: it takes immutable loan terms
  plus every override collection (rate, payment, extension, balance
  modification, payment date, pre-bill days, calendar, billing model) and
  turns them into a period-by-period Schedule with exact rounding-error
  bookkeeping. The same package houses the DSI reconciler, which replays
  actual payment facts against the projected schedule.

GENERATION MODEL:
  CalculateAmortizationPlan is a pure function of the engine's current
  inputs: it fully regenerates the schedule, never patches it. Mutating
  any override collection sets a dirty flag; the next calculation observes
  and clears it. There is no streaming or incremental mode.

ROUNDING:
  Interest is accrued unrounded, billed rounded, and the signed delta is
  accumulated into an unbilled-interest residual. The flush method decides
  whether that residual folds into the final period (AT_END), drains as
  soon as it is visible at billing precision (AT_THRESHOLD), or persists as
  metadata only (NONE). The final period's principal always zeroes the
  balance exactly.

SEE ALSO:
  - calendar, interest, overrides: the leaf inputs
  - version: snapshots engine state for audit/rollback
*/
package amort

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
	"github.com/warp/lending-engine/interest"
	"github.com/warp/lending-engine/overrides"
)

var (
	one    = decimal.NewFromInt(1)
	twelve = decimal.NewFromInt(12)
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns one loan's inputs and its derived schedule. It is not safe for
// concurrent use; the calling context confines each engine to one writer.
type Engine struct {
	cfg Config

	dirty    bool
	schedule Schedule
	emi      decimal.Decimal

	// Rounding accumulators, rebuilt on every generation.
	cumulativeInterestWithoutRounding decimal.Decimal
	totalChargedInterestRounded       decimal.Decimal
	totalChargedInterestUnrounded     decimal.Decimal
	unbilledInterestDueToRounding     decimal.Decimal

	// DSI payment ledger: externally supplied facts, append-only per term,
	// plus authoritative per-term reconciliation records.
	dsiFacts   map[int][]PaymentFact
	dsiHistory map[int]DSIPaymentRecord
}

// NewEngine validates the configuration and builds an engine.
// Validation failures are configuration errors: fatal, never retried.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		dirty:      true,
		dsiFacts:   make(map[int][]PaymentFact),
		dsiHistory: make(map[int]DSIPaymentRecord),
	}, nil
}

// Config returns a copy of the engine's configuration. Collections are shared
// pointers; mutate them through the engine so the dirty flag is maintained.
func (e *Engine) Config() Config { return e.cfg }

// ActualTerm is the contractual term plus all active, lengthening extensions.
func (e *Engine) ActualTerm() int {
	return e.cfg.Term + e.cfg.Extensions.TotalActiveQuantity()
}

// EMI returns the level payment for the current inputs, regenerating the
// schedule first if anything changed since the last calculation.
func (e *Engine) EMI() decimal.Decimal {
	if e.dirty {
		e.CalculateAmortizationPlan()
	}
	return e.emi
}

// Modified reports whether inputs changed since the last calculation.
func (e *Engine) Modified() bool { return e.dirty }

// Invalidate forces the next calculation to regenerate.
func (e *Engine) Invalidate() { e.dirty = true }

func (e *Engine) CumulativeInterestWithoutRounding() decimal.Decimal {
	return e.cumulativeInterestWithoutRounding
}
func (e *Engine) TotalChargedInterestRounded() decimal.Decimal   { return e.totalChargedInterestRounded }
func (e *Engine) TotalChargedInterestUnrounded() decimal.Decimal { return e.totalChargedInterestUnrounded }
func (e *Engine) UnbilledInterestDueToRounding() decimal.Decimal { return e.unbilledInterestDueToRounding }

// EndDate is the final scheduled due date for the current inputs.
// Derived, regenerated on demand: never stored.
func (e *Engine) EndDate() time.Time {
	return e.dueDateFor(e.ActualTerm() - 1)
}

// =============================================================================
// MUTATION - Every input change flows through here and sets the dirty flag
// =============================================================================

func (e *Engine) AddRateOverride(o overrides.RateOverride) error {
	if err := e.cfg.Rates.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *Engine) AddTermInterestRateOverride(o overrides.TermInterestRateOverride) error {
	if err := e.cfg.TermRates.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *Engine) AddTermPaymentAmount(o overrides.TermPaymentAmount) error {
	if err := e.cfg.TermPaymentAmounts.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *Engine) AddTermExtension(o overrides.TermExtension) {
	e.cfg.Extensions.Add(o)
	e.dirty = true
}

func (e *Engine) SetTermExtensionActive(i int, active bool) {
	e.cfg.Extensions.SetActive(i, active)
	e.dirty = true
}

func (e *Engine) AddBalanceModification(o overrides.BalanceModification) error {
	if err := e.cfg.BalanceModifications.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *Engine) SetBalanceModificationActive(id string, active bool) {
	e.cfg.BalanceModifications.SetActive(id, active)
	e.dirty = true
}

func (e *Engine) AddChangePaymentDate(o overrides.ChangePaymentDate) error {
	if err := e.cfg.ChangePaymentDates.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *Engine) AddPreBillDaysConfiguration(o overrides.PreBillDaysConfiguration) error {
	if err := e.cfg.PreBillDaysOverrides.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *Engine) AddTermCalendar(o overrides.TermCalendar) error {
	if err := e.cfg.TermCalendars.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

func (e *Engine) AddBillingModelOverride(o overrides.BillingModelOverride) error {
	if err := e.cfg.BillingModelOverrides.Add(o); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// =============================================================================
// SCHEDULE GENERATION
// =============================================================================

// CalculateAmortizationPlan returns the schedule for the current inputs,
// regenerating when anything changed since the last call. The returned
// schedule is the caller's copy.
func (e *Engine) CalculateAmortizationPlan() Schedule {
	if !e.dirty && e.schedule != nil {
		return e.schedule.clone()
	}
	s := e.generate()
	if len(e.dsiFacts) > 0 || len(e.dsiHistory) > 0 {
		e.reconcileDSI(s)
	}
	e.schedule = s
	e.dirty = false
	return s.clone()
}

// GetInterestRatesBetweenDates splits [start, end) across the rate schedule's
// active segments, filling uncovered spans with the base annual rate.
func (e *Engine) GetInterestRatesBetweenDates(start, end time.Time) []overrides.RateSegment {
	return e.cfg.Rates.SegmentsBetween(start, end, e.cfg.AnnualRate)
}

// firstDueDate is the first period's end: the pinned first payment date if
// configured, otherwise one month after the start date.
func (e *Engine) firstDueDate() time.Time {
	if !e.cfg.FirstPaymentDate.IsZero() {
		return e.cfg.FirstPaymentDate
	}
	return e.cfg.Calendar.AddMonths(e.cfg.StartDate, 1)
}

// dueDateFor is the contractual due date of term i, before any
// ChangePaymentDate override.
func (e *Engine) dueDateFor(i int) time.Time {
	return e.cfg.Calendar.AddMonths(e.firstDueDate(), i)
}

// skipCountIn counts skip-a-pay terms in [from, to).
func (e *Engine) skipCountIn(from, to int) int {
	count := 0
	for t := from; t < to; t++ {
		if e.cfg.TermPaymentAmounts.IsSkipTerm(t) {
			count++
		}
	}
	return count
}

// annuity solves the level payment for principal P at the base monthly rate
// over the given number of paying terms, rounded at billing precision.
func (e *Engine) annuity(principal decimal.Decimal, terms int) decimal.Decimal {
	if terms <= 0 {
		return e.cfg.RoundingMethod.Apply(principal, e.cfg.RoundingPrecision)
	}
	n := decimal.NewFromInt(int64(terms))
	r := e.cfg.AnnualRate.Div(twelve)
	if r.IsZero() {
		return e.cfg.RoundingMethod.Apply(principal.Div(n), e.cfg.RoundingPrecision)
	}
	pow := one.Add(r).Pow(n)
	emi := principal.Mul(r).Mul(pow).Div(pow.Sub(one))
	return e.cfg.RoundingMethod.Apply(emi, e.cfg.RoundingPrecision)
}

// initialEMI solves the opening level payment. A fromStart extension
// re-levels over the full extended term, optionally excluding skip-a-pay
// terms from the paying-term count.
func (e *Engine) initialEMI(actualTerm int) decimal.Decimal {
	payingTerms := e.cfg.Term
	fromStart := false
	ignoreSkips := false
	for _, ext := range e.cfg.Extensions.Active() {
		if ext.EMIRecalculationMode == overrides.EMIRecalcFromStart {
			fromStart = true
			if ext.IgnoreSkipTermsForEMIRecalculation {
				ignoreSkips = true
			}
		}
	}
	if fromStart {
		payingTerms = actualTerm
		if ignoreSkips {
			payingTerms -= e.skipCountIn(0, actualTerm)
		}
	}
	return e.annuity(e.cfg.LoanAmount, payingTerms)
}

// fromTermRecalcs maps term index -> extension for active fromTerm
// re-levelings. Terms at or beyond the schedule length never enter the map,
// which makes out-of-range recalculation a silent no-op.
func (e *Engine) fromTermRecalcs(actualTerm int) map[int]overrides.TermExtension {
	m := make(map[int]overrides.TermExtension)
	for _, ext := range e.cfg.Extensions.Active() {
		if ext.EMIRecalculationMode == overrides.EMIRecalcFromTerm &&
			ext.RecalculationTerm >= 0 && ext.RecalculationTerm < actualTerm {
			m[ext.RecalculationTerm] = ext
		}
	}
	return m
}

func (e *Engine) billingModelFor(term int) overrides.BillingModel {
	if o, ok := e.cfg.BillingModelOverrides.ForTerm(term); ok {
		return o.Model
	}
	return e.cfg.BillingModel
}

func (e *Engine) preBillDaysFor(term int) int {
	if o, ok := e.cfg.PreBillDaysOverrides.ForTerm(term); ok {
		return o.Days
	}
	return e.cfg.PreBillDays
}

// periodInterest accrues unrounded interest on balance over [start, end),
// pro-rated across rate-schedule segments when a rate changes mid-period.
// Returns the raw interest, the day-weighted annual rate, and whether any
// override displaced the base rate.
func (e *Engine) periodInterest(term int, balance decimal.Decimal, start, end time.Time, cal calendar.Calendar) (decimal.Decimal, decimal.Decimal, bool) {
	if tro, ok := e.cfg.TermRates.ForTerm(term); ok {
		calc := interest.NewCalculator(tro.Rate, cal)
		return calc.InterestBetween(balance, start, end), tro.Rate, true
	}

	segments := e.cfg.Rates.SegmentsBetween(start, end, e.cfg.AnnualRate)
	total := decimal.Zero
	weighted := decimal.Zero
	totalDays := 0
	overridden := false
	for _, seg := range segments {
		calc := interest.NewCalculator(seg.Rate, cal)
		total = total.Add(calc.InterestBetween(balance, seg.Start, seg.End))
		days := cal.DaysBetween(seg.Start, seg.End)
		weighted = weighted.Add(seg.Rate.Mul(decimal.NewFromInt(int64(days))))
		totalDays += days
		if !seg.Rate.Equal(e.cfg.AnnualRate) {
			overridden = true
		}
	}
	rate := e.cfg.AnnualRate
	if totalDays > 0 {
		rate = weighted.Div(decimal.NewFromInt(int64(totalDays)))
	}
	return total, rate, overridden
}

// generate runs the period state machine from term 0 to actualTerm-1.
func (e *Engine) generate() Schedule {
	n := e.ActualTerm()
	emi := e.initialEMI(n)
	recalcs := e.fromTermRecalcs(n)

	balance := e.cfg.LoanAmount
	deferred := decimal.Zero
	residual := decimal.Zero

	cumRaw := decimal.Zero
	totRounded := decimal.Zero
	totUnrounded := decimal.Zero

	periodStart := e.cfg.StartDate
	entries := make(Schedule, 0, n)

	for i := 0; i < n; i++ {
		emiRecalculated := false
		if ext, ok := recalcs[i]; ok {
			remaining := n - i
			if ext.IgnoreSkipTermsForEMIRecalculation {
				remaining -= e.skipCountIn(i, n)
			}
			if remaining > 0 {
				emi = e.annuity(balance, remaining)
				emiRecalculated = true
			}
		}

		// 1. Period boundaries: contractual monthly due dates, displaced by
		// an active ChangePaymentDate for this term.
		due := e.dueDateFor(i)
		if cpd, ok := e.cfg.ChangePaymentDates.ForTerm(i); ok {
			due = cpd.NewDate
		}
		if !due.After(periodStart) {
			// Degenerate override; keep generation total.
			due = periodStart.AddDate(0, 0, 1)
		}

		// 2-3. Resolve the per-period calendar and rate, then accrue.
		cal := e.cfg.Calendar
		calOverridden := false
		if tc, ok := e.cfg.TermCalendars.ForTerm(i); ok {
			cal = tc.Calendar
			calOverridden = true
		}
		cal = cal.WithReferenceDate(periodStart)

		rawInterest, periodRate, rateOverridden := e.periodInterest(i, balance, periodStart, due, cal)
		days := cal.DaysBetween(periodStart, due)
		perDiem := interest.NewCalculator(periodRate, cal).PerDiem(balance)

		// 5. Scheduled payment: per-term override (zero = skip-a-pay) or EMI.
		payment := emi
		paymentOverridden := false
		skip := false
		if tpa, ok := e.cfg.TermPaymentAmounts.ForTerm(i); ok {
			payment = tpa.Amount
			paymentOverridden = true
			skip = tpa.Amount.IsZero()
		}

		// 8. Balance modifications effective inside this period.
		modAmount := decimal.Zero
		for _, mod := range e.cfg.BalanceModifications.InPeriod(periodStart, due) {
			modAmount = modAmount.Add(mod.SignedAmount())
		}

		isLast := i == n-1
		owed := rawInterest.Add(deferred)

		var interestPaid, principalPaid, newDeferred decimal.Decimal
		if isLast {
			// 10. Final-payment adjustment: principal zeroes the balance
			// exactly, all owed interest bills now.
			interestPaid = owed
			principalPaid = balance.Add(modAmount)
			if principalPaid.IsNegative() {
				// A decrease larger than what remains can only retire the
				// remaining balance; cap the applied amount so the plan
				// still terminates at zero.
				modAmount = balance.Neg()
				principalPaid = decimal.Zero
			}
			newDeferred = decimal.Zero
		} else {
			split := interest.SplitOwed(owed, payment, balance)
			interestPaid = split.Interest
			principalPaid = split.Principal
			newDeferred = split.RemainingDeferred
		}

		// 9. Rounding: bill at precision, accumulate the signed delta, flush
		// per policy.
		billedInterest := e.cfg.RoundingMethod.Apply(interestPaid, e.cfg.RoundingPrecision)
		roundErr := interestPaid.Sub(billedInterest)
		residual = residual.Add(roundErr)

		flushed := false
		if e.cfg.FlushMethod == FlushAtThreshold && residual.Abs().GreaterThan(e.cfg.FlushThreshold) {
			billedInterest = billedInterest.Add(residual)
			residual = decimal.Zero
			flushed = true
		}
		if isLast && e.cfg.FlushMethod == FlushAtEnd && !residual.IsZero() {
			billedInterest = billedInterest.Add(residual)
			residual = decimal.Zero
			flushed = true
		}

		var billedPrincipal decimal.Decimal
		if isLast {
			// Exact: the final principal is not re-rounded, it must cancel
			// the remaining balance to the cent and below.
			billedPrincipal = principalPaid
		} else {
			billedPrincipal = e.cfg.RoundingMethod.Apply(principalPaid, e.cfg.RoundingPrecision)
		}

		endBalance := balance.Sub(billedPrincipal).Add(modAmount)
		totalPayment := billedPrincipal.Add(billedInterest)

		cumRaw = cumRaw.Add(rawInterest)
		totUnrounded = totUnrounded.Add(interestPaid)
		totRounded = totRounded.Add(billedInterest)

		entries = append(entries, Entry{
			Term:                          i,
			PeriodStart:                   periodStart,
			PeriodEnd:                     due,
			BillDueDate:                   due,
			BillOpenDate:                  due.AddDate(0, 0, -e.preBillDaysFor(i)),
			StartBalance:                  balance,
			EndBalance:                    endBalance,
			Principal:                     billedPrincipal,
			InterestAccrued:               billedInterest,
			TotalPayment:                  totalPayment,
			UnroundedInterest:             rawInterest,
			PeriodInterestRate:            periodRate,
			DaysInPeriod:                  days,
			PerDiem:                       perDiem,
			InterestRoundingError:         roundErr,
			UnbilledInterestDueToRounding: residual,
			DeferredInterestCarried:       deferred,
			RemainingDeferredInterest:     newDeferred,
			BalanceModificationAmount:     modAmount,
			BillingModel:                  e.billingModelFor(i),
			Metadata: EntryMetadata{
				FinalAdjustment:  isLast,
				SkipAPay:         skip,
				EMIRecalculated:  emiRecalculated,
				RoundingFlushed:  flushed,
				PaymentOverride:  paymentOverridden,
				RateOverride:     rateOverridden,
				CalendarOverride: calOverridden,
			},
		})

		balance = endBalance
		deferred = newDeferred
		periodStart = due
	}

	e.emi = emi
	e.cumulativeInterestWithoutRounding = cumRaw
	e.totalChargedInterestRounded = totRounded
	e.totalChargedInterestUnrounded = totUnrounded
	e.unbilledInterestDueToRounding = residual

	return entries
}
