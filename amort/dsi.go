/*
dsi.go - Daily-simple-interest reconciliation

PURPOSE:
  A DSI loan accrues interest on the actual outstanding balance between
  actual payment dates, not on the projected schedule. This file holds the
  payment-fact ledger and the reconciler that replays those facts against a
  generated schedule: paid terms get actual values and a savings/penalty
  delta, unpaid terms get re-amortized projections from the last known
  actual balance.

RULES:
  - Facts are append-only per term; multiple partial payments sum.
  - Savings and penalty are mutually exclusive per term: early payment
    accrues less than projected (savings), late accrues more (penalty).
  - A paid DSI term's billed interest converges to the reconciled actual.
  - TotalDSIImpact aggregates only terms billed under the DSI model, which
    supports mixed per-term billing model overrides.
*/
package amort

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
	"github.com/warp/lending-engine/interest"
	"github.com/warp/lending-engine/overrides"
)

// =============================================================================
// PAYMENT FACTS
// =============================================================================

// PaymentFact is one externally supplied payment event for a term. The
// principal/interest/fees split comes from the deposit-allocation
// collaborator; the engine never re-splits cash.
type PaymentFact struct {
	Term          int
	PaymentDate   time.Time
	PrincipalPaid decimal.Decimal
	InterestPaid  decimal.Decimal
	FeesPaid      decimal.Decimal
}

// DSIPaymentRecord is an authoritative per-term reconciliation record, used
// when the servicer supplies balances directly instead of (or in addition to)
// raw facts. Optional fields override the derived values when present.
type DSIPaymentRecord struct {
	Term         int
	PaymentDate  time.Time
	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal
	Interest     *decimal.Decimal
	Principal    *decimal.Decimal
	Fees         *decimal.Decimal
	Days         *int
}

// DSIResult annotates one schedule entry with reconciliation output.
type DSIResult struct {
	Paid bool

	ActualPaymentDate  time.Time
	ActualPrincipal    decimal.Decimal
	ActualInterest     decimal.Decimal
	ActualFees         decimal.Decimal
	ActualStartBalance decimal.Decimal
	ActualEndBalance   decimal.Decimal
	InterestDays       int

	// Mutually exclusive: at most one is non-zero.
	InterestSavings decimal.Decimal
	InterestPenalty decimal.Decimal

	// Projections for the term computed from the last known actual balance
	// over the scheduled day span.
	ReAmortizedStartBalance decimal.Decimal
	ReAmortizedEndBalance   decimal.Decimal
	ReAmortizedPrincipal    decimal.Decimal
	ReAmortizedInterest     decimal.Decimal
}

// DSIImpact aggregates savings/penalty across DSI-billed terms.
type DSIImpact struct {
	Savings   decimal.Decimal
	Penalty   decimal.Decimal
	NetAmount decimal.Decimal // Savings - Penalty
}

// =============================================================================
// LEDGER API
// =============================================================================

// SetDSIPayments replaces the payment ledger wholesale.
func (e *Engine) SetDSIPayments(facts []PaymentFact) {
	e.dsiFacts = make(map[int][]PaymentFact)
	for _, f := range facts {
		e.AddDSIPayment(f)
	}
	e.dirty = true
}

// AddDSIPayment appends one fact; partial payments for a term accumulate.
func (e *Engine) AddDSIPayment(f PaymentFact) {
	f.PaymentDate = calendar.Midnight(f.PaymentDate)
	e.dsiFacts[f.Term] = append(e.dsiFacts[f.Term], f)
	sort.SliceStable(e.dsiFacts[f.Term], func(i, j int) bool {
		return e.dsiFacts[f.Term][i].PaymentDate.Before(e.dsiFacts[f.Term][j].PaymentDate)
	})
	e.dirty = true
}

// UpdateDSIPaymentHistory records an authoritative reconciliation record for
// a term, taking precedence over derived values from raw facts.
func (e *Engine) UpdateDSIPaymentHistory(rec DSIPaymentRecord) {
	rec.PaymentDate = calendar.Midnight(rec.PaymentDate)
	e.dsiHistory[rec.Term] = rec
	e.dirty = true
}

// GetDSIPaymentHistory returns the facts recorded for a term, in date order.
func (e *Engine) GetDSIPaymentHistory(term int) []PaymentFact {
	return append([]PaymentFact(nil), e.dsiFacts[term]...)
}

// TotalDSIImpact aggregates savings/penalty over terms billed as DSI.
func (e *Engine) TotalDSIImpact() DSIImpact {
	e.CalculateAmortizationPlan()
	impact := DSIImpact{Savings: decimal.Zero, Penalty: decimal.Zero, NetAmount: decimal.Zero}
	for _, entry := range e.schedule {
		if entry.BillingModel != overrides.BillingDailySimpleInterest || entry.DSI == nil || !entry.DSI.Paid {
			continue
		}
		impact.Savings = impact.Savings.Add(entry.DSI.InterestSavings)
		impact.Penalty = impact.Penalty.Add(entry.DSI.InterestPenalty)
	}
	impact.NetAmount = impact.Savings.Sub(impact.Penalty)
	return impact
}

// =============================================================================
// RECONCILER
// =============================================================================

// periodCalendar resolves the same calendar the generator used for a term.
func (e *Engine) periodCalendar(entry Entry) calendar.Calendar {
	cal := e.cfg.Calendar
	if tc, ok := e.cfg.TermCalendars.ForTerm(entry.Term); ok {
		cal = tc.Calendar
	}
	return cal.WithReferenceDate(entry.PeriodStart)
}

// reconcileDSI walks the schedule in term order carrying the actual balance
// forward, annotating each entry in place.
func (e *Engine) reconcileDSI(s Schedule) {
	if len(s) == 0 {
		return
	}

	actualBalance := s[0].StartBalance
	prevDate := s[0].PeriodStart

	for i := range s {
		entry := &s[i]
		cal := e.periodCalendar(*entry)
		calc := interest.NewCalculator(entry.PeriodInterestRate, cal)
		round := func(d decimal.Decimal) decimal.Decimal {
			return e.cfg.RoundingMethod.Apply(d, e.cfg.RoundingPrecision)
		}

		// Re-amortized projection from the last known actual balance over the
		// scheduled day span; computed for every term.
		reInterest := round(calc.InterestForDays(actualBalance, entry.DaysInPeriod))
		rePrincipal := entry.TotalPayment.Sub(reInterest)
		if rePrincipal.IsNegative() {
			rePrincipal = decimal.Zero
		}
		if rePrincipal.GreaterThan(actualBalance) {
			rePrincipal = actualBalance
		}
		reEnd := actualBalance.Sub(rePrincipal)

		result := &DSIResult{
			ReAmortizedStartBalance: actualBalance,
			ReAmortizedEndBalance:   reEnd,
			ReAmortizedPrincipal:    rePrincipal,
			ReAmortizedInterest:     reInterest,
			InterestSavings:         decimal.Zero,
			InterestPenalty:         decimal.Zero,
		}

		rec, hasRec := e.dsiHistory[entry.Term]
		facts := e.dsiFacts[entry.Term]

		if !hasRec && len(facts) == 0 {
			// Unpaid/future: the projection is all there is. The scheduled
			// due date advances the clock for subsequent terms.
			entry.DSI = result
			prevDate = entry.PeriodEnd
			actualBalance = reEnd
			continue
		}

		// Paid term: derive actuals from the record when present, else from
		// the summed facts.
		startBal := actualBalance
		payDate := prevDate
		principalPaid := decimal.Zero
		interestPaid := decimal.Zero
		feesPaid := decimal.Zero
		for _, f := range facts {
			principalPaid = principalPaid.Add(f.PrincipalPaid)
			interestPaid = interestPaid.Add(f.InterestPaid)
			feesPaid = feesPaid.Add(f.FeesPaid)
			if f.PaymentDate.After(payDate) {
				payDate = f.PaymentDate
			}
		}
		if hasRec {
			startBal = rec.StartBalance
			payDate = rec.PaymentDate
			if rec.Principal != nil {
				principalPaid = *rec.Principal
			}
			if rec.Fees != nil {
				feesPaid = *rec.Fees
			}
		}

		days := cal.DaysBetween(prevDate, payDate)
		if hasRec && rec.Days != nil {
			days = *rec.Days
		}

		actualInterest := round(calc.InterestForDays(startBal, days))
		if hasRec && rec.Interest != nil {
			actualInterest = *rec.Interest
		} else if interestPaid.IsPositive() && len(facts) > 0 && !hasRec && days == 0 {
			// Same-day payoff with an explicit interest split: trust the fact.
			actualInterest = interestPaid
		}

		endBal := startBal.Sub(principalPaid)
		if hasRec {
			endBal = rec.EndBalance
		}

		// Savings when the projection over-accrued, penalty when it
		// under-accrued; never both.
		diff := entry.InterestAccrued.Sub(actualInterest)
		if diff.IsPositive() {
			result.InterestSavings = diff
		} else if diff.IsNegative() {
			result.InterestPenalty = diff.Neg()
		}

		result.Paid = true
		result.ActualPaymentDate = payDate
		result.ActualPrincipal = principalPaid
		result.ActualInterest = actualInterest
		result.ActualFees = feesPaid
		result.ActualStartBalance = startBal
		result.ActualEndBalance = endBal
		result.InterestDays = days
		entry.DSI = result

		// A paid DSI term's billed interest converges to the actual.
		if entry.BillingModel == overrides.BillingDailySimpleInterest {
			entry.InterestAccrued = actualInterest
		}

		prevDate = payDate
		actualBalance = endBal
	}
}
