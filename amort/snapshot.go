/*
snapshot.go - Canonical full-state serialization of an engine

PURPOSE:
  The version manager snapshots engine state before/after every mutation
  and diffs snapshots structurally. A Snapshot is therefore a plain nested
  structure mirroring the data model: every decimal serializes as a
  canonical decimal string, every date as an ISO-8601 calendar date. No
  binary floats, no time zones. Round-trip fidelity is the contract.

GENERATED FIELDS:
  EMI, EndDate, and ActualTerm are derived values. They appear in the
  snapshot for audit display, but restoration strips them so they
  regenerate fresh instead of freezing a stale derived value. The diff
  layer skips them for input-change tracking (see GeneratedPaths).
*/
package amort

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
	"github.com/warp/lending-engine/overrides"
)

// Path tables consumed by the version manager's diff configuration.
var (
	// OutputPaths route to outputChanges rather than inputChanges.
	OutputPaths = []string{"schedule"}

	// GeneratedPaths are machine-derived: skipped for inputChanges so they
	// never pollute the audit trail of user intent.
	GeneratedPaths = []string{"emi", "endDate", "actualTerm"}
)

// =============================================================================
// SNAPSHOT SHAPE
// =============================================================================

type Snapshot struct {
	LoanAmount         string `json:"loanAmount"`
	AnnualInterestRate string `json:"annualInterestRate"`
	Term               int    `json:"term"`
	StartDate          string `json:"startDate"`
	FirstPaymentDate   string `json:"firstPaymentDate,omitempty"`
	CalendarConvention string `json:"calendarConvention"`
	RoundingMethod     string `json:"roundingMethod"`
	RoundingPrecision  int32  `json:"roundingPrecision"`
	FlushMethod        string `json:"flushMethod"`
	FlushThreshold     string `json:"flushThreshold"`
	PreBillDays        int    `json:"preBillDays"`
	AllowRateAbove100  bool   `json:"allowRateAbove100"`
	BillingModel       string `json:"billingModel"`

	RateSchedule          []RateOverrideState        `json:"rateSchedule"`
	TermRates             []TermRateState            `json:"termInterestRateOverrides"`
	TermPaymentAmounts    []TermPaymentState         `json:"termPaymentAmounts"`
	Extensions            []TermExtensionState       `json:"termExtensions"`
	BalanceModifications  []BalanceModificationState `json:"balanceModifications"`
	ChangePaymentDates    []ChangePaymentDateState   `json:"changePaymentDates"`
	PreBillDaysOverrides  []PreBillDaysState         `json:"preBillDaysConfigurations"`
	TermCalendars         []TermCalendarState        `json:"termCalendars"`
	BillingModelOverrides []BillingModelState        `json:"billingModelOverrides"`

	DSIPayments []PaymentFactState      `json:"dsiPayments"`
	DSIHistory  []DSIPaymentRecordState `json:"dsiHistory"`

	// Derived values; stripped on restore.
	EMI        string `json:"emi"`
	EndDate    string `json:"endDate"`
	ActualTerm int    `json:"actualTerm"`

	Schedule []EntryState `json:"schedule"`
}

type RateOverrideState struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Rate   string `json:"rate"`
	Active bool   `json:"active"`
}

type TermRateState struct {
	Term   int    `json:"term"`
	Rate   string `json:"rate"`
	Active bool   `json:"active"`
}

type TermPaymentState struct {
	Term   int    `json:"term"`
	Amount string `json:"amount"`
	Active bool   `json:"active"`
}

type TermExtensionState struct {
	Quantity          int    `json:"quantity"`
	EffectiveDate     string `json:"effectiveDate"`
	Mode              string `json:"emiRecalculationMode"`
	RecalculationTerm int    `json:"emiRecalculationTerm"`
	IgnoreSkipTerms   bool   `json:"ignoreSkipTermsForEmiRecalculation"`
	Active            bool   `json:"active"`
}

type BalanceModificationState struct {
	ID            string `json:"id"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
	EffectiveDate string `json:"effectiveDate"`
	Reason        string `json:"reason,omitempty"`
	Active        bool   `json:"active"`
}

type ChangePaymentDateState struct {
	Term    int    `json:"term"`
	NewDate string `json:"newDate"`
	Active  bool   `json:"active"`
}

type PreBillDaysState struct {
	Term   int  `json:"term"`
	Days   int  `json:"days"`
	Active bool `json:"active"`
}

type TermCalendarState struct {
	Term       int    `json:"term"`
	Convention string `json:"convention"`
	Active     bool   `json:"active"`
}

type BillingModelState struct {
	Term   int    `json:"term"`
	Model  string `json:"model"`
	Active bool   `json:"active"`
}

type PaymentFactState struct {
	Term          int    `json:"term"`
	PaymentDate   string `json:"paymentDate"`
	PrincipalPaid string `json:"principalPaid"`
	InterestPaid  string `json:"interestPaid"`
	FeesPaid      string `json:"feesPaid"`
}

type DSIPaymentRecordState struct {
	Term         int     `json:"term"`
	PaymentDate  string  `json:"paymentDate"`
	StartBalance string  `json:"startBalance"`
	EndBalance   string  `json:"endBalance"`
	Interest     *string `json:"interest,omitempty"`
	Principal    *string `json:"principal,omitempty"`
	Fees         *string `json:"fees,omitempty"`
	Days         *int    `json:"days,omitempty"`
}

type EntryState struct {
	Term                          int    `json:"term"`
	PeriodStart                   string `json:"periodStart"`
	PeriodEnd                     string `json:"periodEnd"`
	BillOpenDate                  string `json:"billOpenDate"`
	BillDueDate                   string `json:"billDueDate"`
	StartBalance                  string `json:"startBalance"`
	EndBalance                    string `json:"endBalance"`
	Principal                     string `json:"principal"`
	InterestAccrued               string `json:"interestAccrued"`
	TotalPayment                  string `json:"totalPayment"`
	PeriodInterestRate            string `json:"periodInterestRate"`
	DaysInPeriod                  int    `json:"daysInPeriod"`
	UnbilledInterestDueToRounding string `json:"unbilledInterestDueToRounding"`
	BalanceModificationAmount     string `json:"balanceModificationAmount"`
	BillingModel                  string `json:"billingModel"`
	FinalAdjustment               bool   `json:"finalAdjustment"`
}

// =============================================================================
// ENGINE -> SNAPSHOT
// =============================================================================

func dateOrEmpty(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return calendar.FormatDate(d)
}

// Snapshot captures the engine's full state. The schedule is regenerated
// first if inputs changed, so the snapshot is always self-consistent.
func (e *Engine) Snapshot() Snapshot {
	schedule := e.CalculateAmortizationPlan()

	s := Snapshot{
		LoanAmount:         e.cfg.LoanAmount.String(),
		AnnualInterestRate: e.cfg.AnnualRate.String(),
		Term:               e.cfg.Term,
		StartDate:          calendar.FormatDate(e.cfg.StartDate),
		FirstPaymentDate:   dateOrEmpty(e.cfg.FirstPaymentDate),
		CalendarConvention: string(e.cfg.Calendar.Convention()),
		RoundingMethod:     string(e.cfg.RoundingMethod),
		RoundingPrecision:  e.cfg.RoundingPrecision,
		FlushMethod:        string(e.cfg.FlushMethod),
		FlushThreshold:     e.cfg.FlushThreshold.String(),
		PreBillDays:        e.cfg.PreBillDays,
		AllowRateAbove100:  e.cfg.AllowRateAbove100,
		BillingModel:       string(e.cfg.BillingModel),
		EMI:                e.emi.String(),
		EndDate:            calendar.FormatDate(e.EndDate()),
		ActualTerm:         e.ActualTerm(),
	}

	for _, o := range e.cfg.Rates.All() {
		s.RateSchedule = append(s.RateSchedule, RateOverrideState{
			Start: calendar.FormatDate(o.Start), End: calendar.FormatDate(o.End),
			Rate: o.Rate.String(), Active: o.Active,
		})
	}
	for _, o := range e.cfg.TermRates.All() {
		s.TermRates = append(s.TermRates, TermRateState{Term: o.Term, Rate: o.Rate.String(), Active: o.Active})
	}
	for _, o := range e.cfg.TermPaymentAmounts.All() {
		s.TermPaymentAmounts = append(s.TermPaymentAmounts, TermPaymentState{Term: o.Term, Amount: o.Amount.String(), Active: o.Active})
	}
	for _, o := range e.cfg.Extensions.All() {
		s.Extensions = append(s.Extensions, TermExtensionState{
			Quantity: o.Quantity, EffectiveDate: dateOrEmpty(o.EffectiveDate),
			Mode: string(o.EMIRecalculationMode), RecalculationTerm: o.RecalculationTerm,
			IgnoreSkipTerms: o.IgnoreSkipTermsForEMIRecalculation, Active: o.Active,
		})
	}
	for _, o := range e.cfg.BalanceModifications.All() {
		s.BalanceModifications = append(s.BalanceModifications, BalanceModificationState{
			ID: o.ID, Amount: o.Amount.String(), Type: string(o.Type),
			EffectiveDate: calendar.FormatDate(o.EffectiveDate), Reason: o.Reason, Active: o.Active,
		})
	}
	for _, o := range e.cfg.ChangePaymentDates.All() {
		s.ChangePaymentDates = append(s.ChangePaymentDates, ChangePaymentDateState{
			Term: o.Term, NewDate: calendar.FormatDate(o.NewDate), Active: o.Active,
		})
	}
	for _, o := range e.cfg.PreBillDaysOverrides.All() {
		s.PreBillDaysOverrides = append(s.PreBillDaysOverrides, PreBillDaysState{Term: o.Term, Days: o.Days, Active: o.Active})
	}
	for _, o := range e.cfg.TermCalendars.All() {
		s.TermCalendars = append(s.TermCalendars, TermCalendarState{
			Term: o.Term, Convention: string(o.Calendar.Convention()), Active: o.Active,
		})
	}
	for _, o := range e.cfg.BillingModelOverrides.All() {
		s.BillingModelOverrides = append(s.BillingModelOverrides, BillingModelState{
			Term: o.Term, Model: string(o.Model), Active: o.Active,
		})
	}

	// Iterate the ledger keys themselves so facts recorded beyond the
	// current schedule length still round-trip.
	for _, term := range sortedDSITerms(e.dsiFacts, e.dsiHistory) {
		for _, f := range e.dsiFacts[term] {
			s.DSIPayments = append(s.DSIPayments, PaymentFactState{
				Term: f.Term, PaymentDate: calendar.FormatDate(f.PaymentDate),
				PrincipalPaid: f.PrincipalPaid.String(), InterestPaid: f.InterestPaid.String(),
				FeesPaid: f.FeesPaid.String(),
			})
		}
		if rec, ok := e.dsiHistory[term]; ok {
			state := DSIPaymentRecordState{
				Term: rec.Term, PaymentDate: calendar.FormatDate(rec.PaymentDate),
				StartBalance: rec.StartBalance.String(), EndBalance: rec.EndBalance.String(),
				Days: rec.Days,
			}
			if rec.Interest != nil {
				v := rec.Interest.String()
				state.Interest = &v
			}
			if rec.Principal != nil {
				v := rec.Principal.String()
				state.Principal = &v
			}
			if rec.Fees != nil {
				v := rec.Fees.String()
				state.Fees = &v
			}
			s.DSIHistory = append(s.DSIHistory, state)
		}
	}

	for _, entry := range schedule {
		s.Schedule = append(s.Schedule, EntryState{
			Term:                          entry.Term,
			PeriodStart:                   calendar.FormatDate(entry.PeriodStart),
			PeriodEnd:                     calendar.FormatDate(entry.PeriodEnd),
			BillOpenDate:                  calendar.FormatDate(entry.BillOpenDate),
			BillDueDate:                   calendar.FormatDate(entry.BillDueDate),
			StartBalance:                  entry.StartBalance.String(),
			EndBalance:                    entry.EndBalance.String(),
			Principal:                     entry.Principal.String(),
			InterestAccrued:               entry.InterestAccrued.String(),
			TotalPayment:                  entry.TotalPayment.String(),
			PeriodInterestRate:            entry.PeriodInterestRate.String(),
			DaysInPeriod:                  entry.DaysInPeriod,
			UnbilledInterestDueToRounding: entry.UnbilledInterestDueToRounding.String(),
			BalanceModificationAmount:     entry.BalanceModificationAmount.String(),
			BillingModel:                  string(entry.BillingModel),
			FinalAdjustment:               entry.Metadata.FinalAdjustment,
		})
	}

	return s
}

// sortedDSITerms unions the keys of both DSI ledgers in ascending order.
func sortedDSITerms(facts map[int][]PaymentFact, history map[int]DSIPaymentRecord) []int {
	seen := make(map[int]bool, len(facts)+len(history))
	for term := range facts {
		seen[term] = true
	}
	for term := range history {
		seen[term] = true
	}
	terms := make([]int, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Ints(terms)
	return terms
}

// =============================================================================
// SNAPSHOT -> ENGINE
// =============================================================================

func parseDec(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("snapshot field %s: %w", field, err)
	}
	return d, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot field %s: %w", field, err)
	}
	return d, nil
}

// FromSnapshot rebuilds an engine from a snapshot's input fields. Derived
// fields (EMI, end date, actual term, schedule) are deliberately NOT
// restored: the rebuilt engine regenerates them from inputs, so a rollback
// can never freeze a stale derived value.
func FromSnapshot(s Snapshot) (*Engine, error) {
	loanAmount, err := parseDec("loanAmount", s.LoanAmount)
	if err != nil {
		return nil, err
	}
	annualRate, err := parseDec("annualInterestRate", s.AnnualInterestRate)
	if err != nil {
		return nil, err
	}
	startDate, err := parseDate("startDate", s.StartDate)
	if err != nil {
		return nil, err
	}
	firstPayment, err := parseDate("firstPaymentDate", s.FirstPaymentDate)
	if err != nil {
		return nil, err
	}
	cal, err := calendar.New(calendar.Convention(s.CalendarConvention))
	if err != nil {
		return nil, err
	}
	flushThreshold, err := parseDec("flushThreshold", s.FlushThreshold)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		LoanAmount:        loanAmount,
		AnnualRate:        annualRate,
		Term:              s.Term,
		StartDate:         startDate,
		FirstPaymentDate:  firstPayment,
		Calendar:          cal,
		RoundingMethod:    RoundingMethod(s.RoundingMethod),
		RoundingPrecision: s.RoundingPrecision,
		FlushMethod:       FlushMethod(s.FlushMethod),
		FlushThreshold:    flushThreshold,
		PreBillDays:       s.PreBillDays,
		AllowRateAbove100: s.AllowRateAbove100,
		BillingModel:      overrides.BillingModel(s.BillingModel),
	}

	cfg.Rates, _ = overrides.NewRateSchedule()
	for _, o := range s.RateSchedule {
		start, err := parseDate("rateSchedule.start", o.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseDate("rateSchedule.end", o.End)
		if err != nil {
			return nil, err
		}
		rate, err := parseDec("rateSchedule.rate", o.Rate)
		if err != nil {
			return nil, err
		}
		if err := cfg.Rates.Add(overrides.RateOverride{Start: start, End: end, Rate: rate, Active: o.Active}); err != nil {
			return nil, err
		}
	}

	cfg.TermRates, _ = overrides.NewTermInterestRateOverrides()
	for _, o := range s.TermRates {
		rate, err := parseDec("termInterestRateOverrides.rate", o.Rate)
		if err != nil {
			return nil, err
		}
		if err := cfg.TermRates.Add(overrides.TermInterestRateOverride{Term: o.Term, Rate: rate, Active: o.Active}); err != nil {
			return nil, err
		}
	}

	cfg.TermPaymentAmounts, _ = overrides.NewTermPaymentAmounts()
	for _, o := range s.TermPaymentAmounts {
		amount, err := parseDec("termPaymentAmounts.amount", o.Amount)
		if err != nil {
			return nil, err
		}
		if err := cfg.TermPaymentAmounts.Add(overrides.TermPaymentAmount{Term: o.Term, Amount: amount, Active: o.Active}); err != nil {
			return nil, err
		}
	}

	cfg.Extensions = overrides.NewTermExtensions()
	for _, o := range s.Extensions {
		effective, err := parseDate("termExtensions.effectiveDate", o.EffectiveDate)
		if err != nil {
			return nil, err
		}
		cfg.Extensions.Add(overrides.TermExtension{
			Quantity:                           o.Quantity,
			EffectiveDate:                      effective,
			EMIRecalculationMode:               overrides.EMIRecalculationMode(o.Mode),
			RecalculationTerm:                  o.RecalculationTerm,
			IgnoreSkipTermsForEMIRecalculation: o.IgnoreSkipTerms,
			Active:                             o.Active,
		})
	}

	cfg.BalanceModifications, _ = overrides.NewBalanceModifications()
	for _, o := range s.BalanceModifications {
		amount, err := parseDec("balanceModifications.amount", o.Amount)
		if err != nil {
			return nil, err
		}
		effective, err := parseDate("balanceModifications.effectiveDate", o.EffectiveDate)
		if err != nil {
			return nil, err
		}
		if err := cfg.BalanceModifications.Add(overrides.BalanceModification{
			ID: o.ID, Amount: amount, Type: overrides.ModificationType(o.Type),
			EffectiveDate: effective, Reason: o.Reason, Active: o.Active,
		}); err != nil {
			return nil, err
		}
	}

	cfg.ChangePaymentDates, _ = overrides.NewChangePaymentDates()
	for _, o := range s.ChangePaymentDates {
		newDate, err := parseDate("changePaymentDates.newDate", o.NewDate)
		if err != nil {
			return nil, err
		}
		if err := cfg.ChangePaymentDates.Add(overrides.ChangePaymentDate{Term: o.Term, NewDate: newDate, Active: o.Active}); err != nil {
			return nil, err
		}
	}

	cfg.PreBillDaysOverrides, _ = overrides.NewPreBillDaysConfigurations()
	for _, o := range s.PreBillDaysOverrides {
		if err := cfg.PreBillDaysOverrides.Add(overrides.PreBillDaysConfiguration{Term: o.Term, Days: o.Days, Active: o.Active}); err != nil {
			return nil, err
		}
	}

	cfg.TermCalendars, _ = overrides.NewTermCalendars()
	for _, o := range s.TermCalendars {
		termCal, err := calendar.New(calendar.Convention(o.Convention))
		if err != nil {
			return nil, err
		}
		if err := cfg.TermCalendars.Add(overrides.TermCalendar{Term: o.Term, Calendar: termCal, Active: o.Active}); err != nil {
			return nil, err
		}
	}

	cfg.BillingModelOverrides, _ = overrides.NewBillingModelOverrides()
	for _, o := range s.BillingModelOverrides {
		if err := cfg.BillingModelOverrides.Add(overrides.BillingModelOverride{
			Term: o.Term, Model: overrides.BillingModel(o.Model), Active: o.Active,
		}); err != nil {
			return nil, err
		}
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	for _, f := range s.DSIPayments {
		payDate, err := parseDate("dsiPayments.paymentDate", f.PaymentDate)
		if err != nil {
			return nil, err
		}
		principal, err := parseDec("dsiPayments.principalPaid", f.PrincipalPaid)
		if err != nil {
			return nil, err
		}
		interestPaid, err := parseDec("dsiPayments.interestPaid", f.InterestPaid)
		if err != nil {
			return nil, err
		}
		fees, err := parseDec("dsiPayments.feesPaid", f.FeesPaid)
		if err != nil {
			return nil, err
		}
		engine.AddDSIPayment(PaymentFact{
			Term: f.Term, PaymentDate: payDate,
			PrincipalPaid: principal, InterestPaid: interestPaid, FeesPaid: fees,
		})
	}

	for _, r := range s.DSIHistory {
		payDate, err := parseDate("dsiHistory.paymentDate", r.PaymentDate)
		if err != nil {
			return nil, err
		}
		startBal, err := parseDec("dsiHistory.startBalance", r.StartBalance)
		if err != nil {
			return nil, err
		}
		endBal, err := parseDec("dsiHistory.endBalance", r.EndBalance)
		if err != nil {
			return nil, err
		}
		rec := DSIPaymentRecord{
			Term: r.Term, PaymentDate: payDate,
			StartBalance: startBal, EndBalance: endBal, Days: r.Days,
		}
		if r.Interest != nil {
			v, err := parseDec("dsiHistory.interest", *r.Interest)
			if err != nil {
				return nil, err
			}
			rec.Interest = &v
		}
		if r.Principal != nil {
			v, err := parseDec("dsiHistory.principal", *r.Principal)
			if err != nil {
				return nil, err
			}
			rec.Principal = &v
		}
		if r.Fees != nil {
			v, err := parseDec("dsiHistory.fees", *r.Fees)
			if err != nil {
				return nil, err
			}
			rec.Fees = &v
		}
		engine.UpdateDSIPaymentHistory(rec)
	}

	return engine, nil
}
