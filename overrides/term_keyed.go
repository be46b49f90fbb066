package overrides

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
)

// =============================================================================
// TERM PAYMENT AMOUNTS - Per-term scheduled payment overrides
// =============================================================================

// TermPaymentAmount pins the scheduled payment for one term. An explicit
// zero amount is meaningful: it is a skip-a-pay, deferring all interest.
type TermPaymentAmount struct {
	Term   int
	Amount decimal.Decimal
	Active bool
}

type TermPaymentAmounts struct {
	entries []TermPaymentAmount
}

func NewTermPaymentAmounts(entries ...TermPaymentAmount) (*TermPaymentAmounts, error) {
	c := &TermPaymentAmounts{}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *TermPaymentAmounts) Add(e TermPaymentAmount) error {
	if e.Active {
		if _, ok := c.ForTerm(e.Term); ok {
			return duplicateTerm("term payment amount", e.Term)
		}
	}
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool { return c.entries[i].Term < c.entries[j].Term })
	return nil
}

// ForTerm returns the active override for a term, if any.
func (c *TermPaymentAmounts) ForTerm(term int) (TermPaymentAmount, bool) {
	for _, e := range c.entries {
		if e.Active && e.Term == term {
			return e, true
		}
	}
	return TermPaymentAmount{}, false
}

// SetActive toggles every entry for the given term. Activating fails if it
// would produce two active entries for the same term.
func (c *TermPaymentAmounts) SetActive(term int, active bool) error {
	return setActiveByTerm("term payment amount", term, active, len(c.entries),
		func(i int) int { return c.entries[i].Term },
		func(i int) bool { return c.entries[i].Active },
		func(i int, a bool) { c.entries[i].Active = a })
}

func (c *TermPaymentAmounts) All() []TermPaymentAmount { return append([]TermPaymentAmount(nil), c.entries...) }

// IsSkipTerm reports whether the term has an active explicit-zero payment.
func (c *TermPaymentAmounts) IsSkipTerm(term int) bool {
	e, ok := c.ForTerm(term)
	return ok && e.Amount.IsZero()
}

// =============================================================================
// TERM INTEREST RATE OVERRIDES - Per-term annual rate pins
// =============================================================================

type TermInterestRateOverride struct {
	Term   int
	Rate   decimal.Decimal // annual rate as a decimal fraction (0.05 = 5%)
	Active bool
}

type TermInterestRateOverrides struct {
	entries []TermInterestRateOverride
}

func NewTermInterestRateOverrides(entries ...TermInterestRateOverride) (*TermInterestRateOverrides, error) {
	c := &TermInterestRateOverrides{}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *TermInterestRateOverrides) Add(e TermInterestRateOverride) error {
	if e.Active {
		if _, ok := c.ForTerm(e.Term); ok {
			return duplicateTerm("term interest rate", e.Term)
		}
	}
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool { return c.entries[i].Term < c.entries[j].Term })
	return nil
}

func (c *TermInterestRateOverrides) ForTerm(term int) (TermInterestRateOverride, bool) {
	for _, e := range c.entries {
		if e.Active && e.Term == term {
			return e, true
		}
	}
	return TermInterestRateOverride{}, false
}

func (c *TermInterestRateOverrides) SetActive(term int, active bool) error {
	return setActiveByTerm("term interest rate", term, active, len(c.entries),
		func(i int) int { return c.entries[i].Term },
		func(i int) bool { return c.entries[i].Active },
		func(i int, a bool) { c.entries[i].Active = a })
}

func (c *TermInterestRateOverrides) All() []TermInterestRateOverride {
	return append([]TermInterestRateOverride(nil), c.entries...)
}

// =============================================================================
// CHANGE PAYMENT DATES - Move one term's due date
// =============================================================================

type ChangePaymentDate struct {
	Term    int
	NewDate time.Time
	Active  bool
}

type ChangePaymentDates struct {
	entries []ChangePaymentDate
}

func NewChangePaymentDates(entries ...ChangePaymentDate) (*ChangePaymentDates, error) {
	c := &ChangePaymentDates{}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *ChangePaymentDates) Add(e ChangePaymentDate) error {
	if e.Active {
		if _, ok := c.ForTerm(e.Term); ok {
			return duplicateTerm("change payment date", e.Term)
		}
	}
	e.NewDate = calendar.Midnight(e.NewDate)
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool { return c.entries[i].Term < c.entries[j].Term })
	return nil
}

func (c *ChangePaymentDates) ForTerm(term int) (ChangePaymentDate, bool) {
	for _, e := range c.entries {
		if e.Active && e.Term == term {
			return e, true
		}
	}
	return ChangePaymentDate{}, false
}

func (c *ChangePaymentDates) SetActive(term int, active bool) error {
	return setActiveByTerm("change payment date", term, active, len(c.entries),
		func(i int) int { return c.entries[i].Term },
		func(i int) bool { return c.entries[i].Active },
		func(i int, a bool) { c.entries[i].Active = a })
}

func (c *ChangePaymentDates) All() []ChangePaymentDate { return append([]ChangePaymentDate(nil), c.entries...) }

// =============================================================================
// PRE-BILL DAYS - How far before the due date a bill opens
// =============================================================================

type PreBillDaysConfiguration struct {
	Term   int
	Days   int
	Active bool
}

type PreBillDaysConfigurations struct {
	entries []PreBillDaysConfiguration
}

func NewPreBillDaysConfigurations(entries ...PreBillDaysConfiguration) (*PreBillDaysConfigurations, error) {
	c := &PreBillDaysConfigurations{}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PreBillDaysConfigurations) Add(e PreBillDaysConfiguration) error {
	if e.Active {
		if _, ok := c.ForTerm(e.Term); ok {
			return duplicateTerm("pre-bill days", e.Term)
		}
	}
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool { return c.entries[i].Term < c.entries[j].Term })
	return nil
}

func (c *PreBillDaysConfigurations) ForTerm(term int) (PreBillDaysConfiguration, bool) {
	for _, e := range c.entries {
		if e.Active && e.Term == term {
			return e, true
		}
	}
	return PreBillDaysConfiguration{}, false
}

func (c *PreBillDaysConfigurations) All() []PreBillDaysConfiguration {
	return append([]PreBillDaysConfiguration(nil), c.entries...)
}

// =============================================================================
// TERM CALENDARS - Per-term day-count convention overrides
// =============================================================================

type TermCalendar struct {
	Term     int
	Calendar calendar.Calendar
	Active   bool
}

type TermCalendars struct {
	entries []TermCalendar
}

func NewTermCalendars(entries ...TermCalendar) (*TermCalendars, error) {
	c := &TermCalendars{}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *TermCalendars) Add(e TermCalendar) error {
	if e.Active {
		if _, ok := c.ForTerm(e.Term); ok {
			return duplicateTerm("term calendar", e.Term)
		}
	}
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool { return c.entries[i].Term < c.entries[j].Term })
	return nil
}

func (c *TermCalendars) ForTerm(term int) (TermCalendar, bool) {
	for _, e := range c.entries {
		if e.Active && e.Term == term {
			return e, true
		}
	}
	return TermCalendar{}, false
}

func (c *TermCalendars) All() []TermCalendar { return append([]TermCalendar(nil), c.entries...) }

// =============================================================================
// BILLING MODEL OVERRIDES - Switch amortized/DSI mid-schedule
// =============================================================================

type BillingModelOverride struct {
	Term   int
	Model  BillingModel
	Active bool
}

type BillingModelOverrides struct {
	entries []BillingModelOverride
}

func NewBillingModelOverrides(entries ...BillingModelOverride) (*BillingModelOverrides, error) {
	c := &BillingModelOverrides{}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *BillingModelOverrides) Add(e BillingModelOverride) error {
	if e.Active {
		if _, ok := c.ForTerm(e.Term); ok {
			return duplicateTerm("billing model", e.Term)
		}
	}
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool { return c.entries[i].Term < c.entries[j].Term })
	return nil
}

func (c *BillingModelOverrides) ForTerm(term int) (BillingModelOverride, bool) {
	for _, e := range c.entries {
		if e.Active && e.Term == term {
			return e, true
		}
	}
	return BillingModelOverride{}, false
}

func (c *BillingModelOverrides) All() []BillingModelOverride {
	return append([]BillingModelOverride(nil), c.entries...)
}

// =============================================================================
// SHARED TOGGLE HELPER
// =============================================================================

// setActiveByTerm flips the Active flag on every entry matching term.
// Activating checks the one-active-per-term rule against OTHER entries first.
func setActiveByTerm(kind string, term int, active bool, n int,
	termAt func(int) int, activeAt func(int) bool, set func(int, bool)) error {

	found := false
	for i := 0; i < n; i++ {
		if termAt(i) != term {
			continue
		}
		if active && found {
			// Two stored entries for the same term cannot both activate.
			return duplicateTerm(kind, term)
		}
		found = true
	}
	for i := 0; i < n; i++ {
		if termAt(i) == term {
			set(i, active)
		}
	}
	return nil
}
