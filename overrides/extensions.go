package overrides

import (
	"sort"
	"time"

	"github.com/warp/lending-engine/calendar"
)

// =============================================================================
// TERM EXTENSIONS - Lengthen the loan and optionally re-level the EMI
// =============================================================================

// EMIRecalculationMode controls whether extending the term also re-levels
// the payment amount.
type EMIRecalculationMode string

const (
	// EMIRecalcNone keeps the existing payment; the extension does not
	// lengthen the generated schedule.
	EMIRecalcNone EMIRecalculationMode = "none"

	// EMIRecalcFromStart re-solves the EMI over the full extended term.
	EMIRecalcFromStart EMIRecalculationMode = "from_start"

	// EMIRecalcFromTerm re-solves the EMI starting at RecalculationTerm,
	// using the balance carried into that term.
	EMIRecalcFromTerm EMIRecalculationMode = "from_term"
)

// TermExtension adds Quantity terms to the loan. Multiple active extensions
// stack: actualTerm = contractualTerm + sum of active quantities. Inactive or
// zero-quantity extensions are fully inert.
type TermExtension struct {
	Quantity                           int
	EffectiveDate                      time.Time
	EMIRecalculationMode               EMIRecalculationMode
	RecalculationTerm                  int // only meaningful for from_term
	IgnoreSkipTermsForEMIRecalculation bool
	Active                             bool
}

// Counts reports whether this extension contributes to actualTerm.
func (e TermExtension) Counts() bool { return e.Active && e.Quantity > 0 }

type TermExtensions struct {
	entries []TermExtension
}

func NewTermExtensions(entries ...TermExtension) *TermExtensions {
	c := &TermExtensions{}
	for _, e := range entries {
		c.Add(e)
	}
	return c
}

// Add appends an extension. Extensions are not keyed, so there is no
// duplicate-active rule: stacked active extensions are summed.
func (c *TermExtensions) Add(e TermExtension) {
	e.EffectiveDate = calendar.Midnight(e.EffectiveDate)
	if e.EMIRecalculationMode == "" {
		e.EMIRecalculationMode = EMIRecalcNone
	}
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].EffectiveDate.Before(c.entries[j].EffectiveDate)
	})
}

func (c *TermExtensions) All() []TermExtension { return append([]TermExtension(nil), c.entries...) }

func (c *TermExtensions) Active() []TermExtension {
	var out []TermExtension
	for _, e := range c.entries {
		if e.Counts() {
			out = append(out, e)
		}
	}
	return out
}

// TotalActiveQuantity is the number of terms added to the contractual term.
// Extensions whose recalculation mode is none do not lengthen the schedule.
func (c *TermExtensions) TotalActiveQuantity() int {
	total := 0
	for _, e := range c.entries {
		if e.Counts() && e.EMIRecalculationMode != EMIRecalcNone {
			total += e.Quantity
		}
	}
	return total
}

// SetActive toggles the extension at index i.
func (c *TermExtensions) SetActive(i int, active bool) {
	if i >= 0 && i < len(c.entries) {
		c.entries[i].Active = active
	}
}

func (c *TermExtensions) Len() int { return len(c.entries) }
