package overrides

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
)

// =============================================================================
// BALANCE MODIFICATIONS - One-off principal adjustments outside the waterfall
// =============================================================================

type ModificationType string

const (
	ModificationDecrease ModificationType = "decrease"
	ModificationIncrease ModificationType = "increase"
)

// BalanceModification adjusts outstanding principal at a specific date.
// Amount is always positive; Type carries the direction.
type BalanceModification struct {
	ID            string
	Amount        decimal.Decimal
	Type          ModificationType
	EffectiveDate time.Time
	Reason        string
	Active        bool
	Metadata      map[string]string
}

// SignedAmount is the delta applied to the balance: negative for a decrease.
func (m BalanceModification) SignedAmount() decimal.Decimal {
	if m.Type == ModificationDecrease {
		return m.Amount.Neg()
	}
	return m.Amount
}

type BalanceModifications struct {
	entries []BalanceModification
}

func NewBalanceModifications(entries ...BalanceModification) (*BalanceModifications, error) {
	c := &BalanceModifications{}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *BalanceModifications) Add(e BalanceModification) error {
	e.EffectiveDate = calendar.Midnight(e.EffectiveDate)
	if e.Active {
		for _, existing := range c.entries {
			if existing.Active && existing.EffectiveDate.Equal(e.EffectiveDate) {
				return duplicateDate("balance modification", e.EffectiveDate)
			}
		}
	}
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].EffectiveDate.Before(c.entries[j].EffectiveDate)
	})
	return nil
}

func (c *BalanceModifications) All() []BalanceModification {
	return append([]BalanceModification(nil), c.entries...)
}

// InPeriod returns active modifications effective in (start, end].
// A modification dated exactly on a period boundary belongs to the period
// that ends on that date.
func (c *BalanceModifications) InPeriod(start, end time.Time) []BalanceModification {
	start, end = calendar.Midnight(start), calendar.Midnight(end)
	var out []BalanceModification
	for _, e := range c.entries {
		if e.Active && e.EffectiveDate.After(start) && !e.EffectiveDate.After(end) {
			out = append(out, e)
		}
	}
	return out
}

// SetActive toggles every modification with the given ID.
func (c *BalanceModifications) SetActive(id string, active bool) {
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Active = active
		}
	}
}
