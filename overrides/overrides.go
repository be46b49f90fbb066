/*
Package overrides defines the servicer-supplied adjustments that bend a loan
away from its contractual terms.

PURPOSE:
  A loan's base terms (amount, rate, term, start date) rarely survive
  contact with servicing. Rates get renegotiated, payments get skipped,
  terms get extended, balances get corrected. Each of those actions is an
  override entry, and each kind of entry lives in an ordered, validated
  collection keyed by term number or date.

KEY RULES (shared by every collection):
  1. At most ONE active entry per term/date key. A second active entry for
     the same key is a conflict error, never a silent last-writer-wins.
  2. Deactivation is non-destructive: entries carry an Active flag so a
     servicer action can be toggled off and back on without losing it.
  3. Collections keep entries sorted by their key; iteration order is
     deterministic.

SEE ALSO:
  - amort: resolves these collections term by term while generating the plan
*/
package overrides

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrDuplicateActiveOverride is the sentinel for the one-active-per-key rule.
// Use errors.Is; the concrete *DuplicateActiveError carries the key.
var ErrDuplicateActiveOverride = errors.New("duplicate active override")

// DuplicateActiveError identifies the colliding key.
type DuplicateActiveError struct {
	Kind string // e.g. "term payment amount", "rate schedule"
	Term int    // term-keyed collections; -1 for date-keyed
	Date time.Time
}

func (e *DuplicateActiveError) Error() string {
	if e.Term >= 0 {
		return fmt.Sprintf("duplicate active %s override for term %d", e.Kind, e.Term)
	}
	return fmt.Sprintf("duplicate active %s override at %s", e.Kind, e.Date.Format("2006-01-02"))
}

func (e *DuplicateActiveError) Unwrap() error { return ErrDuplicateActiveOverride }

func duplicateTerm(kind string, term int) error {
	return &DuplicateActiveError{Kind: kind, Term: term}
}

func duplicateDate(kind string, date time.Time) error {
	return &DuplicateActiveError{Kind: kind, Term: -1, Date: date}
}

// =============================================================================
// BILLING MODEL
// =============================================================================

// BillingModel selects how a term accrues: against the projected schedule
// (amortized) or against the actual outstanding balance day by day (DSI).
type BillingModel string

const (
	BillingAmortized           BillingModel = "amortized"
	BillingDailySimpleInterest BillingModel = "dsi"
)
