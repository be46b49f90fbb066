package overrides

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/calendar"
)

// =============================================================================
// RATE SCHEDULE - Date-ranged annual rate segments
// =============================================================================

// RateOverride applies an annual rate over [Start, End). Active overrides may
// not overlap: a date can be governed by at most one active segment.
type RateOverride struct {
	Start  time.Time
	End    time.Time
	Rate   decimal.Decimal
	Active bool
}

func (r RateOverride) overlaps(other RateOverride) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

type RateSchedule struct {
	entries []RateOverride
}

func NewRateSchedule(entries ...RateOverride) (*RateSchedule, error) {
	s := &RateSchedule{}
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *RateSchedule) Add(e RateOverride) error {
	e.Start = calendar.Midnight(e.Start)
	e.End = calendar.Midnight(e.End)
	if e.Active {
		for _, existing := range s.entries {
			if existing.Active && existing.overlaps(e) {
				return duplicateDate("rate schedule", e.Start)
			}
		}
	}
	s.entries = append(s.entries, e)
	sort.SliceStable(s.entries, func(i, j int) bool { return s.entries[i].Start.Before(s.entries[j].Start) })
	return nil
}

func (s *RateSchedule) All() []RateOverride { return append([]RateOverride(nil), s.entries...) }

func (s *RateSchedule) ActiveSegments() []RateOverride {
	var out []RateOverride
	for _, e := range s.entries {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// SEGMENT SPLITTING
// =============================================================================

// RateSegment is one rate over one sub-range of a query window.
type RateSegment struct {
	Start time.Time
	End   time.Time
	Rate  decimal.Decimal
}

// SegmentsBetween splits [start, end) at every active override boundary and
// returns contiguous segments covering the whole window. Gaps not covered by
// any override carry baseRate. This backs both mid-period pro-rated interest
// and the GetInterestRatesBetweenDates API.
func (s *RateSchedule) SegmentsBetween(start, end time.Time, baseRate decimal.Decimal) []RateSegment {
	start, end = calendar.Midnight(start), calendar.Midnight(end)
	if !start.Before(end) {
		return nil
	}

	var segments []RateSegment
	cursor := start
	for _, e := range s.entries {
		if !e.Active || !e.Start.Before(end) || !cursor.Before(e.End) {
			continue
		}
		segStart := e.Start
		if segStart.Before(cursor) {
			segStart = cursor
		}
		if segStart.After(cursor) {
			segments = append(segments, RateSegment{Start: cursor, End: segStart, Rate: baseRate})
		}
		segEnd := e.End
		if segEnd.After(end) {
			segEnd = end
		}
		segments = append(segments, RateSegment{Start: segStart, End: segEnd, Rate: e.Rate})
		cursor = segEnd
	}
	if cursor.Before(end) {
		segments = append(segments, RateSegment{Start: cursor, End: end, Rate: baseRate})
	}
	return segments
}
