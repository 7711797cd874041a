/*
window.go - Accrual window, contribution deltas and the cumulative cascade

PURPOSE:
  The AccrualWindow is the day-ordered, type-partitioned view of one person's
  accrual rows that a single calculation operates on. It spans from the day
  before the changed record's start date (the carry-over seed row) through
  the end of the applicable agreement.

OWNERSHIP:
  A window is built by the Calculator from the rows its AccrualSource
  returned, mutated in place by ApplyDelta and Cascade, and read back with
  Rows. Rows are cloned on the way in and on the way out, so nothing outside
  one calculation ever aliases a window row.

CASCADE RULE:
  base    = seed.CumulativeTotal if seed.Date >= agreement.StartDate, else 0
  cum(d)  = cum(d-1) + total(d)                 for every d >= from
  The seed row is read, never written.

  A record spanning two agreements is governed by the later one, but its
  first day still belongs to the earlier agreement. Rows dated before the
  agreement start continue the seed's running total, and the total restarts
  at zero on the first row inside the agreement.

EXAMPLE:
  seed 2023-04-17 cum=6480, record 08:00-10:00 on 2023-04-18 (120 min)
  → 2023-04-18 total=120 cum=6600, 2023-04-19 cum=6600+total(19), ...
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL SERIES - One type's rows ordered by date
// =============================================================================

// AccrualSeries holds the rows of a single accrual type in ascending date order.
type AccrualSeries struct {
	typeID AccrualTypeID
	rows   []*AccrualRecord
	index  map[Date]*AccrualRecord
}

func newAccrualSeries(typeID AccrualTypeID) *AccrualSeries {
	return &AccrualSeries{typeID: typeID, index: make(map[Date]*AccrualRecord)}
}

// TypeID returns the accrual type this series belongs to.
func (s *AccrualSeries) TypeID() AccrualTypeID { return s.typeID }

// Len returns the number of rows.
func (s *AccrualSeries) Len() int { return len(s.rows) }

// Get returns the row for a date, or nil.
func (s *AccrualSeries) Get(d Date) *AccrualRecord { return s.index[d] }

func (s *AccrualSeries) insert(r *AccrualRecord) error {
	if _, exists := s.index[r.Date]; exists {
		return &DuplicateAccrualError{TypeID: s.typeID, Date: r.Date}
	}
	i := sort.Search(len(s.rows), func(i int) bool {
		return s.rows[i].Date.After(r.Date)
	})
	s.rows = append(s.rows, nil)
	copy(s.rows[i+1:], s.rows[i:])
	s.rows[i] = r
	s.index[r.Date] = r
	return nil
}

// firstOnOrAfter returns the index of the first row dated >= d.
func (s *AccrualSeries) firstOnOrAfter(d Date) int {
	return sort.Search(len(s.rows), func(i int) bool {
		return !s.rows[i].Date.Before(d)
	})
}

// ApplyDelta applies one record's change to every day it touches.
//
// CREATE sets the record's contribution on each day; DELETE removes it. A
// DELETE whose entry is already absent leaves that day unchanged. Any other
// action is rejected. A day without a row fails with *MissingAccrualError
// and no row is synthesised.
func (s *AccrualSeries) ApplyDelta(module AccrualModule, record TimeRecord, days []DayInterval, action Action) error {
	if !action.Supported() {
		return &UnsupportedActionError{Action: action}
	}

	// Check every day first so a missing row leaves the series untouched.
	for _, day := range days {
		if s.index[day.Date] == nil {
			return &MissingAccrualError{
				TenantID: record.TenantID,
				PersonID: record.PersonID,
				TypeID:   s.typeID,
				Date:     day.Date,
			}
		}
	}

	for _, day := range days {
		row := s.index[day.Date]
		switch action {
		case ActionCreate:
			row.SetContribution(record.ID, module.ContributionFor(day))
		case ActionDelete:
			row.RemoveContribution(record.ID)
		}
	}
	return nil
}

// Cascade rewrites the cumulative total of every row dated on or after 'from'.
func (s *AccrualSeries) Cascade(agreement Agreement, from Date) error {
	if len(s.rows) == 0 {
		return ErrEmptyAccrualWindow
	}

	start := s.firstOnOrAfter(from)
	running := decimal.Zero
	var prev *AccrualRecord
	if start > 0 {
		prev = s.rows[start-1]
		running = prev.CumulativeTotal
	}

	for _, row := range s.rows[start:] {
		enters := row.Date.AfterOrEqual(agreement.StartDate) &&
			(prev == nil || prev.Date.Before(agreement.StartDate))
		if enters {
			running = decimal.Zero
		}
		running = running.Add(row.Total)
		row.CumulativeTotal = running
		prev = row
	}
	return nil
}

// =============================================================================
// ACCRUAL WINDOW - All series of one calculation
// =============================================================================

// AccrualWindow maps each accrual type to its date-ordered series.
type AccrualWindow struct {
	series map[AccrualTypeID]*AccrualSeries
}

// NewAccrualWindow groups rows by type and orders them by date.
// Rows are cloned; the caller's slice is never mutated.
func NewAccrualWindow(records []AccrualRecord) (*AccrualWindow, error) {
	w := &AccrualWindow{series: make(map[AccrualTypeID]*AccrualSeries)}
	for _, r := range records {
		row := r.Clone()
		row.RecomputeTotal()
		s := w.series[row.TypeID]
		if s == nil {
			s = newAccrualSeries(row.TypeID)
			w.series[row.TypeID] = s
		}
		if err := s.insert(&row); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Series returns the rows of one type, or nil if the window has none.
func (w *AccrualWindow) Series(typeID AccrualTypeID) *AccrualSeries {
	return w.series[typeID]
}

// IsEmpty returns true if the window holds no rows at all.
func (w *AccrualWindow) IsEmpty() bool {
	for _, s := range w.series {
		if s.Len() > 0 {
			return false
		}
	}
	return true
}

// Rows returns copies of the rows dated on or after 'from' for the given
// types, ordered by type then date. Rows before 'from' (the seed) are dropped.
func (w *AccrualWindow) Rows(from Date, types []AccrualTypeID) []AccrualRecord {
	var out []AccrualRecord
	for _, id := range types {
		s := w.series[id]
		if s == nil {
			continue
		}
		for _, row := range s.rows[s.firstOnOrAfter(from):] {
			out = append(out, row.Clone())
		}
	}
	return out
}
