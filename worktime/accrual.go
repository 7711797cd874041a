/*
accrual.go - Worked-time accrual module implementations

PURPOSE:
  Implements generic.AccrualModule for the worked-time accrual types.
  A module turns one day's slice of a time record into a contribution,
  in minutes.

ACCRUAL TYPES:
  AnnualTargetHours:
    - Every worked minute counts toward the annual target
    - 08:00-10:00 contributes 120

  NightHours:
    - Only minutes inside the night windows count
    - Windows per calendar day: 00:00-06:00 and 23:00-24:00
    - Evaluated in a fixed civil zone, whatever zone the input uses
    - 00:00-06:00 contributes 360, 04:00-10:00 contributes 120
    - 22:00-01:00 (two day slices) contributes 60 + 60

DST:
  Durations are measured between real instants, so a window on a
  spring-forward night is shorter than its clock times suggest.

SEE ALSO:
  - generic/accrual.go: AccrualModule interface
  - generic/dayrange.go: Produces the day slices
*/
package worktime

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/accrual-engine/generic"
)

var sixty = decimal.NewFromInt(60)

// minutes converts a duration to decimal minutes at second precision.
func minutes(d time.Duration) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d / time.Second)).Div(sixty)
}

// =============================================================================
// ANNUAL TARGET HOURS
// =============================================================================

// AnnualTargetHours counts the whole slice.
type AnnualTargetHours struct{}

func (AnnualTargetHours) AccrualType() generic.AccrualType { return AnnualTargetHoursType }

func (AnnualTargetHours) ContributionFor(interval generic.DayInterval) decimal.Decimal {
	return minutes(interval.Duration())
}

// =============================================================================
// NIGHT HOURS
// =============================================================================

// NightWindow is a local clock range within one day. An End of 24:00 is
// expressed as EndHour 24.
type NightWindow struct {
	StartHour int
	EndHour   int
}

// DefaultNightWindows are 00:00-06:00 and 23:00-24:00.
var DefaultNightWindows = []NightWindow{
	{StartHour: 0, EndHour: 6},
	{StartHour: 23, EndHour: 24},
}

// NightHours counts the minutes that fall inside the night windows.
type NightHours struct {
	Location *time.Location
	Windows  []NightWindow
}

// NewNightHours evaluates the default windows in loc (UTC if nil).
func NewNightHours(loc *time.Location) NightHours {
	if loc == nil {
		loc = time.UTC
	}
	return NightHours{Location: loc, Windows: DefaultNightWindows}
}

func (NightHours) AccrualType() generic.AccrualType { return NightHoursType }

func (n NightHours) ContributionFor(interval generic.DayInterval) decimal.Decimal {
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	windows := n.Windows
	if windows == nil {
		windows = DefaultNightWindows
	}

	start, end := interval.Start.In(loc), interval.End.In(loc)
	total := time.Duration(0)

	// The slice is one local day in the splitter's zone, which may touch
	// two days in the night zone.
	last := generic.DateOf(end)
	for day := generic.DateOf(start); day.BeforeOrEqual(last); day = day.AddDays(1) {
		for _, w := range windows {
			wStart := time.Date(day.Year, day.Month, day.Day, w.StartHour, 0, 0, 0, loc)
			wEnd := time.Date(day.Year, day.Month, day.Day, w.EndHour, 0, 0, 0, loc)
			total += overlap(start, end, wStart, wEnd)
		}
	}
	return minutes(total)
}

// overlap returns the length of the intersection of [aStart, aEnd] and [bStart, bEnd].
func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	lo := aStart
	if bStart.After(lo) {
		lo = bStart
	}
	hi := aEnd
	if bEnd.Before(hi) {
		hi = bEnd
	}
	if !hi.After(lo) {
		return 0
	}
	return hi.Sub(lo)
}
