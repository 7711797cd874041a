package generic

import "time"

// =============================================================================
// DAY RANGE SPLITTER
// =============================================================================

// DayInterval is the part of a time span that falls on one local calendar day.
// Start and End are instants in the splitter's location.
type DayInterval struct {
	Date  Date
	Start time.Time
	End   time.Time
}

// Duration is the real elapsed time of the interval (DST-aware).
func (d DayInterval) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// SplitDays breaks [start, end] at local midnights in loc.
//
// The result is ordered, non-empty, contiguous and covers exactly [start, end].
// Each interval is keyed by the local date of its start. Boundaries are
// computed with time.Date in loc, so a spring-forward day is 23h long and a
// fall-back day 25h. A span ending exactly at midnight does not produce a
// zero-length trailing day.
func SplitDays(start, end time.Time, loc *time.Location) ([]DayInterval, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, end = start.In(loc), end.In(loc)
	if !end.After(start) {
		return nil, &InvalidRangeError{Start: start, End: end}
	}

	var days []DayInterval
	current := start
	for {
		y, m, d := current.Date()
		nextMidnight := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		if !nextMidnight.Before(end) {
			days = append(days, DayInterval{Date: DateOf(current), Start: current, End: end})
			return days, nil
		}
		days = append(days, DayInterval{Date: DateOf(current), Start: current, End: nextMidnight})
		current = nextMidnight
	}
}

// SpanDates returns the first and last local dates of a split.
func SpanDates(days []DayInterval) (first, last Date) {
	if len(days) == 0 {
		return Date{}, Date{}
	}
	return days[0].Date, days[len(days)-1].Date
}
