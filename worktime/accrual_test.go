package worktime_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/worktime"
)

// contributions splits [start, end] in loc and returns each day's amount.
func contributions(t *testing.T, m generic.AccrualModule, start, end time.Time, loc *time.Location) []decimal.Decimal {
	t.Helper()
	days, err := generic.SplitDays(start, end, loc)
	require.NoError(t, err)
	out := make([]decimal.Decimal, len(days))
	for i, d := range days {
		out[i] = m.ContributionFor(d)
	}
	return out
}

func assertMinutes(t *testing.T, want []int64, got []decimal.Decimal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, got[i].Equal(decimal.NewFromInt(want[i])), "day %d: want %d, got %s", i, want[i], got[i])
	}
}

func at(day, hour, min int) time.Time {
	return time.Date(2024, time.June, day, hour, min, 0, 0, time.UTC)
}

// =============================================================================
// ANNUAL TARGET HOURS
// =============================================================================

func TestAnnualTargetHours(t *testing.T) {
	m := worktime.AnnualTargetHours{}

	t.Run("two hours", func(t *testing.T) {
		assertMinutes(t, []int64{120}, contributions(t, m, at(3, 8, 0), at(3, 10, 0), time.UTC))
	})

	t.Run("across midnight", func(t *testing.T) {
		assertMinutes(t, []int64{120, 240}, contributions(t, m, at(3, 22, 0), at(4, 4, 0), time.UTC))
	})

	t.Run("seconds are kept as fractional minutes", func(t *testing.T) {
		got := contributions(t, m, at(3, 8, 0), at(3, 8, 0).Add(90*time.Second), time.UTC)
		require.Len(t, got, 1)
		assert.True(t, got[0].Equal(decimal.RequireFromString("1.5")))
	})

	t.Run("spring-forward night is one hour shorter", func(t *testing.T) {
		london, err := time.LoadLocation("Europe/London")
		require.NoError(t, err)
		start := time.Date(2024, time.March, 30, 22, 0, 0, 0, london)
		end := time.Date(2024, time.March, 31, 6, 0, 0, 0, london)
		assertMinutes(t, []int64{120, 300}, contributions(t, m, start, end, london))
	})

	assert.Equal(t, worktime.TypeAnnualTargetHours, m.AccrualType().ID)
}

// =============================================================================
// NIGHT HOURS
// =============================================================================

func TestNightHours(t *testing.T) {
	m := worktime.NewNightHours(time.UTC)

	tests := []struct {
		name       string
		start, end time.Time
		want       []int64
	}{
		{"early morning", at(3, 0, 0), at(3, 6, 0), []int64{360}},
		{"partly in window", at(3, 4, 0), at(3, 10, 0), []int64{120}},
		{"across midnight", at(3, 22, 0), at(4, 1, 0), []int64{60, 60}},
		{"daytime only", at(3, 9, 0), at(3, 17, 0), []int64{0}},
		{"whole day", at(3, 0, 0), at(4, 0, 0), []int64{420}},
		{"late evening", at(3, 23, 30), at(3, 23, 45), []int64{15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertMinutes(t, tt.want, contributions(t, m, tt.start, tt.end, time.UTC))
		})
	}

	assert.Equal(t, worktime.TypeNightHours, m.AccrualType().ID)
}

func TestNightHours_InputZoneIsIrrelevant(t *testing.T) {
	// GIVEN 00:00-06:00 UTC expressed as New York time
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start, end := at(3, 0, 0).In(ny), at(3, 6, 0).In(ny)

	// WHEN the module evaluates windows in UTC
	got := contributions(t, worktime.NewNightHours(time.UTC), start, end, time.UTC)

	// THEN the whole span counts
	assertMinutes(t, []int64{360}, got)
}

func TestNightHours_OwnZoneDiffersFromSplitter(t *testing.T) {
	// GIVEN windows evaluated in Berlin (UTC+2 in June), days split in UTC
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	m := worktime.NewNightHours(berlin)

	// WHEN 21:00-23:00 UTC (23:00-01:00 Berlin) is worked
	got := contributions(t, m, at(3, 21, 0), at(3, 23, 0), time.UTC)

	// THEN both Berlin windows are hit, across the Berlin midnight
	assertMinutes(t, []int64{120}, got)
}

func TestNightHours_SpringForward(t *testing.T) {
	// 00:00-06:00 on 2024-03-31 in London is only five real hours
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	m := worktime.NewNightHours(london)

	start := time.Date(2024, time.March, 31, 0, 0, 0, 0, london)
	end := time.Date(2024, time.March, 31, 6, 0, 0, 0, london)

	assertMinutes(t, []int64{300}, contributions(t, m, start, end, london))
}

func TestNightHours_CustomWindows(t *testing.T) {
	m := worktime.NightHours{
		Location: time.UTC,
		Windows:  []worktime.NightWindow{{StartHour: 22, EndHour: 24}},
	}

	assertMinutes(t, []int64{120, 0}, contributions(t, m, at(3, 21, 0), at(4, 3, 0), time.UTC))
}

func TestRegisteredModules(t *testing.T) {
	assert.NotNil(t, generic.LookupModule(worktime.TypeAnnualTargetHours))
	assert.NotNil(t, generic.LookupModule(worktime.TypeNightHours))
}
