package worktime

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/accrual-engine/generic"
)

// SeedAccruals builds the empty rows an agreement needs before any time
// record can be calculated against it: one per type per agreement day, plus
// a carry-over row for the day before the start so the first day has a seed.
//
// The carry-over row is attributed to the new agreement with a zero
// cumulative total; if a previous agreement already owns that day the caller
// must not overwrite it (see SeedOptions.SkipCarryOver).
func SeedAccruals(agreement generic.Agreement, types []generic.AccrualType, opts SeedOptions) []generic.AccrualRecord {
	days := agreement.Period().Days()
	if !opts.SkipCarryOver {
		days = append([]generic.Date{agreement.StartDate.AddDays(-1)}, days...)
	}

	rows := make([]generic.AccrualRecord, 0, len(days)*len(types))
	for _, t := range types {
		if !t.Enabled {
			continue
		}
		for _, d := range days {
			target := decimal.Zero
			if agreement.Covers(d) {
				elapsed := int64(generic.DaysBetween(agreement.StartDate, d) + 1)
				target = opts.DailyTarget.Mul(decimal.NewFromInt(elapsed))
			}
			rows = append(rows, generic.AccrualRecord{
				ID:               uuid.New().String(),
				TenantID:         agreement.TenantID,
				PersonID:         agreement.PersonID,
				AgreementID:      agreement.ID,
				Date:             d,
				TypeID:           t.ID,
				CumulativeTotal:  decimal.Zero,
				CumulativeTarget: target,
				Contributions:    map[generic.TimeRecordID]decimal.Decimal{},
				Total:            decimal.Zero,
			})
		}
	}
	return rows
}

// SeedOptions tunes SeedAccruals.
type SeedOptions struct {
	// SkipCarryOver omits the row for the day before the agreement start.
	SkipCarryOver bool

	// DailyTarget is accumulated into CumulativeTarget, one per agreement day.
	DailyTarget decimal.Decimal
}
