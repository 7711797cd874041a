// Package worktime implements the worked-time accrual types.
// It plugs concrete accrual modules into the generic engine and wraps the
// engine's calculator with locking, persistence and metrics.
package worktime

import "github.com/warp/accrual-engine/generic"

// =============================================================================
// WORKED-TIME ACCRUAL TYPES
// =============================================================================

const (
	TypeAnnualTargetHours generic.AccrualTypeID = "annual_target_hours"
	TypeNightHours        generic.AccrualTypeID = "night_hours"
)

var (
	AnnualTargetHoursType = generic.AccrualType{
		ID:      TypeAnnualTargetHours,
		Name:    "Annual target hours",
		Unit:    generic.UnitMinutes,
		Enabled: true,
	}

	NightHoursType = generic.AccrualType{
		ID:      TypeNightHours,
		Name:    "Night hours",
		Unit:    generic.UnitMinutes,
		Enabled: true,
	}
)

// Register the built-in modules with the generic registry.
func init() {
	generic.RegisterModule(AnnualTargetHours{})
	generic.RegisterModule(NewNightHours(nil))
}
