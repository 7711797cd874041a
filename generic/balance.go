/*
balance.go - Accrual balances against the cumulative target

PURPOSE:
  Answers "where does this person stand on a given day?" for every accrual
  type. The engine maintains two running figures per row: what has been
  accrued (CumulativeTotal) and what should have been accrued by that day
  (CumulativeTarget, seeded with the agreement). A Balance pairs them.

BALANCE COMPONENTS:
  Total:      Cumulative accrued amount on the day
  Target:     Cumulative target on the day
  Difference: Total - Target (positive = ahead of target)

EXAMPLE:
  Annual target 1800h spread over 366 days ≈ 295.08 min/day.
  After 13 days: Target = 3836.04, Total = 6600, Difference = +2763.96

SEE ALSO:
  - window.go: Maintains CumulativeTotal
  - worktime/seed.go: Sets CumulativeTarget
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE - One type's position on a date
// =============================================================================

// Balance is the running position of one accrual type on AsOf.
type Balance struct {
	TypeID      AccrualTypeID
	AgreementID AgreementID
	AsOf        Date
	Total       decimal.Decimal
	Target      decimal.Decimal
}

// Difference returns Total - Target.
func (b Balance) Difference() decimal.Decimal {
	return b.Total.Sub(b.Target)
}

// OnTarget returns true once the accrued total has reached the target.
func (b Balance) OnTarget() bool {
	return b.Total.GreaterThanOrEqual(b.Target)
}

// BalancesAsOf returns, for each type present in rows, the balance of its
// latest row dated on or before 'on'. Types whose rows all fall after 'on'
// are omitted. The result is ordered by type id.
func BalancesAsOf(rows []AccrualRecord, on Date) []Balance {
	latest := make(map[AccrualTypeID]AccrualRecord)
	for _, r := range rows {
		if r.Date.After(on) {
			continue
		}
		if cur, ok := latest[r.TypeID]; !ok || r.Date.After(cur.Date) {
			latest[r.TypeID] = r
		}
	}

	balances := make([]Balance, 0, len(latest))
	for _, r := range latest {
		balances = append(balances, Balance{
			TypeID:      r.TypeID,
			AgreementID: r.AgreementID,
			AsOf:        r.Date,
			Total:       r.CumulativeTotal,
			Target:      r.CumulativeTarget,
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].TypeID < balances[j].TypeID })
	return balances
}
