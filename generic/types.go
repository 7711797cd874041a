/*
Package generic provides the core accrual recomputation engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms that keep
  cumulative accrual balances (annual target hours, night hours, ...) in sync
  with worked-time records. Whenever a time record is created or deleted, the
  engine recomputes that record's per-day contribution for every tracked
  accrual type and re-cascades the running total to the end of the agreement.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeRecord: A worked-time span owned by a person
  - Agreement: The entitlement contract in force for a person
  - AccrualType: A tracked entitlement category
  - AccrualRecord: One (type, date) row with its contribution set

DESIGN PRINCIPLES:
  1. Precision: All amounts are decimal.Decimal (minutes), never float64
  2. Ownership: An AccrualWindow belongs to exactly one calculation
  3. Extensibility: New accrual types are new AccrualModules, not engine edits
  4. No partial updates: Any module failure discards the whole calculation

USAGE:
  calc := &generic.Calculator{
      Agreements: store,
      Accruals:   store,
      Modules:    modules,
      Location:   loc,
  }
  changed, err := calc.Calculate(ctx, record, generic.ActionCreate)

SEE ALSO:
  - dayrange.go: Splitting a time span into local calendar days
  - accrual.go: AccrualModule interface and module registry
  - window.go: Contribution deltas and the cumulative cascade
  - calculator.go: The orchestrating entry point
*/
package generic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type PersonID string
type AgreementID string
type TimeRecordID string
type AccrualTypeID string

// =============================================================================
// TIME RECORD - A worked-time span
// =============================================================================

// TimeRecord is supplied whole by the caller for each change and is never
// mutated by the engine. The ID is stable across create/update/delete of the
// same logical entry; it keys the record's contribution on every day.
type TimeRecord struct {
	ID       TimeRecordID
	TenantID TenantID
	PersonID PersonID
	Start    time.Time
	End      time.Time
}

// Validate checks the End > Start invariant.
func (r TimeRecord) Validate() error {
	if !r.End.After(r.Start) {
		return &InvalidRangeError{Start: r.Start, End: r.End}
	}
	return nil
}

// =============================================================================
// AGREEMENT - Entitlement contract in force
// =============================================================================

// Agreement covers the inclusive date range [StartDate, EndDate].
// Terms are contractual details the engine does not interpret.
type Agreement struct {
	ID        AgreementID
	TenantID  TenantID
	PersonID  PersonID
	StartDate Date
	EndDate   Date
	Terms     json.RawMessage
}

// Period returns the agreement's date range.
func (a Agreement) Period() Period {
	return Period{Start: a.StartDate, End: a.EndDate}
}

// Covers returns true if the date falls inside the agreement.
func (a Agreement) Covers(d Date) bool {
	return a.Period().Contains(d)
}

// =============================================================================
// ACCRUAL TYPE
// =============================================================================

type Unit string

const (
	UnitMinutes Unit = "minutes"
)

// AccrualType identifies one tracked entitlement category.
type AccrualType struct {
	ID      AccrualTypeID
	Name    string
	Unit    Unit
	Enabled bool
}

func (t AccrualType) String() string { return string(t.ID) }

// =============================================================================
// ACTION - What happened to the time record
// =============================================================================

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ParseAction accepts any casing of create/update/delete.
// UPDATE parses successfully; the engine rejects it when applied.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Supported reports whether the engine can apply the action.
func (a Action) Supported() bool {
	return a == ActionCreate || a == ActionDelete
}

// =============================================================================
// ACCRUAL RECORD - One (type, date) row
// =============================================================================

// AccrualRecord is pre-created externally for every (type, date) and mutated
// in place by the engine. Total always equals the sum of Contributions.
type AccrualRecord struct {
	ID               string
	TenantID         TenantID
	PersonID         PersonID
	AgreementID      AgreementID
	Date             Date
	TypeID           AccrualTypeID
	CumulativeTotal  decimal.Decimal
	CumulativeTarget decimal.Decimal
	Contributions    map[TimeRecordID]decimal.Decimal
	Total            decimal.Decimal
}

// SetContribution inserts or overwrites the record's entry for id.
func (r *AccrualRecord) SetContribution(id TimeRecordID, amount decimal.Decimal) {
	if r.Contributions == nil {
		r.Contributions = make(map[TimeRecordID]decimal.Decimal)
	}
	r.Contributions[id] = amount
	r.RecomputeTotal()
}

// RemoveContribution deletes the entry for id. Returns false if it was absent.
func (r *AccrualRecord) RemoveContribution(id TimeRecordID) bool {
	if _, ok := r.Contributions[id]; !ok {
		return false
	}
	delete(r.Contributions, id)
	r.RecomputeTotal()
	return true
}

// RecomputeTotal re-derives Total from the contribution set.
func (r *AccrualRecord) RecomputeTotal() {
	total := decimal.Zero
	for _, v := range r.Contributions {
		total = total.Add(v)
	}
	r.Total = total
}

// Clone returns a deep copy so callers never alias a window's rows.
func (r AccrualRecord) Clone() AccrualRecord {
	c := r
	c.Contributions = make(map[TimeRecordID]decimal.Decimal, len(r.Contributions))
	for k, v := range r.Contributions {
		c.Contributions[k] = v
	}
	return c
}
