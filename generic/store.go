/*
store.go - Interfaces between the engine and the outside world

PURPOSE:
  The engine never talks to a database or network directly. It consumes
  two read capabilities and the caller persists results through a third:

  AgreementSource: Which agreement is in force for a person on a date
  AccrualSource:   The accrual rows of a person between two dates
  AccrualSink:     Batch partial update of recomputed rows

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite persistence
  - generic/store/memory.go: In-memory for testing
  - balanceapi/client.go: Remote balance API over HTTP

NOT FOUND:
  AgreementSource returns ErrAgreementNotFound (wrapped or bare) when no
  agreement covers the date. AccrualSource returns an empty slice, not an
  error, when there are no rows.

SEE ALSO:
  - calculator.go: Consumes AgreementSource and AccrualSource
  - worktime/recalculator.go: Writes through AccrualSink
*/
package generic

import "context"

// AgreementSource resolves the agreement in force.
type AgreementSource interface {
	// ApplicableAgreement returns the agreement covering 'on'.
	// Returns ErrAgreementNotFound if none does.
	ApplicableAgreement(ctx context.Context, tenantID TenantID, personID PersonID, on Date) (Agreement, error)
}

// AccrualSource loads accrual rows.
type AccrualSource interface {
	// AccrualWindow returns all rows (every type) dated in [from, to].
	AccrualWindow(ctx context.Context, tenantID TenantID, personID PersonID, from, to Date) ([]AccrualRecord, error)
}

// AccrualSink persists recomputed rows.
type AccrualSink interface {
	// SaveAccruals writes all rows atomically: either every row is stored or none.
	SaveAccruals(ctx context.Context, records []AccrualRecord) error
}

// Store bundles all three capabilities.
type Store interface {
	AgreementSource
	AccrualSource
	AccrualSink
}
