/*
errors.go - Centralized error types for the accrual engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Adapters (sqlite, balanceapi, events) wrap these with additional context.

ERROR CATEGORIES:
  1. Input errors - Malformed interval, unsupported action
  2. Data errors - Missing accrual rows, empty windows, no modules
  3. Business conditions - No agreement or no accruals (non-fatal)

PROPAGATION:
  Conditions are reported where they are detected. The Calculator never
  recovers partially: any module-level failure discards the calculation.
  Nothing in the engine retries.

USAGE:
  if errors.Is(err, generic.ErrMissingAccrual) {
      var missing *generic.MissingAccrualError
      errors.As(err, &missing)
      log.WithField("date", missing.Date).Error("accrual row missing")
  }
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a time span has end <= start.
	ErrInvalidRange = errors.New("invalid range: end must be after start")

	// ErrMissingAccrual is returned when the window lacks a required (type, date) row.
	ErrMissingAccrual = errors.New("missing accrual")

	// ErrEmptyAccrualWindow is returned when cascading a series with no rows.
	ErrEmptyAccrualWindow = errors.New("empty accrual window")

	// ErrUnsupportedAction is returned for UPDATE (and any unknown action).
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrAgreementNotFound is returned by AgreementSource when no agreement covers the date.
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrNoAccrualsFound is reported when the accrual window for a calculation is empty.
	ErrNoAccrualsFound = errors.New("no accruals found")

	// ErrNoAccrualModules is returned when a calculation has no accrual modules to run.
	ErrNoAccrualModules = errors.New("no accrual modules registered")

	// ErrDuplicateAccrual is returned when a window holds two rows for the same (type, date).
	ErrDuplicateAccrual = errors.New("duplicate accrual row")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError provides the offending instants.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: end %s is not after start %s",
		e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}

func (e *InvalidRangeError) Unwrap() error {
	return ErrInvalidRange
}

// MissingAccrualError identifies the absent row.
type MissingAccrualError struct {
	TenantID TenantID
	PersonID PersonID
	TypeID   AccrualTypeID
	Date     Date
}

func (e *MissingAccrualError) Error() string {
	return fmt.Sprintf("missing accrual: tenant %s person %s type %s date %s",
		e.TenantID, e.PersonID, e.TypeID, e.Date)
}

func (e *MissingAccrualError) Unwrap() error {
	return ErrMissingAccrual
}

// UnsupportedActionError names the rejected action.
type UnsupportedActionError struct {
	Action Action
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action: %s", e.Action)
}

func (e *UnsupportedActionError) Unwrap() error {
	return ErrUnsupportedAction
}

// DuplicateAccrualError names the (type, date) that appears twice.
type DuplicateAccrualError struct {
	TypeID AccrualTypeID
	Date   Date
}

func (e *DuplicateAccrualError) Error() string {
	return fmt.Sprintf("duplicate accrual row: type %s date %s", e.TypeID, e.Date)
}

func (e *DuplicateAccrualError) Unwrap() error {
	return ErrDuplicateAccrual
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsBusinessCondition returns true for expected, non-fatal conditions.
func IsBusinessCondition(err error) bool {
	return errors.Is(err, ErrAgreementNotFound) ||
		errors.Is(err, ErrNoAccrualsFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnsupportedAction)
}

// IsDataError returns true if the stored accrual data cannot support the calculation.
func IsDataError(err error) bool {
	return errors.Is(err, ErrMissingAccrual) ||
		errors.Is(err, ErrEmptyAccrualWindow) ||
		errors.Is(err, ErrDuplicateAccrual)
}
