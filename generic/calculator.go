/*
calculator.go - Balance calculator (orchestrator)

PURPOSE:
  The single entry point of the engine. For one changed time record it
  resolves the agreement, loads the accrual window, drives every accrual
  module through ApplyDelta + Cascade and returns the rows that changed.
  The caller persists them.

FLOW:
  1. Reject unsupported actions and module-less calculators
  2. Split the record into local days (InvalidRange on end <= start)
  3. Agreement = the one covering the local date of the record END
     (a record spanning two agreements is governed by the later one)
  4. Window = rows in [start date - 1, agreement end]
  5. For each module: ApplyDelta, then Cascade from the start date
  6. Drop the seed row, flatten every type's remaining rows

NON-FATAL CONDITIONS:
  No agreement, or an empty window, is logged at warning level and yields
  an empty result with a nil error.

CONCURRENCY:
  Calculate holds no state between calls and may run concurrently for
  different people. Calls for the same person must be serialized by the
  caller (see worktime.Recalculator).
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Calculator recomputes accrual balances for one time-record change.
type Calculator struct {
	Agreements AgreementSource
	Accruals   AccrualSource
	Modules    []AccrualModule

	// Location is the civil zone whose midnights split records into days.
	Location *time.Location

	Logger logrus.FieldLogger
}

// Calculate applies the action for the record and returns every recomputed
// row after the seed day. On any failure it returns nil rows and the error;
// no partial result is ever returned.
func (c *Calculator) Calculate(ctx context.Context, record TimeRecord, action Action) ([]AccrualRecord, error) {
	log := c.logger().WithFields(logrus.Fields{
		"tenant_id":      record.TenantID,
		"person_id":      record.PersonID,
		"time_record_id": record.ID,
		"action":         action,
	})

	if !action.Supported() {
		return nil, &UnsupportedActionError{Action: action}
	}
	if len(c.Modules) == 0 {
		return nil, ErrNoAccrualModules
	}

	loc := c.location()
	days, err := SplitDays(record.Start, record.End, loc)
	if err != nil {
		return nil, err
	}
	startDate, _ := SpanDates(days)
	endDate := DateOf(record.End.In(loc))

	agreement, err := c.Agreements.ApplicableAgreement(ctx, record.TenantID, record.PersonID, endDate)
	if errors.Is(err, ErrAgreementNotFound) {
		log.WithField("date", endDate).WithError(err).Warn("Skipping calculation")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve agreement: %w", err)
	}

	seedDate := startDate.AddDays(-1)
	records, err := c.Accruals.AccrualWindow(ctx, record.TenantID, record.PersonID, seedDate, agreement.EndDate)
	if err != nil {
		return nil, fmt.Errorf("load accrual window: %w", err)
	}
	if len(records) == 0 {
		log.WithFields(logrus.Fields{
			"from": seedDate,
			"to":   agreement.EndDate,
		}).WithError(ErrNoAccrualsFound).Warn("Skipping calculation")
		return nil, nil
	}

	window, err := NewAccrualWindow(records)
	if err != nil {
		return nil, err
	}

	typeIDs := make([]AccrualTypeID, 0, len(c.Modules))
	for _, module := range c.Modules {
		accrualType := module.AccrualType()
		typeIDs = append(typeIDs, accrualType.ID)

		if err := c.applyModule(window, module, record, days, action, agreement, startDate); err != nil {
			entry := log.WithField("accrual_type", accrualType.ID).WithError(err)
			var missing *MissingAccrualError
			if errors.As(err, &missing) {
				entry = entry.WithField("date", missing.Date)
			}
			entry.Error("Accrual calculation aborted")
			return nil, err
		}
	}

	changed := window.Rows(startDate, typeIDs)
	log.WithFields(logrus.Fields{
		"agreement_id": agreement.ID,
		"changed":      len(changed),
	}).Debug("Accrual calculation complete")
	return changed, nil
}

func (c *Calculator) applyModule(window *AccrualWindow, module AccrualModule, record TimeRecord, days []DayInterval, action Action, agreement Agreement, from Date) error {
	typeID := module.AccrualType().ID
	series := window.Series(typeID)
	if series == nil || series.Len() == 0 {
		return &MissingAccrualError{
			TenantID: record.TenantID,
			PersonID: record.PersonID,
			TypeID:   typeID,
			Date:     from,
		}
	}
	if err := series.ApplyDelta(module, record, days, action); err != nil {
		return err
	}
	return series.Cascade(agreement, from)
}

func (c *Calculator) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c *Calculator) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}
