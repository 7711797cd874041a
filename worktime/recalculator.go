/*
recalculator.go - Serialized, persisted accrual recalculation

PURPOSE:
  Wraps generic.Calculator with what a caller of the engine must provide:
  per-person serialization, persistence of the changed rows and metrics.
  Both the HTTP API and the Kafka consumer go through Recalculator.

FLOW:
  1. Acquire the person's lock (tenant:person)
  2. Calculate
  3. Save every changed row in one atomic batch
  4. Release the lock

WHY LOCK:
  The engine has no conflict detection. Two interleaved calculations for
  the same person would each cascade from a stale seed and the last write
  would win, corrupting the running totals.

SEE ALSO:
  - generic/calculator.go: The engine entry point
  - lock/: Redis and in-process lockers
*/
package worktime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/metrics"
)

// Locker serializes work per key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// Recalculator runs the engine for one change and persists the result.
type Recalculator struct {
	Calculator *generic.Calculator
	Sink       generic.AccrualSink
	Locker     Locker
	Logger     logrus.FieldLogger
}

// NewRecalculator wires a recalculator. A nil locker means no serialization.
func NewRecalculator(calc *generic.Calculator, sink generic.AccrualSink, locker Locker, logger logrus.FieldLogger) *Recalculator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recalculator{Calculator: calc, Sink: sink, Locker: locker, Logger: logger}
}

// LockKey returns the serialization key for a person.
func LockKey(tenantID generic.TenantID, personID generic.PersonID) string {
	return fmt.Sprintf("accruals:%s:%s", tenantID, personID)
}

// Handle recalculates and persists. It returns the rows that were saved.
func (r *Recalculator) Handle(ctx context.Context, record generic.TimeRecord, action generic.Action) ([]generic.AccrualRecord, error) {
	started := time.Now()
	var changed []generic.AccrualRecord

	run := func() error {
		rows, err := r.Calculator.Calculate(ctx, record, action)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := r.Sink.SaveAccruals(ctx, rows); err != nil {
			return fmt.Errorf("save accruals: %w", err)
		}
		changed = rows
		return nil
	}

	var err error
	if r.Locker != nil {
		err = r.Locker.WithLock(ctx, LockKey(record.TenantID, record.PersonID), run)
	} else {
		err = run()
	}

	metrics.CalculationDuration.WithLabelValues(string(action)).Observe(time.Since(started).Seconds())
	metrics.CalculationsTotal.WithLabelValues(string(action), status(changed, err)).Inc()

	if err != nil {
		return nil, err
	}
	metrics.RecordsPersisted.Add(float64(len(changed)))

	r.Logger.WithFields(logrus.Fields{
		"tenant_id":      record.TenantID,
		"person_id":      record.PersonID,
		"time_record_id": record.ID,
		"action":         action,
		"persisted":      len(changed),
	}).Info("Accruals recalculated")
	return changed, nil
}

func status(changed []generic.AccrualRecord, err error) string {
	switch {
	case err == nil && len(changed) == 0:
		return metrics.StatusSkipped
	case err == nil:
		return metrics.StatusOK
	case generic.IsClientError(err), errors.Is(err, generic.ErrNoAccrualModules):
		return metrics.StatusRejected
	default:
		return metrics.StatusFailed
	}
}
