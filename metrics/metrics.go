// Package metrics provides Prometheus metrics for the accrual engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Calculation status label values.
const (
	StatusOK       = "ok"
	StatusSkipped  = "skipped"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

var (
	// CalculationsTotal tracks accrual recalculations by action and outcome
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accrual",
			Subsystem: "engine",
			Name:      "calculations_total",
			Help:      "Total number of accrual recalculations by action and status",
		},
		[]string{"action", "status"},
	)

	// CalculationDuration tracks end-to-end recalculation time in seconds
	CalculationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "accrual",
			Subsystem: "engine",
			Name:      "calculation_duration_seconds",
			Help:      "Duration of accrual recalculations including load and save",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"action"},
	)

	// RecordsPersisted tracks accrual rows written back after recalculation
	RecordsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "accrual",
			Subsystem: "engine",
			Name:      "records_persisted_total",
			Help:      "Total number of accrual rows persisted after recalculation",
		},
	)

	// EventsConsumed tracks time-record change events read from Kafka
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accrual",
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Total number of time-record change events by status",
		},
		[]string{"status"},
	)
)
