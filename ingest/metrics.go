package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var syncOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sync_operations_total",
	Help: "counter of terminal sync operations by outcome",
}, []string{"tenant", "loan_type", "status"})

var syncDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "sync_duration_seconds",
	Help:    "duration of sync operations in seconds",
	Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
}, []string{"tenant", "loan_type"})

var validationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "validation_errors_total",
	Help: "counter of validation errors by kind",
}, []string{"tenant", "error_type"})

var rowsInsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rows_inserted_total",
	Help: "counter of rows committed to warehouse fact tables",
}, []string{"tenant", "table"})
