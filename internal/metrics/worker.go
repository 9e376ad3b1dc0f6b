package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Deposit attempt outcomes
	workerDepositAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "worker",
			Name:      "deposit_attempts_total",
			Help:      "Total number of deposit attempts by outcome",
		},
		[]string{"outcome"}, // broadcast, canceled, rejected
	)

	workerAttemptDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bridge",
			Subsystem: "worker",
			Name:      "attempt_duration_seconds",
			Help:      "Time taken to run a deposit attempt end to end",
			Buckets:   prometheus.DefBuckets,
		},
	)

	workerFeeSourceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "worker",
			Name:      "fee_source_failures_total",
			Help:      "Total number of fee estimator fetch failures (fallback schedule used)",
		},
	)
)

// Deposit attempt outcome labels
const (
	OutcomeBroadcast = "broadcast"
	OutcomeCanceled  = "canceled"
	OutcomeRejected  = "rejected" // failed before a record was created
)

// WorkerMetrics provides methods to update worker-related metrics
type WorkerMetrics struct{}

// NewWorkerMetrics creates a new instance of WorkerMetrics
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{}
}

// RecordDepositAttempt records one finished deposit attempt
func (wm *WorkerMetrics) RecordDepositAttempt(outcome string, duration time.Duration) {
	workerDepositAttemptsTotal.WithLabelValues(outcome).Inc()
	workerAttemptDuration.Observe(duration.Seconds())
}

// RecordFeeSourceFailure records a fee estimator outage
func (wm *WorkerMetrics) RecordFeeSourceFailure() {
	workerFeeSourceFailuresTotal.Inc()
}
