package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	monitorWatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "monitor",
			Name:      "watches_total",
			Help:      "Total number of confirmation watches by terminal status",
		},
		[]string{"status"},
	)

	monitorDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "monitor",
			Name:      "degraded_total",
			Help:      "Total number of watches where the push channel was unavailable",
		},
	)
)

// MonitorMetrics provides methods to update confirmation-monitor metrics
type MonitorMetrics struct{}

func NewMonitorMetrics() *MonitorMetrics {
	return &MonitorMetrics{}
}

// RecordWatchOutcome records the terminal status a watch reached
func (mm *MonitorMetrics) RecordWatchOutcome(status string) {
	monitorWatchesTotal.WithLabelValues(status).Inc()
}

// RecordDegraded records a watch that lost its push channel
func (mm *MonitorMetrics) RecordDegraded() {
	monitorDegradedTotal.Inc()
}
