package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const (
	ServiceHTTP    = "http"
	ServiceWorker  = "worker"
	ServiceMonitor = "monitor"
)

// RegisterMetrics registers metrics for the specified services
func RegisterMetrics(services []string, logger *logrus.Logger) {
	// Always register Go and process metrics
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", logger)

	for _, service := range services {
		switch service {
		case ServiceHTTP:
			registerHTTPMetrics(logger)
		case ServiceWorker:
			registerWorkerMetrics(logger)
		case ServiceMonitor:
			registerMonitorMetrics(logger)
		default:
			logger.Warnf("Unknown service type for metrics registration: %s", service)
		}
	}
}

// registerIfNotExists registers a collector if it's not already registered
func registerIfNotExists(collector prometheus.Collector, name string, logger *logrus.Logger) {
	if err := prometheus.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			logger.Debugf("%s already registered", name)
		} else {
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}

func registerHTTPMetrics(logger *logrus.Logger) {
	registerIfNotExists(httpRequestsTotal, "http_requests_total", logger)
	registerIfNotExists(httpRequestDuration, "http_request_duration", logger)
	registerIfNotExists(httpErrorsTotal, "http_errors_total", logger)
}

func registerWorkerMetrics(logger *logrus.Logger) {
	registerIfNotExists(workerDepositAttemptsTotal, "worker_deposit_attempts_total", logger)
	registerIfNotExists(workerAttemptDuration, "worker_attempt_duration", logger)
	registerIfNotExists(workerFeeSourceFailuresTotal, "worker_fee_source_failures_total", logger)
}

func registerMonitorMetrics(logger *logrus.Logger) {
	registerIfNotExists(monitorWatchesTotal, "monitor_watches_total", logger)
	registerIfNotExists(monitorDegradedTotal, "monitor_degraded_total", logger)
}
