package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves the Prometheus scrape endpoint.
type Server struct {
	srv    *http.Server
	logger *logrus.Logger
}

// StartMetricsServer starts the /metrics endpoint on the given port.
func StartMetricsServer(port string, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server failed: %v", err)
		}
	}()

	return &Server{srv: srv, logger: logger}
}

// Stop shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
