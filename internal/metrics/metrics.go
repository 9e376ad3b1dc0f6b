package metrics

// Package metrics provides Prometheus metrics collection for the bridge
// deposit services.
//
// This package includes:
// - HTTP request metrics (count, latency, errors)
// - Worker metrics for deposit attempt outcomes
// - Monitor metrics for confirmation-watch health
// - Metrics HTTP server on a configurable port
// - Echo middleware for automatic request instrumentation
