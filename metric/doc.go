// Package metric provides Prometheus-based metrics collection and an HTTP
// server for monitoring the flow platform.
//
// A MetricsRegistry owns the Prometheus registry, automatically registers
// core platform metrics (readiness checks, flow executions, HTTP traffic,
// NATS connectivity), and lets services register their own collectors via
// the MetricsRegistrar interface. The Server exposes the scrape endpoint.
//
// Basic usage:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	core := registry.CoreMetrics()
//	core.RecordValidation("flow", false)
//	core.RecordValidationReason("missing_input")
//
// All core metrics use the "bubbleflow" namespace. Registration methods are
// safe for concurrent use; metric recording is lock-free per the Prometheus
// client's guarantees.
package metric
