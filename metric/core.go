package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not service-specific)
type Metrics struct {
	// Validation metrics
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec
	ValidationReasons  *prometheus.CounterVec

	// Flow lifecycle metrics
	FlowExecutions *prometheus.CounterVec
	FlowsRunning   prometheus.Gauge

	// HTTP metrics
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bubbleflow",
				Subsystem: "validation",
				Name:      "checks_total",
				Help:      "Total number of readiness checks by outcome",
			},
			[]string{"check", "outcome"},
		),

		ValidationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bubbleflow",
				Subsystem: "validation",
				Name:      "duration_seconds",
				Help:      "Readiness check duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"check"},
		),

		ValidationReasons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bubbleflow",
				Subsystem: "validation",
				Name:      "reasons_total",
				Help:      "Total number of failure reasons by category",
			},
			[]string{"category"},
		),

		FlowExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bubbleflow",
				Subsystem: "flows",
				Name:      "executions_total",
				Help:      "Total number of flow execution attempts by result",
			},
			[]string{"result"},
		),

		FlowsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bubbleflow",
				Subsystem: "flows",
				Name:      "running",
				Help:      "Number of flows currently executing",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bubbleflow",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bubbleflow",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bubbleflow",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and type",
			},
			[]string{"component", "type"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bubbleflow",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bubbleflow",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bubbleflow",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordValidation increments the readiness check counter
func (c *Metrics) RecordValidation(check string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	c.ValidationsTotal.WithLabelValues(check, outcome).Inc()
}

// RecordValidationDuration records how long a readiness check took
func (c *Metrics) RecordValidationDuration(check string, duration time.Duration) {
	c.ValidationDuration.WithLabelValues(check).Observe(duration.Seconds())
}

// RecordValidationReason increments the failure reason counter
func (c *Metrics) RecordValidationReason(category string) {
	c.ValidationReasons.WithLabelValues(category).Inc()
}

// RecordFlowExecution increments the execution attempt counter
func (c *Metrics) RecordFlowExecution(result string) {
	c.FlowExecutions.WithLabelValues(result).Inc()
}

// RecordHTTPRequest increments the HTTP request counter
func (c *Metrics) RecordHTTPRequest(route, status string) {
	c.HTTPRequests.WithLabelValues(route, status).Inc()
}

// RecordRequestDuration records HTTP request latency
func (c *Metrics) RecordRequestDuration(route string, duration time.Duration) {
	c.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments the reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
