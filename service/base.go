// Package service provides base functionality and the HTTP surface for
// the flow platform. It includes lifecycle management, health
// monitoring, and the flow API handlers.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bubblelab/bubbleflow/metric"
	"github.com/bubblelab/bubbleflow/natsclient"
)

// Status represents the current status of a service
type Status int

// Possible service statuses
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Info holds runtime information for a service
type Info struct {
	Name               string        `json:"name"`
	Status             string        `json:"status"`
	Uptime             time.Duration `json:"uptime"`
	StartTime          time.Time     `json:"start_time"`
	RequestsHandled    int64         `json:"requests_handled"`
	LastActivity       time.Time     `json:"last_activity"`
	HealthChecks       int64         `json:"health_checks"`
	FailedHealthChecks int64         `json:"failed_health_checks"`
}

// HealthCheckFunc defines a custom health check function
type HealthCheckFunc func() error

// Option is a functional option for configuring BaseService
type Option func(*BaseService)

// BaseService provides common functionality for all services
type BaseService struct {
	name            string
	nats            *natsclient.Client
	metricsRegistry *metric.MetricsRegistry
	logger          *slog.Logger

	status    atomic.Value // Status
	startTime atomic.Value // time.Time
	healthy   atomic.Bool

	requestsHandled    atomic.Int64
	healthChecks       atomic.Int64
	failedHealthChecks atomic.Int64
	lastActivity       atomic.Value // time.Time

	healthCheckFunc HealthCheckFunc
	healthTicker    *time.Ticker
	healthInterval  time.Duration

	done      chan struct{}
	waitGroup sync.WaitGroup
	mu        sync.RWMutex
}

// NewBaseService creates a new base service using functional options
func NewBaseService(name string, opts ...Option) *BaseService {
	service := &BaseService{
		name:           name,
		healthInterval: 30 * time.Second,
		logger:         slog.Default().With("service", name),
	}

	for _, opt := range opts {
		opt(service)
	}

	service.status.Store(StatusStopped)
	service.startTime.Store(time.Time{})
	service.lastActivity.Store(time.Time{})
	return service
}

// WithNATS sets the NATS client for the service
func WithNATS(client *natsclient.Client) Option {
	return func(s *BaseService) {
		s.nats = client
	}
}

// WithMetrics sets the metrics registry for the service
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *BaseService) {
		s.metricsRegistry = registry
	}
}

// WithLogger sets a custom logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *BaseService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthCheck sets a custom health check function
func WithHealthCheck(fn HealthCheckFunc) Option {
	return func(s *BaseService) {
		s.healthCheckFunc = fn
	}
}

// WithHealthInterval sets the health check interval
func WithHealthInterval(interval time.Duration) Option {
	return func(s *BaseService) {
		s.healthInterval = interval
	}
}

// Name returns the service name
func (s *BaseService) Name() string {
	return s.name
}

// Status returns the current service status
func (s *BaseService) Status() Status {
	return s.status.Load().(Status)
}

// IsHealthy returns whether the service is healthy
func (s *BaseService) IsHealthy() bool {
	return s.healthy.Load()
}

// SetHealthCheck replaces the health check function
func (s *BaseService) SetHealthCheck(fn HealthCheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheckFunc = fn
}

// RecordActivity marks the service as active and counts one handled request
func (s *BaseService) RecordActivity() {
	s.requestsHandled.Add(1)
	s.lastActivity.Store(time.Now())
}

// Info returns a snapshot of the service's runtime information
func (s *BaseService) Info() Info {
	startTime := s.startTime.Load().(time.Time)
	var uptime time.Duration
	if !startTime.IsZero() {
		uptime = time.Since(startTime)
	}

	return Info{
		Name:               s.name,
		Status:             s.Status().String(),
		Uptime:             uptime,
		StartTime:          startTime,
		RequestsHandled:    s.requestsHandled.Load(),
		LastActivity:       s.lastActivity.Load().(time.Time),
		HealthChecks:       s.healthChecks.Load(),
		FailedHealthChecks: s.failedHealthChecks.Load(),
	}
}

// Start starts the service
func (s *BaseService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentStatus := s.Status()
	if currentStatus == StatusRunning || currentStatus == StatusStarting {
		return nil
	}

	s.status.Store(StatusStarting)
	s.done = make(chan struct{})

	startTime := time.Now()
	s.startTime.Store(startTime)
	s.lastActivity.Store(startTime)

	if s.healthInterval > 0 {
		s.healthTicker = time.NewTicker(s.healthInterval)
		s.waitGroup.Add(1)
		go s.healthMonitor(s.healthTicker, s.done)
		s.performHealthCheck()
	}

	s.waitGroup.Add(1)
	go s.contextMonitor(ctx, s.done)

	s.status.Store(StatusRunning)
	return nil
}

// Stop stops the service gracefully
func (s *BaseService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentStatus := s.Status()
	if currentStatus == StatusStopped || currentStatus == StatusStopping {
		return nil
	}

	s.status.Store(StatusStopping)

	if s.done != nil {
		close(s.done)
	}
	if s.healthTicker != nil {
		s.healthTicker.Stop()
	}

	finished := make(chan struct{})
	go func() {
		s.waitGroup.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(timeout):
		s.logger.Warn("Service stop timed out waiting for goroutines", "timeout", timeout)
	}

	s.status.Store(StatusStopped)
	s.healthy.Store(false)
	return nil
}

// healthMonitor runs periodic health checks until the service stops.
// The ticker and done channel are captured at start so Stop can run
// concurrently with an in-flight health check.
func (s *BaseService) healthMonitor(ticker *time.Ticker, done chan struct{}) {
	defer s.waitGroup.Done()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.performHealthCheck()
		}
	}
}

func (s *BaseService) performHealthCheck() {
	s.healthChecks.Add(1)

	var err error
	if fn := s.healthCheckFunc; fn != nil {
		err = fn()
	}

	healthy := err == nil
	previous := s.healthy.Swap(healthy)
	if healthy != previous {
		if healthy {
			s.logger.Info("Service became healthy")
		} else {
			s.logger.Warn("Service became unhealthy", "error", err)
		}
	}
	if !healthy {
		s.failedHealthChecks.Add(1)
		if s.metricsRegistry != nil {
			s.metricsRegistry.CoreMetrics().RecordError(s.name, "health_check")
		}
	}

	if s.nats != nil && s.metricsRegistry != nil {
		if conn := s.nats.GetConnection(); conn != nil && conn.IsConnected() {
			if rtt, err := conn.RTT(); err == nil {
				s.metricsRegistry.CoreMetrics().RecordNATSRTT(rtt)
			}
		}
	}
}

// contextMonitor stops the service when the context is canceled
func (s *BaseService) contextMonitor(ctx context.Context, done chan struct{}) {
	defer s.waitGroup.Done()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Info("Context canceled, stopping service")
		go func() {
			_ = s.Stop(5 * time.Second)
		}()
	}
}
