package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "stopped", StatusStopped.String())
	assert.Equal(t, "starting", StatusStarting.String())
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "stopping", StatusStopping.String())
	assert.Equal(t, "unknown", Status(99).String())
}

func TestBaseServiceLifecycle(t *testing.T) {
	svc := NewBaseService("test-service", WithLogger(discardLogger()))
	assert.Equal(t, StatusStopped, svc.Status())

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, StatusRunning, svc.Status())

	// Starting twice is a no-op.
	require.NoError(t, svc.Start(ctx))

	require.NoError(t, svc.Stop(time.Second))
	assert.Equal(t, StatusStopped, svc.Status())

	// Stopping twice is a no-op.
	require.NoError(t, svc.Stop(time.Second))
}

func TestBaseServiceHealthCheck(t *testing.T) {
	healthy := true
	svc := NewBaseService("test-service",
		WithLogger(discardLogger()),
		WithHealthInterval(10*time.Millisecond),
		WithHealthCheck(func() error {
			if !healthy {
				return fmt.Errorf("dependency down")
			}
			return nil
		}),
	)

	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(time.Second) }()

	assert.True(t, svc.IsHealthy(), "initial check runs at start")

	healthy = false
	assert.Eventually(t, func() bool {
		return !svc.IsHealthy()
	}, time.Second, 10*time.Millisecond)

	info := svc.Info()
	assert.Equal(t, "test-service", info.Name)
	assert.Greater(t, info.FailedHealthChecks, int64(0))
}

func TestBaseServiceStopDuringSlowHealthCheck(t *testing.T) {
	checkStarted := make(chan struct{})
	svc := NewBaseService("test-service",
		WithLogger(discardLogger()),
		WithHealthInterval(time.Millisecond),
		WithHealthCheck(func() error {
			select {
			case checkStarted <- struct{}{}:
			default:
			}
			time.Sleep(50 * time.Millisecond)
			return nil
		}),
	)

	require.NoError(t, svc.Start(context.Background()))

	// Stop while a health check is still in flight. The monitor must
	// survive its next select without touching freed service fields.
	<-checkStarted
	require.NoError(t, svc.Stop(time.Second))
	assert.Equal(t, StatusStopped, svc.Status())
}

func TestBaseServiceContextCancel(t *testing.T) {
	svc := NewBaseService("test-service", WithLogger(discardLogger()), WithHealthInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool {
		return svc.Status() == StatusStopped
	}, time.Second, 10*time.Millisecond)
}

func TestBaseServiceActivity(t *testing.T) {
	svc := NewBaseService("test-service", WithLogger(discardLogger()))

	svc.RecordActivity()
	svc.RecordActivity()

	info := svc.Info()
	assert.Equal(t, int64(2), info.RequestsHandled)
	assert.False(t, info.LastActivity.IsZero())
}
