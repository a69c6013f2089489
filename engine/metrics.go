package flowengine

import (
	"time"

	"github.com/bubblelab/bubbleflow/metric"
)

// checkerMetrics records readiness checks into the platform validation
// metrics. All methods are safe on a nil receiver so a nil registry
// disables instrumentation without branching at call sites.
type checkerMetrics struct {
	core *metric.Metrics
}

// newCheckerMetrics binds the checker to the registry's core validation
// metrics. A nil registry means metrics are disabled.
func newCheckerMetrics(registry *metric.MetricsRegistry) *checkerMetrics {
	if registry == nil {
		return nil
	}
	return &checkerMetrics{core: registry.CoreMetrics()}
}

func (m *checkerMetrics) recordCheck(check string, valid bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.core.RecordValidation(check, valid)
	m.core.RecordValidationDuration(check, duration)
}

func (m *checkerMetrics) recordReason(category string) {
	if m == nil {
		return
	}
	m.core.RecordValidationReason(category)
}
