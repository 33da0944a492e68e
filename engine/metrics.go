package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/nodekit/metric"
)

// engineMetrics holds the startup and shutdown timings of a Runtime.
type engineMetrics struct {
	stageDuration    *prometheus.HistogramVec // By stage
	stageFailures    *prometheus.CounterVec   // By stage
	shutdownDuration *prometheus.HistogramVec // By outcome (clean/timeout)
}

// newEngineMetrics creates and registers the engine metrics. A nil registry
// disables them.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nodekit",
			Subsystem: "engine",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each startup stage in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"stage"}),

		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodekit",
			Subsystem: "engine",
			Name:      "stage_failures_total",
			Help:      "Total number of startup stages that aborted",
		}, []string{"stage"}),

		shutdownDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nodekit",
			Subsystem: "engine",
			Name:      "shutdown_duration_seconds",
			Help:      "Runtime shutdown duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1.0, 5.0, 10.0},
		}, []string{"outcome"}),
	}

	if err := registry.RegisterHistogramVec("engine", "stage_duration", m.stageDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "stage_failures", m.stageFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "shutdown_duration", m.shutdownDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// recordStage records one startup stage.
func (m *engineMetrics) recordStage(s stage, start time.Time, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(s.String()).Inc()
	}
}

// recordShutdown records a shutdown and whether it finished in time.
func (m *engineMetrics) recordShutdown(start time.Time, clean bool) {
	if m == nil {
		return
	}
	outcome := "clean"
	if !clean {
		outcome = "timeout"
	}
	m.shutdownDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
