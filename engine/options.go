package engine

import (
	"log/slog"
	"time"

	"github.com/c360/nodekit/component"
	"github.com/c360/nodekit/metric"
	"github.com/c360/nodekit/param"
	"github.com/c360/nodekit/transport"
)

// Option configures a Runtime
type Option func(*Runtime)

// WithNode sets the transport node. Without one the runtime uses a private
// in-memory bus.
func WithNode(n transport.Node) Option {
	return func(r *Runtime) { r.node = n }
}

// WithExecutor sets the executor that runs inbound deliveries.
func WithExecutor(e transport.Executor) Option {
	return func(r *Runtime) { r.executor = e }
}

// WithStore sets the parameter store. Without one the runtime uses a
// MemoryStore.
func WithStore(s param.Store) Option {
	return func(r *Runtime) { r.store = s }
}

// WithLogger sets the base logger handed to every subsystem
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.base = logger
		}
	}
}

// WithMetrics enables runtime and engine metrics on registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Runtime) { r.metricsRegistry = registry }
}

// WithClock sets the clock injected into clock slots
func WithClock(c *component.Clock) Option {
	return func(r *Runtime) { r.clock = c }
}

// WithParameterOverrides seeds the store with params before any component
// fetches its values.
func WithParameterOverrides(params ...param.Parameter) Option {
	return func(r *Runtime) { r.overrides = append(r.overrides, params...) }
}

// WithShutdownTimeout bounds the join in Run. Defaults to
// DefaultShutdownTimeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.shutdownTimeout = d
		}
	}
}

// WithRosout controls whether log slots also publish on /rosout. Enabled by
// default.
func WithRosout(enabled bool) Option {
	return func(r *Runtime) { r.rosout = enabled }
}
