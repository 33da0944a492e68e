package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nodekit"

// Prefix starts the name of every NodeKit metric.
const Prefix = namespace + "_"

// Metrics contains the runtime metrics. Every record method is safe to call
// on a nil *Metrics, which disables recording.
type Metrics struct {
	InstancesCreated   *prometheus.CounterVec
	RepeaterIterations *prometheus.CounterVec
	RepeaterStops      *prometheus.CounterVec
	InvocationErrors   *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	WatchdogTimeouts   *prometheus.CounterVec
	ParameterUpdates   *prometheus.CounterVec
	RuntimeState       prometheus.Gauge
	TransportConnected prometheus.Gauge
}

// NewMetrics creates the runtime metric vectors
func NewMetrics() *Metrics {
	return &Metrics{
		InstancesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "instances_created_total",
			Help:      "Component instances created",
		}, []string{"type"}),

		RepeaterIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repeater",
			Name:      "iterations_total",
			Help:      "Repeater method invocations",
		}, []string{"task"}),

		RepeaterStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repeater",
			Name:      "stops_total",
			Help:      "Repeaters reaching a terminal state",
		}, []string{"task", "reason"}), // reason: count, result, shutdown

		InvocationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "invocation_errors_total",
			Help:      "Errors returned or raised by component methods",
		}, []string{"kind"}), // kind: init, repeat, subscribe

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "messages_received_total",
			Help:      "Messages delivered to subscription handlers",
		}, []string{"topic"}),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped because the queue was full or the payload did not convert",
		}, []string{"topic"}),

		WatchdogTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "watchdog_timeouts_total",
			Help:      "Handler invocations caused by a receive timeout",
		}, []string{"topic"}),

		ParameterUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parameters",
			Name:      "updates_total",
			Help:      "Parameter values applied to fields, by outcome",
		}, []string{"status"}), // status: applied, default, coercion_failed, unknown, rejected

		RuntimeState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "state",
			Help:      "Runtime state (0=created, 1=initialized, 2=running, 3=stopped, 4=failed)",
		}),

		TransportConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connected",
			Help:      "Whether the transport connection is up (1) or down (0)",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.InstancesCreated,
		m.RepeaterIterations,
		m.RepeaterStops,
		m.InvocationErrors,
		m.MessagesReceived,
		m.MessagesDropped,
		m.WatchdogTimeouts,
		m.ParameterUpdates,
		m.RuntimeState,
		m.TransportConnected,
	}
}

// InstanceCreated records a new component instance
func (m *Metrics) InstanceCreated(typeName string) {
	if m == nil {
		return
	}
	m.InstancesCreated.WithLabelValues(typeName).Inc()
}

// RepeaterIteration records one repeater invocation
func (m *Metrics) RepeaterIteration(task string) {
	if m == nil {
		return
	}
	m.RepeaterIterations.WithLabelValues(task).Inc()
}

// RepeaterStopped records a repeater reaching a terminal state
func (m *Metrics) RepeaterStopped(task, reason string) {
	if m == nil {
		return
	}
	m.RepeaterStops.WithLabelValues(task, reason).Inc()
}

// InvocationError records a failed component method call
func (m *Metrics) InvocationError(kind string) {
	if m == nil {
		return
	}
	m.InvocationErrors.WithLabelValues(kind).Inc()
}

// MessageReceived records a delivered message
func (m *Metrics) MessageReceived(topic string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(topic).Inc()
}

// MessageDropped records a dropped inbound message
func (m *Metrics) MessageDropped(topic string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(topic).Inc()
}

// WatchdogTimeout records a timeout-driven handler call
func (m *Metrics) WatchdogTimeout(topic string) {
	if m == nil {
		return
	}
	m.WatchdogTimeouts.WithLabelValues(topic).Inc()
}

// ParameterUpdate records a parameter outcome
func (m *Metrics) ParameterUpdate(status string) {
	if m == nil {
		return
	}
	m.ParameterUpdates.WithLabelValues(status).Inc()
}

// SetRuntimeState records the runtime lifecycle state
func (m *Metrics) SetRuntimeState(state int) {
	if m == nil {
		return
	}
	m.RuntimeState.Set(float64(state))
}

// SetTransportConnected records transport connectivity
func (m *Metrics) SetTransportConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.TransportConnected.Set(1)
		return
	}
	m.TransportConnected.Set(0)
}
