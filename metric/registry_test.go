package metric

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounterVec(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "A test counter",
	}, []string{"label"})

	require.NoError(t, registry.RegisterCounterVec("talker", "test_counter", counter))
	counter.WithLabelValues("x").Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "test_counter_total" {
			found = true
		}
	}
	assert.True(t, found, "registered counter should be gathered")
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"}, []string{"l"})
	require.NoError(t, registry.RegisterGaugeVec("svc", "dup_gauge", gauge))

	err := registry.RegisterGaugeVec("svc", "dup_gauge", gauge)
	assert.Error(t, err)

	// Same collector under another key conflicts in prometheus
	err = registry.RegisterGaugeVec("other", "dup_gauge", gauge)
	assert.Error(t, err)
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "tick_seconds", Help: "tick"}, []string{"task"})
	require.NoError(t, registry.RegisterHistogramVec("repeater", "tick_seconds", hist))

	assert.True(t, registry.Unregister("repeater", "tick_seconds"))
	assert.False(t, registry.Unregister("repeater", "tick_seconds"))
	require.NoError(t, registry.RegisterHistogramVec("repeater", "tick_seconds", hist))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_%d_total", i)
			c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: "c"}, []string{"l"})
			assert.NoError(t, registry.RegisterCounterVec("svc", name, c))
		}(i)
	}
	wg.Wait()
}

func TestMetrics_RecordHelpers(t *testing.T) {
	m := NewMetrics()

	m.RepeaterIteration("Talker.Tick")
	m.RepeaterIteration("Talker.Tick")
	m.WatchdogTimeout("/scan")
	m.ParameterUpdate("applied")
	m.SetTransportConnected(true)
	m.SetRuntimeState(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RepeaterIterations.WithLabelValues("Talker.Tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WatchdogTimeouts.WithLabelValues("/scan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParameterUpdates.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportConnected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RuntimeState))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InstanceCreated("x")
		m.RepeaterIteration("x")
		m.RepeaterStopped("x", "count")
		m.InvocationError("init")
		m.MessageReceived("/t")
		m.MessageDropped("/t")
		m.WatchdogTimeout("/t")
		m.ParameterUpdate("applied")
		m.SetRuntimeState(1)
		m.SetTransportConnected(false)
	})

	var r *MetricsRegistry
	assert.Nil(t, r.CoreMetrics())
}

func TestServer_ServesMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().InstanceCreated("demo.Talker")

	server := NewServer("127.0.0.1:0", "", registry)
	require.NoError(t, server.Start())
	defer func() { _ = server.Stop(context.Background()) }()

	assert.Error(t, server.Start(), "second start should fail")

	resp, err := http.Get(server.Address())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "nodekit_registry_instances_created_total")
}
