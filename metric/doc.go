// Package metric provides Prometheus metrics for the NodeKit runtime and an
// HTTP server exposing them.
//
// # Architecture
//
//  1. Core Metrics: runtime-level vectors registered automatically (Metrics)
//  2. Registrar: extra metrics owned by components (MetricsRegistrar)
//  3. HTTP Server: /metrics plus /health (Server)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9090", "/metrics", registry)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(context.Background())
//
//	m := registry.CoreMetrics()
//	m.RepeaterIteration("Talker.Tick")
//
// Record methods on *Metrics are nil-safe, so packages hold a possibly nil
// pointer and record unconditionally:
//
//	var m *metric.Metrics // metrics disabled
//	m.WatchdogTimeout("/scan") // no-op
package metric
