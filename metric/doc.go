// Package metric provides Prometheus-based metrics collection and an optional
// HTTP endpoint for the bridge.
//
// The registry owns a private prometheus.Registry carrying the Go runtime and
// process collectors, the bridge metrics (Metrics type), and any metrics that
// components such as natsclient register for themselves.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("Metrics server error", "error", err)
//	    }
//	}()
//	defer server.Shutdown(ctx)
//
// # Bridge Metrics
//
//   - lines_read_total, parse_errors_total: input side of the session loop
//   - records_submitted_total, batch_size: submissions to the producer
//   - verdicts_total{verdict}: ok, defer or error acknowledgements
//   - reconcile_duration_seconds: submission to verdict latency
//   - late_results_total: send results that arrived after their batch was decided
//   - transactions_total{event}: begin, commit and discard boundaries
//   - producer_results_total{backend,status}: raw send results per backend
//
// All metrics share the omprog_bridge namespace.
//
// # Nil Safety
//
// Every record method accepts a nil *Metrics, and CoreMetrics on a nil registry
// returns nil. Components take a *Metrics and record unconditionally; with metrics
// disabled nothing is collected:
//
//	var registry *metric.MetricsRegistry // metrics disabled
//	m := registry.CoreMetrics()          // nil
//	m.RecordLineRead()                   // no-op
//
// # Component Metrics
//
// Components register their own collectors through the MetricsRegistrar
// interface. Names are tracked per component so a second registration of the
// same metric is rejected with an Invalid-class error:
//
//	err := registry.RegisterGauge("natsclient", "connected", gauge)
package metric
