package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/omprogbridge/metric"
)

// connMetrics tracks the health of the single producer connection.
// A nil *connMetrics is valid and records nothing.
type connMetrics struct {
	connected   prometheus.Gauge
	circuitOpen prometheus.Gauge
	reconnects  prometheus.Counter
}

func newConnMetrics(registry *metric.MetricsRegistry) (*connMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &connMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
		circuitOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "circuit_breaker",
			Help:      "Circuit breaker state (0=closed, 1=open)",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
	}

	if err := registry.RegisterGauge("natsclient", "connected", m.connected); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("natsclient", "circuit_breaker", m.circuitOpen); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("natsclient", "reconnects_total", m.reconnects); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *connMetrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	m.connected.Set(boolToFloat(connected))
}

func (m *connMetrics) setCircuitOpen(open bool) {
	if m == nil {
		return
	}
	m.circuitOpen.Set(boolToFloat(open))
}

func (m *connMetrics) incReconnects() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
