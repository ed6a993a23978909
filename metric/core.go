package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the bridge exports.
const Namespace = "omprog_bridge"

// Verdict labels for VerdictsTotal.
const (
	VerdictOK    = "ok"
	VerdictDefer = "defer"
	VerdictError = "error"
)

// Transaction event labels for TransactionsTotal.
const (
	TxBegin   = "begin"
	TxCommit  = "commit"
	TxDiscard = "discard"
)

// Metrics contains the bridge metrics. All record methods are safe on a nil *Metrics.
type Metrics struct {
	LinesRead         prometheus.Counter
	ParseErrors       prometheus.Counter
	RecordsSubmitted  prometheus.Counter
	VerdictsTotal     *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	BatchSize         prometheus.Histogram
	LateResults       prometheus.Counter
	TransactionsTotal *prometheus.CounterVec
	PublishResults    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all bridge metrics
func NewMetrics() *Metrics {
	return &Metrics{
		LinesRead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "lines_read_total",
				Help:      "Total number of input lines read, sentinels included",
			},
		),

		ParseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "parse_errors_total",
				Help:      "Total number of malformed input lines dropped",
			},
		),

		RecordsSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "records_submitted_total",
				Help:      "Total number of records handed to the producer",
			},
		),

		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "verdicts_total",
				Help:      "Acknowledgements written to the host, by verdict",
			},
			[]string{"verdict"},
		),

		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Time from submission to verdict for one batch",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "batch_size",
				Help:      "Number of records per submitted batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),

		LateResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "late_results_total",
				Help:      "Send results that arrived after their batch was reconciled",
			},
		),

		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "transactions_total",
				Help:      "Transaction boundaries seen, by event",
			},
			[]string{"event"},
		),

		PublishResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "producer",
				Name:      "results_total",
				Help:      "Send results reported by the producer backend",
			},
			[]string{"backend", "status"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LinesRead,
		m.ParseErrors,
		m.RecordsSubmitted,
		m.VerdictsTotal,
		m.ReconcileDuration,
		m.BatchSize,
		m.LateResults,
		m.TransactionsTotal,
		m.PublishResults,
	}
}

// RecordLineRead counts one input line
func (m *Metrics) RecordLineRead() {
	if m == nil {
		return
	}
	m.LinesRead.Inc()
}

// RecordParseError counts one dropped line
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// RecordSubmission records a batch handed to the producer
func (m *Metrics) RecordSubmission(records int) {
	if m == nil {
		return
	}
	m.RecordsSubmitted.Add(float64(records))
	m.BatchSize.Observe(float64(records))
}

// RecordVerdict counts an acknowledgement by verdict label
func (m *Metrics) RecordVerdict(verdict string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(verdict).Inc()
}

// ObserveReconcile records how long reconciliation of one batch took
func (m *Metrics) ObserveReconcile(d time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileDuration.Observe(d.Seconds())
}

// RecordLateResults counts results dropped by a sealed collector
func (m *Metrics) RecordLateResults(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LateResults.Add(float64(n))
}

// RecordTransaction counts a transaction boundary event
func (m *Metrics) RecordTransaction(event string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(event).Inc()
}

// RecordPublishResult counts one send result from a producer backend
func (m *Metrics) RecordPublishResult(backend string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.PublishResults.WithLabelValues(backend, status).Inc()
}
