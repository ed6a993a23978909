package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/metric"
	"github.com/c360/omprogbridge/producer"
	"github.com/c360/omprogbridge/record"
)

// Reconciler forwards a batch and collapses its send results into one Verdict.
type Reconciler struct {
	producer     producer.Producer
	pollInterval time.Duration
	pollAttempts int
	logger       *slog.Logger
	metrics      *metric.Metrics
}

// NewReconciler creates a reconciler polling at cfg's interval for at most cfg's attempts.
// logger and metrics may be nil.
func NewReconciler(p producer.Producer, cfg config.ReconcileConfig, logger *slog.Logger, metrics *metric.Metrics) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.Default().Reconcile.PollInterval
	}
	if cfg.PollAttempts < 1 {
		cfg.PollAttempts = config.Default().Reconcile.PollAttempts
	}
	return &Reconciler{
		producer:     p,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
		logger:       logger,
		metrics:      metrics,
	}
}

// Submit sends every record, in order, into a fresh collector.
func (r *Reconciler) Submit(ctx context.Context, records []record.Record) *producer.Collector {
	collector := producer.NewCollector(r.metrics)
	done := collector.Done()
	for _, rec := range records {
		r.producer.SendAsync(ctx, producer.FromRecord(rec), done)
	}
	r.metrics.RecordSubmission(len(records))
	return collector
}

// Forward submits records and reconciles their results.
func (r *Reconciler) Forward(ctx context.Context, records []record.Record) Verdict {
	if len(records) == 0 {
		return VerdictOK
	}
	return r.Reconcile(ctx, r.Submit(ctx, records), len(records))
}

// Reconcile waits for submitted results to arrive in collector and returns the first
// failure in arrival order, a timeout verdict when fewer results arrived than were
// submitted (including a Flush that outlives the poll bound), or OK. The collector is sealed on return; results arriving later are
// counted as late and ignored.
func (r *Reconciler) Reconcile(ctx context.Context, collector *producer.Collector, submitted int) Verdict {
	defer collector.Seal()

	if submitted == 0 {
		return VerdictOK
	}

	start := time.Now()
	defer func() { r.metrics.ObserveReconcile(time.Since(start)) }()

	flushCtx, cancel := context.WithTimeout(ctx, r.pollInterval*time.Duration(r.pollAttempts))
	err := r.producer.Flush(flushCtx)
	cancel()

	var got int
	switch {
	case err == nil:
		got = r.await(ctx, collector, submitted)
	case stderrors.Is(err, context.DeadlineExceeded):
		// The poll bound is spent; whatever arrived is all this window gets
		got = collector.Len()
	default:
		r.logger.Error("Producer flush failed", "records", submitted, "error", err)
		return publisherError(err.Error())
	}

	if got < submitted {
		err := errors.WrapTransient(
			fmt.Errorf("%w: got %d results, expecting %d", errors.ErrReconcileTimeout, got, submitted),
			"Reconciler", "Reconcile", "collect send results")
		r.logger.Error("Send results incomplete", "error", err)
		return reconcileTimeout(got, submitted)
	}

	if failed, ok := collector.FirstFailure(); ok {
		err := errors.WrapTransient(
			fmt.Errorf("%w: %s", errors.ErrPublishFailed, failed),
			"Reconciler", "Reconcile", "publish batch")
		r.logger.Error("Publish failed", "records", submitted, "code", failed.Code, "error", err)
		return publisherError(failed.String())
	}

	return VerdictOK
}

// await polls the collector until it holds want results, the attempts run out, or ctx
// is done. Callbacks may still be firing after Flush returned.
func (r *Reconciler) await(ctx context.Context, collector *producer.Collector, want int) int {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < r.pollAttempts; attempt++ {
		if n := collector.Len(); n >= want {
			return n
		}
		select {
		case <-ctx.Done():
			return collector.Len()
		case <-ticker.C:
		}
	}
	return collector.Len()
}
