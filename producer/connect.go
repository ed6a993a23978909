package producer

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/pkg/retry"
)

// Connect runs fn with the startup backoff until it succeeds, fails with a non-transient
// error, or ctx is done. Backends use it for their initial broker handshake.
func Connect(ctx context.Context, logger *slog.Logger, backend string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := retry.Startup()
	cfg.Retryable = errors.IsTransient
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Producer connection failed, retrying",
			"backend", backend,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}

	err := retry.Do(ctx, cfg, func() error { return fn(ctx) })
	if err != nil {
		logger.Error("Producer connection failed",
			"backend", backend,
			"class", errors.Classify(err).String(),
			"error", err)
	}
	return err
}
