// Package retry provides simple exponential backoff retry logic for transient failures.
//
// The bridge never retries a failed publish: redelivery is the upstream host's decision,
// driven by the verdict line. Retry is used only while constructing and connecting the
// producer during startup, before the first acknowledgement is written.
//
// Usage:
//
//	cfg := retry.Startup()
//	cfg.Retryable = errors.IsTransient
//	err := retry.Do(ctx, cfg, func() error {
//	    return client.Connect(ctx)
//	})
package retry
