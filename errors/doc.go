// Package errors provides standardized error handling patterns for the omprog bridge.
//
// # Overview
//
// Errors fall into three classes: Transient (the host may redeliver the batch), Invalid
// (bad input, redelivery would not help), and Fatal (the bridge cannot continue). The
// session loop uses the class to decide whether an error becomes a verdict line, a
// diagnostic line, or a process exit.
//
// # Error Classification
//
//   - Transient: publish failures, reconciliation timeouts, connection loss, context timeouts
//   - Invalid: malformed input lines, bad metadata JSON, invalid configuration values
//   - Fatal: acknowledgement channel gone, producer closed, missing configuration
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Reconciler", "Reconcile", "flush producer")
//	errors.WrapInvalid(err, "Parser", "Parse", "decode metadata")
//	errors.WrapFatal(err, "Session", "Run", "write acknowledgement")
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Client", "Connect", "dial")
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    logger.Warn("classified failure", "component", ce.Component, "class", ce.Class)
//	}
//
//	if errors.Is(err, errors.ErrParsingFailed) {
//	    // drop the line, never redeliver
//	}
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified as Transient.
package errors
