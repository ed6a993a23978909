// Package natsclient provides the NATS connection behind the JetStream producer,
// with circuit breaker protection and automatic reconnection.
//
// The client wraps nats.go with a connection status machine
// (Disconnected → Connecting → Connected → Reconnecting → Connected), a circuit
// breaker that fails fast after a threshold of consecutive failures (default: 5)
// and backs off exponentially up to a ceiling, and a drain-on-close so that
// in-flight async publishes settle before the process exits.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("omprog-bridge"),
//	    natsclient.WithPublishAsyncMaxPending(4096),
//	    natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	js, err := client.JetStream()
//
// # Streams
//
// EnsureStream creates the target stream or updates it in place when it already
// exists, so a bridge restart with unchanged configuration is idempotent:
//
//	_, err = client.EnsureStream(ctx, jetstream.StreamConfig{
//	    Name:     "LOGS",
//	    Subjects: []string{"logs.>"},
//	})
//
// # Circuit Breaker
//
// Each failed Connect or stream operation counts towards the threshold. Once open,
// Connect returns ErrCircuitOpen immediately; after the current backoff elapses the
// circuit half-opens and the next attempt goes through. A successful connection
// resets the breaker.
//
// # Metrics
//
// WithMetrics registers connection gauges (connected, circuit_breaker) and a
// reconnect counter with the bridge's metric registry. Without it nothing is
// recorded.
//
// # Testing
//
// The natstest sub-package starts a NATS server in a container for integration tests.
package natsclient
