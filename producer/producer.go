package producer

import (
	"context"
	"log/slog"

	"github.com/c360/omprogbridge/metric"
	"github.com/c360/omprogbridge/record"
)

// Message is one record as handed to a backend.
type Message struct {
	Payload      []byte
	Attributes   map[string]string
	EventTime    int64 // Unix milliseconds, valid when HasEventTime is set
	HasEventTime bool
}

// FromRecord converts a parsed record into a Message. Payload and attributes are shared,
// records are immutable.
func FromRecord(rec record.Record) Message {
	msg := Message{
		Payload:    rec.Payload,
		Attributes: rec.Attributes,
	}
	msg.EventTime, msg.HasEventTime = rec.EventTime()
	return msg
}

// Result is the delivery outcome of one SendAsync call. A nil Err means the broker
// accepted the message.
type Result struct {
	Err  error
	Code string // backend-specific error code, empty on success
}

// OK reports whether the send succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// String returns the code identifying a failure, falling back to the error text.
func (r Result) String() string {
	switch {
	case r.Err == nil:
		return "ok"
	case r.Code != "":
		return r.Code
	default:
		return r.Err.Error()
	}
}

// Failure builds a failed Result. An empty code is filled from err.
func Failure(code string, err error) Result {
	if code == "" && err != nil {
		code = err.Error()
	}
	return Result{Err: err, Code: code}
}

// Producer is the asynchronous publishing boundary to a message queue.
//
// SendAsync registers a send and returns without waiting for the broker. done is called
// exactly once per SendAsync, on any goroutine, in any order relative to other sends,
// and possibly after Flush has returned.
type Producer interface {
	SendAsync(ctx context.Context, msg Message, done func(Result))
	// Flush blocks until all previously registered sends have settled or ctx is done.
	Flush(ctx context.Context) error
	// Close flushes what it can within ctx and releases the connection.
	Close(ctx context.Context) error
}

// Dependencies are the shared services a backend factory may use.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.MetricsRegistry
}

// logger returns the configured logger or the process default.
func (d Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
