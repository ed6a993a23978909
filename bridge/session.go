package bridge

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/metric"
	"github.com/c360/omprogbridge/pkg/timestamp"
	"github.com/c360/omprogbridge/producer"
	"github.com/c360/omprogbridge/record"
)

// TxState is the transaction controller state.
type TxState int

const (
	// Idle submits every record as soon as it is read.
	Idle TxState = iota
	// Active buffers records until the commit mark.
	Active
)

func (s TxState) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Options configures a Session.
type Options struct {
	Omprog    config.OmprogConfig
	Reconcile config.ReconcileConfig
	Producer  producer.Producer
	Input     io.Reader
	Output    io.Writer
	Logger    *slog.Logger
	Metrics   *metric.Metrics
}

// Session speaks the omprog protocol: it reads lines from Input, forwards records through
// Producer and writes one acknowledgement line per input line to Output.
type Session struct {
	confirm    bool
	beginMark  []byte
	commitMark []byte

	parser     *record.Parser
	reconciler *Reconciler
	producer   producer.Producer
	in         *bufio.Reader
	out        *bufio.Writer
	logger     *slog.Logger
	metrics    *metric.Metrics

	state TxState
	batch Batch
}

// NewSession validates opts and builds a session in the Idle state.
func NewSession(opts Options) (*Session, error) {
	if opts.Producer == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Session", "NewSession", "producer validation")
	}
	if opts.Input == nil || opts.Output == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Session", "NewSession", "input/output validation")
	}
	if opts.Omprog.BeginTransactionMark == "" || opts.Omprog.CommitTransactionMark == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Session", "NewSession", "transaction mark validation")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		confirm:    opts.Omprog.ConfirmMessages,
		beginMark:  []byte(opts.Omprog.BeginTransactionMark),
		commitMark: []byte(opts.Omprog.CommitTransactionMark),
		parser: &record.Parser{
			ParseTimestamp: opts.Omprog.ParseTimestamp,
			TimestampField: opts.Omprog.TimestampField,
		},
		reconciler: NewReconciler(opts.Producer, opts.Reconcile, logger, opts.Metrics),
		producer:   opts.Producer,
		in:         bufio.NewReader(opts.Input),
		out:        bufio.NewWriter(opts.Output),
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// State returns the current transaction state.
func (s *Session) State() TxState {
	return s.state
}

// Run processes input until EOF, an acknowledgement write fails, or ctx is cancelled
// between two lines. Reaching EOF returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("omprog session started",
		"confirm_messages", s.confirm,
		"parse_timestamp", s.parser.ParseTimestamp)

	if s.confirm {
		if err := s.ack(VerdictOK); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			s.discardOpenTransaction("session cancelled")
			return err
		}

		line, readErr := s.in.ReadBytes('\n')
		if len(line) > 0 {
			if err := s.handle(ctx, line); err != nil {
				return err
			}
		}

		if readErr != nil {
			if stderrors.Is(readErr, io.EOF) {
				s.discardOpenTransaction("end of input")
				s.logger.Info("omprog session finished")
				return nil
			}
			return errors.WrapTransient(readErr, "Session", "Run", "read input")
		}
	}
}

// handle applies one input line to the state machine and acknowledges it.
func (s *Session) handle(ctx context.Context, line []byte) error {
	s.metrics.RecordLineRead()

	switch {
	case bytes.Equal(line, s.beginMark):
		s.state = Active
		s.metrics.RecordTransaction(metric.TxBegin)
		return s.ack(VerdictOK)

	case bytes.Equal(line, s.commitMark):
		s.state = Idle
		s.metrics.RecordTransaction(metric.TxCommit)
		return s.ack(s.submit(ctx))
	}

	rec, err := s.parser.Parse(line)
	if err != nil {
		s.metrics.RecordParseError()
		s.logger.Warn("Dropping malformed line", "state", s.state.String(), "error", err)
	} else {
		if ms, ok := rec.EventTime(); ok {
			s.logger.Debug("Record event time extracted", "event_time", timestamp.Format(ms))
		}
		s.batch.Append(rec)
	}

	if s.state == Active {
		return s.ack(VerdictDeferCommit)
	}
	return s.ack(s.submit(ctx))
}

// submit hands the whole batch to the producer and empties it. Without confirmation the
// sends are not reconciled; failures are only logged as they arrive.
func (s *Session) submit(ctx context.Context) Verdict {
	records := s.batch.take()

	if s.confirm {
		return s.reconciler.Forward(ctx, records)
	}
	if len(records) == 0 {
		return VerdictOK
	}

	for _, rec := range records {
		s.producer.SendAsync(ctx, producer.FromRecord(rec), s.logFailure)
	}
	s.metrics.RecordSubmission(len(records))
	return VerdictOK
}

func (s *Session) logFailure(r producer.Result) {
	if !r.OK() {
		s.logger.Error("Publish failed", "code", r.Code, "error", r.Err)
	}
}

// ack writes v as one line when confirmation is enabled.
func (s *Session) ack(v Verdict) error {
	if !s.confirm {
		return nil
	}

	s.metrics.RecordVerdict(v.label())

	if _, err := s.out.WriteString(string(v) + "\n"); err != nil {
		return errors.WrapFatal(stderrors.Join(errors.ErrAckWriteFailed, err), "Session", "ack", "write verdict")
	}
	if err := s.out.Flush(); err != nil {
		return errors.WrapFatal(stderrors.Join(errors.ErrAckWriteFailed, err), "Session", "ack", "flush verdict")
	}
	return nil
}

// discardOpenTransaction drops records of a transaction the host never committed.
func (s *Session) discardOpenTransaction(reason string) {
	if s.state != Active {
		return
	}
	s.logger.Warn("Discarding uncommitted transaction",
		"reason", reason,
		"records", s.batch.Len())
	s.metrics.RecordTransaction(metric.TxDiscard)
	s.batch.take()
	s.state = Idle
}
