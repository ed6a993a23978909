// Package producertest provides an in-memory Producer whose results can be delivered in any
// order, delayed past Flush, or dropped altogether.
package producertest

import (
	"context"
	"slices"
	"sync"

	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/producer"
)

// ResultFunc decides the outcome of the seq-th send (zero based, counted across the
// producer's lifetime).
type ResultFunc func(seq int, msg producer.Message) producer.Result

// Option configures a fake Producer.
type Option func(*Producer)

// WithResults sets the outcome of each send. The default is success.
func WithResults(fn ResultFunc) Option {
	return func(p *Producer) {
		p.results = fn
	}
}

// WithHeldResults keeps every result pending until Release or ReleaseReverse.
func WithHeldResults() Option {
	return func(p *Producer) {
		p.hold = true
	}
}

// WithFlushError makes Flush fail with err.
func WithFlushError(err error) Option {
	return func(p *Producer) {
		p.flushErr = err
	}
}

// WithFlushHook runs fn at the start of every Flush.
func WithFlushHook(fn func(p *Producer)) Option {
	return func(p *Producer) {
		p.onFlush = fn
	}
}

type pendingSend struct {
	seq    int
	result producer.Result
	done   func(producer.Result)
}

// Producer is a fake producer.Producer. It is safe for concurrent use.
type Producer struct {
	mu       sync.Mutex
	sent     []producer.Message
	pending  []pendingSend
	results  ResultFunc
	hold     bool
	flushErr error
	onFlush  func(p *Producer)
	flushes  int
	closed   bool
}

// New creates a fake producer.
func New(opts ...Option) *Producer {
	p := &Producer{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SendAsync records msg and resolves it immediately unless results are held.
func (p *Producer) SendAsync(_ context.Context, msg producer.Message, done func(producer.Result)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		done(producer.Failure("closed", errors.ErrProducerClosed))
		return
	}
	seq := len(p.sent)
	p.sent = append(p.sent, msg)

	result := producer.Result{}
	if p.results != nil {
		result = p.results(seq, msg)
	}

	if p.hold {
		p.pending = append(p.pending, pendingSend{seq: seq, result: result, done: done})
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	done(result)
}

// Flush runs the flush hook and returns the configured flush error. Held results stay
// held: Flush returning before every callback fired is allowed.
func (p *Producer) Flush(_ context.Context) error {
	p.mu.Lock()
	p.flushes++
	hook := p.onFlush
	err := p.flushErr
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return err
}

// Close marks the producer closed. Later sends fail immediately.
func (p *Producer) Close(_ context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Release delivers the held results for the given sequence numbers, in the order given.
// With no arguments every held result is delivered in send order.
func (p *Producer) Release(seqs ...int) {
	for _, s := range p.take(seqs) {
		s.done(s.result)
	}
}

// ReleaseReverse delivers every held result, newest first.
func (p *Producer) ReleaseReverse() {
	taken := p.take(nil)
	slices.Reverse(taken)
	for _, s := range taken {
		s.done(s.result)
	}
}

// Drop discards held results for the given sequence numbers; their callbacks never run.
func (p *Producer) Drop(seqs ...int) {
	p.take(seqs)
}

func (p *Producer) take(seqs []int) []pendingSend {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(seqs) == 0 {
		taken := p.pending
		p.pending = nil
		return taken
	}

	var taken []pendingSend
	for _, seq := range seqs {
		i := slices.IndexFunc(p.pending, func(s pendingSend) bool { return s.seq == seq })
		if i < 0 {
			continue
		}
		taken = append(taken, p.pending[i])
		p.pending = slices.Delete(p.pending, i, i+1)
	}
	return taken
}

// Sent returns every message passed to SendAsync, in call order.
func (p *Producer) Sent() []producer.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.sent)
}

// Pending returns the number of held results.
func (p *Producer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flushes returns how many times Flush was called.
func (p *Producer) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// Closed reports whether Close was called.
func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FailSeq returns a ResultFunc failing only the given sends with code.
func FailSeq(code string, seqs ...int) ResultFunc {
	return func(seq int, _ producer.Message) producer.Result {
		if slices.Contains(seqs, seq) {
			return producer.Failure(code, errors.ErrPublishFailed)
		}
		return producer.Result{}
	}
}

var _ producer.Producer = (*Producer)(nil)
