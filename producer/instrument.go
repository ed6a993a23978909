package producer

import (
	"context"

	"github.com/c360/omprogbridge/metric"
)

type instrumented struct {
	Producer
	backend string
	metrics *metric.Metrics
}

// Instrument wraps p so every delivered result is counted per backend. A nil metrics
// returns p unchanged.
func Instrument(p Producer, backend string, metrics *metric.Metrics) Producer {
	if metrics == nil {
		return p
	}
	return &instrumented{Producer: p, backend: backend, metrics: metrics}
}

func (p *instrumented) SendAsync(ctx context.Context, msg Message, done func(Result)) {
	p.Producer.SendAsync(ctx, msg, func(r Result) {
		p.metrics.RecordPublishResult(p.backend, r.OK())
		done(r)
	})
}
