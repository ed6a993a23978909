// Package sarama publishes records to Kafka with an IBM/sarama AsyncProducer.
//
// Successes and Errors are both enabled; two goroutines drain them and resolve the
// callback carried in ProducerMessage.Metadata.
package sarama

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/pkg/tlsutil"
	"github.com/c360/omprogbridge/producer"
)

// Name is the producer.type value selecting this backend.
const Name = "sarama"

// Producer is a producer.Producer backed by sarama.AsyncProducer.
type Producer struct {
	async    sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	inflight producer.Inflight

	mu      sync.RWMutex
	closed  bool
	drained sync.WaitGroup
}

// Register adds the backend to registry.
func Register(registry *producer.Registry) error {
	return registry.RegisterFactory(Name, &producer.Registration{
		Name:        Name,
		Description: "Kafka async producer (IBM/sarama)",
		Factory:     New,
	})
}

// New creates the async producer, retrying while the brokers are unreachable.
func New(ctx context.Context, cfg config.ProducerConfig, deps producer.Dependencies) (producer.Producer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	scfg := saramaConfig(cfg, tlsConfig)
	if err := scfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "SaramaProducer", "New", "validate sarama config")
	}

	var async sarama.AsyncProducer
	err = producer.Connect(ctx, logger, Name, func(context.Context) error {
		var err error
		async, err = sarama.NewAsyncProducer(cfg.Brokers, scfg)
		if err != nil {
			return errors.WrapTransient(err, "SaramaProducer", "New", "create async producer")
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "SaramaProducer", "New", "reach brokers")
	}

	logger.Info("Sarama producer ready", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return newProducer(async, cfg.Topic, logger), nil
}

func saramaConfig(cfg config.ProducerConfig, tlsConfig *tls.Config) *sarama.Config {
	scfg := sarama.NewConfig()
	scfg.ClientID = cfg.ClientName
	scfg.Version = sarama.V2_1_0_0
	scfg.Net.DialTimeout = cfg.ConnectTimeout
	scfg.Producer.Return.Successes = true
	scfg.Producer.Return.Errors = true
	scfg.Producer.Flush.Frequency = cfg.Linger
	scfg.Producer.Timeout = 10 * time.Second

	switch cfg.RequiredAcks {
	case config.AcksNone:
		scfg.Producer.RequiredAcks = sarama.NoResponse
	case config.AcksLeader:
		scfg.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		scfg.Producer.RequiredAcks = sarama.WaitForAll
	}

	if tlsConfig != nil {
		scfg.Net.TLS.Enable = true
		scfg.Net.TLS.Config = tlsConfig
	}

	if cfg.Username != "" {
		scfg.Net.SASL.Enable = true
		scfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		scfg.Net.SASL.User = cfg.Username
		scfg.Net.SASL.Password = cfg.Password
	}
	return scfg
}

func newProducer(async sarama.AsyncProducer, topic string, logger *slog.Logger) *Producer {
	p := &Producer{
		async:  async,
		topic:  topic,
		logger: logger,
	}

	p.drained.Add(2)
	go func() {
		defer p.drained.Done()
		for msg := range async.Successes() {
			p.resolve(msg, producer.Result{})
		}
	}()
	go func() {
		defer p.drained.Done()
		for perr := range async.Errors() {
			p.resolve(perr.Msg, failure(perr.Err))
		}
	}()

	return p
}

func (p *Producer) resolve(msg *sarama.ProducerMessage, result producer.Result) {
	if msg == nil {
		return
	}
	if done, ok := msg.Metadata.(func(producer.Result)); ok {
		done(result)
	}
	p.inflight.Done()
}

// SendAsync queues msg on the producer's input channel. It blocks while the input
// buffer is full, until ctx is done.
func (p *Producer) SendAsync(ctx context.Context, msg producer.Message, done func(producer.Result)) {
	pm := &sarama.ProducerMessage{
		Topic:    p.topic,
		Value:    sarama.ByteEncoder(msg.Payload),
		Headers:  headers(msg.Attributes),
		Metadata: done,
	}
	if msg.HasEventTime {
		pm.Timestamp = time.UnixMilli(msg.EventTime)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		done(producer.Failure("closed", errors.ErrProducerClosed))
		return
	}

	p.inflight.Add()
	select {
	case p.async.Input() <- pm:
	case <-ctx.Done():
		p.inflight.Done()
		done(producer.Failure("cancelled", ctx.Err()))
	}
}

// Flush waits until every queued message has been reported on Successes or Errors.
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.inflight.Wait(ctx); err != nil {
		return errors.WrapTransient(err, "SaramaProducer", "Flush",
			strconv.Itoa(p.inflight.Len())+" messages still in flight")
	}
	return nil
}

// Close flushes within ctx, then shuts the producer down and drains its channels.
func (p *Producer) Close(ctx context.Context) error {
	flushErr := p.Flush(ctx)
	if flushErr != nil {
		p.logger.Warn("Closing with messages in flight", "pending", p.inflight.Len(), "error", flushErr)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return flushErr
	}
	p.closed = true
	p.mu.Unlock()

	p.async.AsyncClose()
	p.drained.Wait()
	return flushErr
}

func headers(attrs map[string]string) []sarama.RecordHeader {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return out
}

// failure maps a producer error to a result, using the Kafka error code when present.
func failure(err error) producer.Result {
	var kerr sarama.KError
	if stderrors.As(err, &kerr) {
		return producer.Failure(kerr.Error(), err)
	}
	return producer.Failure("", err)
}

var _ producer.Producer = (*Producer)(nil)
