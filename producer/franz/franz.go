// Package franz publishes records to Kafka with twmb/franz-go.
//
// kgo.Client.Produce takes a promise per record, which maps directly onto the
// SendAsync callback; Flush is the client's own.
package franz

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/pkg/tlsutil"
	"github.com/c360/omprogbridge/producer"
)

// Name is the producer.type value selecting this backend.
const Name = "franz"

// Producer is a producer.Producer backed by a kgo.Client.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Register adds the backend to registry.
func Register(registry *producer.Registry) error {
	return registry.RegisterFactory(Name, &producer.Registration{
		Name:        Name,
		Description: "Kafka client (twmb/franz-go)",
		Factory:     New,
	})
}

// New creates the client and pings the cluster before returning.
func New(ctx context.Context, cfg config.ProducerConfig, deps producer.Dependencies) (producer.Producer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(clientOptions(cfg, tlsConfig)...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "FranzProducer", "New", "create kafka client")
	}

	if err := producer.Connect(ctx, logger, Name, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			return errors.WrapTransient(err, "FranzProducer", "New", "ping brokers")
		}
		return nil
	}); err != nil {
		client.Close()
		return nil, errors.WrapFatal(err, "FranzProducer", "New", "reach brokers")
	}

	logger.Info("Franz producer ready", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Producer{client: client, topic: cfg.Topic, logger: logger}, nil
}

func clientOptions(cfg config.ProducerConfig, tlsConfig *tls.Config) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ClientID(cfg.ClientName),
		kgo.DialTimeout(cfg.ConnectTimeout),
		kgo.ProducerLinger(cfg.Linger),
		kgo.MaxBufferedRecords(cfg.MaxPending),
	}

	switch cfg.RequiredAcks {
	case config.AcksNone:
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case config.AcksLeader:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	}

	if tlsConfig != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsConfig))
	}
	if cfg.Username != "" {
		opts = append(opts, kgo.SASL(plain.Auth{User: cfg.Username, Pass: cfg.Password}.AsMechanism()))
	}
	return opts
}

func (p *Producer) record(msg producer.Message) *kgo.Record {
	rec := &kgo.Record{
		Topic: p.topic,
		Value: msg.Payload,
	}
	for k, v := range msg.Attributes {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if msg.HasEventTime {
		rec.Timestamp = time.UnixMilli(msg.EventTime)
	}
	return rec
}

// SendAsync produces msg; the promise resolves done.
func (p *Producer) SendAsync(ctx context.Context, msg producer.Message, done func(producer.Result)) {
	p.client.Produce(ctx, p.record(msg), func(_ *kgo.Record, err error) {
		if err != nil {
			done(failure(err))
			return
		}
		done(producer.Result{})
	})
}

// Flush waits for every buffered record to be acknowledged or failed.
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return errors.WrapTransient(err, "FranzProducer", "Flush", "flush buffered records")
	}
	return nil
}

// Close flushes within ctx and closes the client. Records still buffered are failed by
// the client.
func (p *Producer) Close(ctx context.Context) error {
	flushErr := p.Flush(ctx)
	if flushErr != nil {
		p.logger.Warn("Closing with buffered records", "buffered", p.client.BufferedProduceRecords(), "error", flushErr)
	}
	p.client.Close()
	return flushErr
}

// failure maps a produce error to a result, using the Kafka error name when the broker
// returned one.
func failure(err error) producer.Result {
	var ke *kerr.Error
	if stderrors.As(err, &ke) {
		return producer.Failure(ke.Message, err)
	}
	if stderrors.Is(err, kgo.ErrRecordTimeout) {
		return producer.Failure("RECORD_TIMEOUT", err)
	}
	return producer.Failure("", err)
}

var _ producer.Producer = (*Producer)(nil)
