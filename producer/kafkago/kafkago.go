// Package kafkago publishes records to Kafka with segmentio/kafka-go.
//
// The writer runs in async mode: WriteMessages only enqueues, and the writer's Completion
// hook reports each batch. The per-record callback travels in Message.WriterData.
package kafkago

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/pkg/tlsutil"
	"github.com/c360/omprogbridge/producer"
)

// Name is the producer.type value selecting this backend.
const Name = "kafka"

// Producer is a producer.Producer backed by an async kafka.Writer.
type Producer struct {
	writer   *kafka.Writer
	inflight producer.Inflight
	logger   *slog.Logger
}

// Register adds the backend to registry.
func Register(registry *producer.Registry) error {
	return registry.RegisterFactory(Name, &producer.Registration{
		Name:        Name,
		Description: "Kafka async writer (segmentio/kafka-go)",
		Factory:     New,
	})
}

// New checks that a broker is reachable and returns a producer writing to cfg.Topic.
func New(ctx context.Context, cfg config.ProducerConfig, deps producer.Dependencies) (producer.Producer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var mechanism sasl.Mechanism
	if cfg.Username != "" {
		mechanism = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	dialer := &kafka.Dialer{
		ClientID:      cfg.ClientName,
		Timeout:       cfg.ConnectTimeout,
		DualStack:     true,
		SASLMechanism: mechanism,
		TLS:           tlsConfig,
	}
	if err := producer.Connect(ctx, logger, Name, func(ctx context.Context) error {
		return dialAny(ctx, dialer, cfg.Brokers)
	}); err != nil {
		return nil, errors.WrapFatal(err, "KafkaProducer", "New", "reach brokers")
	}

	p := &Producer{logger: logger}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.Linger,
		RequiredAcks: requiredAcks(cfg.RequiredAcks),
		Async:        true,
		Completion:   p.complete,
		Transport: &kafka.Transport{
			ClientID:    cfg.ClientName,
			DialTimeout: cfg.ConnectTimeout,
			SASL:        mechanism,
			TLS:         tlsConfig,
		},
	}
	if cfg.Linger == 0 {
		// kafka-go treats zero as its one second default
		p.writer.BatchTimeout = time.Millisecond
	}

	logger.Info("Kafka producer ready", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return p, nil
}

// dialAny dials brokers in order until one answers.
func dialAny(ctx context.Context, dialer *kafka.Dialer, brokers []string) error {
	if len(brokers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "KafkaProducer", "dialAny", "broker list")
	}
	var errs []error
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	return errors.WrapTransient(stderrors.Join(errs...), "KafkaProducer", "dialAny", "dial brokers")
}

func requiredAcks(acks string) kafka.RequiredAcks {
	switch acks {
	case config.AcksNone:
		return kafka.RequireNone
	case config.AcksLeader:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// SendAsync enqueues msg on the writer.
func (p *Producer) SendAsync(ctx context.Context, msg producer.Message, done func(producer.Result)) {
	km := kafka.Message{
		Value:      msg.Payload,
		Headers:    headers(msg.Attributes),
		WriterData: done,
	}
	if msg.HasEventTime {
		km.Time = time.UnixMilli(msg.EventTime)
	}

	p.inflight.Add()
	if err := p.writer.WriteMessages(ctx, km); err != nil {
		p.inflight.Done()
		done(failure(err))
	}
}

// complete is the writer's Completion hook. It runs once per written batch.
func (p *Producer) complete(messages []kafka.Message, err error) {
	result := producer.Result{}
	if err != nil {
		result = failure(err)
	}
	for _, m := range messages {
		if done, ok := m.WriterData.(func(producer.Result)); ok {
			done(result)
		}
		p.inflight.Done()
	}
}

// Flush waits until every enqueued message has been reported by the writer.
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.inflight.Wait(ctx); err != nil {
		return errors.WrapTransient(err, "KafkaProducer", "Flush",
			strconv.Itoa(p.inflight.Len())+" messages still in flight")
	}
	return nil
}

// Close flushes within ctx and closes the writer.
func (p *Producer) Close(ctx context.Context) error {
	flushErr := p.Flush(ctx)
	if flushErr != nil {
		p.logger.Warn("Closing with messages in flight", "pending", p.inflight.Len(), "error", flushErr)
	}
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, "KafkaProducer", "Close", "close writer")
	}
	return flushErr
}

func headers(attrs map[string]string) []kafka.Header {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

// failure maps a write error to a result, preferring the Kafka protocol error name.
func failure(err error) producer.Result {
	var kerr kafka.Error
	if stderrors.As(err, &kerr) {
		return producer.Failure(kerr.Title(), err)
	}
	var werrs kafka.WriteErrors
	if stderrors.As(err, &werrs) {
		for _, e := range werrs {
			if e != nil {
				return failure(e)
			}
		}
	}
	return producer.Failure("", err)
}

var _ producer.Producer = (*Producer)(nil)
