// Package jetstream publishes records to a NATS JetStream subject.
//
// Each record becomes one message on the configured subject with the payload as data,
// the attributes as headers, the event time in the Event-Time header (Unix milliseconds)
// and a unique Nats-Msg-Id per send. Sends use PublishMsgAsync; Flush waits on
// PublishAsyncComplete.
//
// Connection health is reported to the metrics registry, so the /health endpoint turns
// unavailable while NATS is unreachable, and the number of unacknowledged publishes is
// exported as a gauge.
package jetstream

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	natsjs "github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/metric"
	"github.com/c360/omprogbridge/natsclient"
	"github.com/c360/omprogbridge/pkg/tlsutil"
	"github.com/c360/omprogbridge/producer"
)

// Name is the producer.type value selecting this backend.
const Name = "jetstream"

// EventTimeHeader carries the record's event time in Unix milliseconds.
const EventTimeHeader = "Event-Time"

const pendingMetric = "publish_pending"

// Producer is a producer.Producer backed by JetStream async publishing.
type Producer struct {
	client  *natsclient.Client
	js      natsjs.JetStream
	subject string
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	watchers sync.WaitGroup
	closing  chan struct{}
	once     sync.Once
}

// Register adds the backend to registry.
func Register(registry *producer.Registry) error {
	return registry.RegisterFactory(Name, &producer.Registration{
		Name:        Name,
		Description: "NATS JetStream async publisher",
		Factory:     New,
	})
}

// New connects to NATS, optionally creates the stream, and returns a ready producer.
func New(ctx context.Context, cfg config.ProducerConfig, deps producer.Dependencies) (producer.Producer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
		natsclient.WithName(cfg.ClientName),
		natsclient.WithTimeout(cfg.ConnectTimeout),
		natsclient.WithPublishAsyncMaxPending(cfg.MaxPending),
		natsclient.WithMetrics(deps.Metrics),
		natsclient.WithDisconnectCallback(func(err error) {
			logger.Warn("NATS connection lost, publishes are buffered until reconnect", "error", err)
		}),
		natsclient.WithReconnectCallback(func() {
			logger.Info("NATS connection restored")
		}),
		natsclient.WithHealthChangeCallback(healthReporter(deps.Metrics)),
		natsclient.WithCircuitBreakerThreshold(cfg.CircuitThreshold),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	opts = append(opts, natsclient.WithTLSConfig(tlsConfig))

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "JetStreamProducer", "New", "create NATS client")
	}

	if err := producer.Connect(ctx, logger, Name, client.Connect); err != nil {
		_ = client.Close(ctx)
		return nil, errors.WrapFatal(err, "JetStreamProducer", "New", "connect to NATS")
	}

	if cfg.Stream.Create {
		stream, err := client.EnsureStream(ctx, natsjs.StreamConfig{
			Name:     cfg.Stream.Name,
			Subjects: cfg.StreamSubjects(),
		})
		if err != nil {
			_ = client.Close(ctx)
			return nil, errors.WrapFatal(err, "JetStreamProducer", "New", "ensure stream "+cfg.Stream.Name)
		}
		logger.Info("JetStream stream ready", "stream", stream.CachedInfo().Config.Name)
	}

	p, err := newProducer(client, cfg.Topic, logger)
	if err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	if err := registerPending(deps.Metrics, p.js.PublishAsyncPending); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	p.metrics = deps.Metrics

	status := client.GetStatus()
	logger.Info("JetStream producer ready",
		"subject", cfg.Topic,
		"status", status.Status.String(),
		"rtt", status.RTT)
	return p, nil
}

func newProducer(client *natsclient.Client, subject string, logger *slog.Logger) (*Producer, error) {
	js, err := client.JetStream()
	if err != nil {
		return nil, errors.WrapFatal(err, "JetStreamProducer", "New", "get JetStream context")
	}

	return &Producer{
		client:  client,
		js:      js,
		subject: subject,
		logger:  logger,
		closing: make(chan struct{}),
	}, nil
}

// SendAsync publishes msg and reports the stream acknowledgement through done.
func (p *Producer) SendAsync(_ context.Context, msg producer.Message, done func(producer.Result)) {
	select {
	case <-p.closing:
		done(producer.Failure("closed", errors.ErrProducerClosed))
		return
	default:
	}

	future, err := p.js.PublishMsgAsync(p.natsMsg(msg))
	if err != nil {
		done(failure(err))
		return
	}

	p.watchers.Add(1)
	go func() {
		defer p.watchers.Done()
		select {
		case <-future.Ok():
			done(producer.Result{})
		case err := <-future.Err():
			done(failure(err))
		case <-p.closing:
			done(producer.Failure("closed", errors.ErrProducerClosed))
		}
	}()
}

func (p *Producer) natsMsg(msg producer.Message) *nats.Msg {
	m := nats.NewMsg(p.subject)
	m.Data = msg.Payload
	for k, v := range msg.Attributes {
		m.Header.Set(k, v)
	}
	m.Header.Set(nats.MsgIdHdr, uuid.NewString())
	if msg.HasEventTime {
		m.Header.Set(EventTimeHeader, strconv.FormatInt(msg.EventTime, 10))
	}
	return m
}

// Flush waits until every outstanding publish has been acknowledged or failed.
func (p *Producer) Flush(ctx context.Context) error {
	select {
	case <-p.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "JetStreamProducer", "Flush", "wait for pending acks")
	}
}

// Close flushes within ctx, resolves any still-pending callbacks as failed and closes
// the connection.
func (p *Producer) Close(ctx context.Context) error {
	flushErr := p.Flush(ctx)
	if flushErr != nil {
		p.logger.Warn("Closing with unacknowledged publishes",
			"pending", p.js.PublishAsyncPending(), "error", flushErr)
	}

	p.once.Do(func() { close(p.closing) })
	p.watchers.Wait()

	if p.metrics != nil {
		p.metrics.Unregister(Name, pendingMetric)
	}

	if err := p.client.Close(ctx); err != nil {
		return errors.Wrap(err, "JetStreamProducer", "Close", "close NATS client")
	}
	return flushErr
}

// healthReporter marks the backend unhealthy on the metrics registry while the
// connection is down
func healthReporter(registry *metric.MetricsRegistry) func(healthy bool) {
	return func(healthy bool) {
		registry.SetHealth(Name, healthy)
	}
}

// registerPending exports the async publish window as a gauge
func registerPending(registry *metric.MetricsRegistry, pending func() int) error {
	if registry == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metric.Namespace,
		Subsystem: Name,
		Name:      pendingMetric,
		Help:      "Async publishes awaiting a JetStream acknowledgement",
	}, func() float64 { return float64(pending()) })

	return registry.RegisterCollector(Name, pendingMetric, gauge)
}

// failure maps a publish error to a result, using the JetStream API error code when the
// server supplied one.
func failure(err error) producer.Result {
	var apiErr *natsjs.APIError
	if stderrors.As(err, &apiErr) {
		return producer.Failure(fmt.Sprintf("%d: %s", apiErr.ErrorCode, apiErr.Description), err)
	}
	if stderrors.Is(err, nats.ErrTimeout) {
		return producer.Failure("timeout", err)
	}
	return producer.Failure("", err)
}

var _ producer.Producer = (*Producer)(nil)
