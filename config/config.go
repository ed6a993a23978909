package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/omprogbridge/errors"
)

// Producer backends
const (
	ProducerJetStream = "jetstream"
	ProducerKafka     = "kafka"
	ProducerSarama    = "sarama"
	ProducerFranz     = "franz"
)

// Kafka acknowledgement levels
const (
	AcksAll    = "all"
	AcksLeader = "leader"
	AcksNone   = "none"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "OMPROG_BRIDGE"

// Config represents the complete bridge configuration
type Config struct {
	Omprog    OmprogConfig    `yaml:"omprog"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Producer  ProducerConfig  `yaml:"producer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// OmprogConfig defines the line protocol spoken with the host
type OmprogConfig struct {
	ConfirmMessages       bool   `yaml:"confirm_messages"`
	ParseTimestamp        bool   `yaml:"parse_timestamp"`
	TimestampField        string `yaml:"timestamp_field"`
	BeginTransactionMark  string `yaml:"begin_transaction_mark"`
	CommitTransactionMark string `yaml:"commit_transaction_mark"`
}

// ReconcileConfig bounds how long a batch waits for its send results
type ReconcileConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`
}

// Timeout is the total time a batch may wait for results
func (r ReconcileConfig) Timeout() time.Duration {
	return r.PollInterval * time.Duration(r.PollAttempts)
}

// ProducerConfig selects and configures the message-queue backend
type ProducerConfig struct {
	Type             string        `yaml:"type"`
	Topic            string        `yaml:"topic"`
	URLs             []string      `yaml:"urls"`
	Brokers          []string      `yaml:"brokers"`
	ClientName       string        `yaml:"client_name"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	Token            string        `yaml:"token"`
	Stream           StreamConfig  `yaml:"stream"`
	MaxPending       int           `yaml:"max_pending"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	CircuitThreshold int32         `yaml:"circuit_threshold"`
	Linger           time.Duration `yaml:"linger"`
	RequiredAcks     string        `yaml:"required_acks"`
	TLS              TLSConfig     `yaml:"tls"`
}

// TLSConfig secures the producer connection. The system CA bundle is always
// trusted; CAFiles are added to it. CertFile and KeyFile enable mutual TLS.
type TLSConfig struct {
	Enabled            bool     `yaml:"enabled"`
	CAFiles            []string `yaml:"ca_files"`
	CertFile           string   `yaml:"cert_file"`
	KeyFile            string   `yaml:"key_file"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	MinVersion         string   `yaml:"min_version"`
}

// StreamConfig describes the JetStream stream the topic belongs to
type StreamConfig struct {
	Name     string   `yaml:"name"`
	Create   bool     `yaml:"create"`
	Subjects []string `yaml:"subjects"`
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file overrides a field
func Default() *Config {
	return &Config{
		Omprog: OmprogConfig{
			ConfirmMessages:       true,
			ParseTimestamp:        false,
			TimestampField:        "logtime",
			BeginTransactionMark:  "BEGIN TRANSACTION\n",
			CommitTransactionMark: "COMMIT TRANSACTION\n",
		},
		Reconcile: ReconcileConfig{
			PollInterval: 100 * time.Millisecond,
			PollAttempts: 100,
		},
		Producer: ProducerConfig{
			Type:             ProducerJetStream,
			Topic:            "logs.rsyslog",
			URLs:             []string{"nats://localhost:4222"},
			Brokers:          []string{"localhost:9092"},
			ClientName:       "omprog-bridge",
			MaxPending:       4096,
			ConnectTimeout:   10 * time.Second,
			CircuitThreshold: 5,
			Linger:           5 * time.Millisecond,
			RequiredAcks:     AcksAll,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Config", "Validate", "check fields")
	}
	return nil
}

func (c *Config) validate() error {
	o := c.Omprog
	if o.BeginTransactionMark == "" || o.CommitTransactionMark == "" {
		return stderrors.New("omprog transaction marks must not be empty")
	}
	if o.BeginTransactionMark == o.CommitTransactionMark {
		return stderrors.New("omprog begin and commit transaction marks must differ")
	}
	if o.ParseTimestamp && o.TimestampField == "" {
		return stderrors.New("omprog.timestamp_field is required when parse_timestamp is enabled")
	}

	if c.Reconcile.PollInterval <= 0 {
		return fmt.Errorf("reconcile.poll_interval must be positive, got %v", c.Reconcile.PollInterval)
	}
	if c.Reconcile.PollAttempts < 1 {
		return fmt.Errorf("reconcile.poll_attempts must be at least 1, got %d", c.Reconcile.PollAttempts)
	}

	if err := c.Producer.validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/': %q", c.Metrics.Path)
		}
	}

	return nil
}

func (p *ProducerConfig) validate() error {
	if p.Topic == "" {
		return stderrors.New("producer.topic is required")
	}
	if p.MaxPending < 1 {
		return fmt.Errorf("producer.max_pending must be at least 1, got %d", p.MaxPending)
	}
	if p.ConnectTimeout <= 0 {
		return fmt.Errorf("producer.connect_timeout must be positive, got %v", p.ConnectTimeout)
	}
	if p.CircuitThreshold < 1 {
		return fmt.Errorf("producer.circuit_threshold must be at least 1, got %d", p.CircuitThreshold)
	}
	if p.Linger < 0 {
		return fmt.Errorf("producer.linger must not be negative, got %v", p.Linger)
	}
	if (p.Username == "") != (p.Password == "") {
		return stderrors.New("producer.username and producer.password must be set together")
	}

	if p.TLS.Enabled {
		if (p.TLS.CertFile == "") != (p.TLS.KeyFile == "") {
			return stderrors.New("producer.tls.cert_file and producer.tls.key_file must be set together")
		}
		switch p.TLS.MinVersion {
		case "", "1.2", "1.3":
		default:
			return fmt.Errorf("producer.tls.min_version must be 1.2 or 1.3: %q", p.TLS.MinVersion)
		}
	}

	switch p.Type {
	case ProducerJetStream:
		if len(p.URLs) == 0 {
			return stderrors.New("producer.urls is required for the jetstream producer")
		}
		if strings.ContainsAny(p.Topic, " \t\r\n*>") {
			return fmt.Errorf("producer.topic %q is not a valid NATS publish subject", p.Topic)
		}
		if p.Stream.Create && p.Stream.Name == "" {
			return stderrors.New("producer.stream.name is required when producer.stream.create is set")
		}
	case ProducerKafka, ProducerSarama, ProducerFranz:
		if len(p.Brokers) == 0 {
			return fmt.Errorf("producer.brokers is required for the %s producer", p.Type)
		}
		switch p.RequiredAcks {
		case AcksAll, AcksLeader, AcksNone:
		default:
			return fmt.Errorf("producer.required_acks must be one of all, leader, none: %q", p.RequiredAcks)
		}
	default:
		return fmt.Errorf("unknown producer.type %q (want jetstream, kafka, sarama or franz)", p.Type)
	}

	return nil
}

// StreamSubjects returns the subjects for stream creation, defaulting to the topic
func (p *ProducerConfig) StreamSubjects() []string {
	if len(p.Stream.Subjects) > 0 {
		return p.Stream.Subjects
	}
	return []string{p.Topic}
}

// Redacted returns a copy with credentials masked, suitable for logging
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Producer.URLs = append([]string(nil), c.Producer.URLs...)
	cp.Producer.Brokers = append([]string(nil), c.Producer.Brokers...)
	cp.Producer.Stream.Subjects = append([]string(nil), c.Producer.Stream.Subjects...)
	cp.Producer.TLS.CAFiles = append([]string(nil), c.Producer.TLS.CAFiles...)
	if cp.Producer.Password != "" {
		cp.Producer.Password = "***"
	}
	if cp.Producer.Token != "" {
		cp.Producer.Token = "***"
	}
	return &cp
}

// String returns a YAML representation of the config with credentials masked
func (c *Config) String() string {
	data, _ := yaml.Marshal(c.Redacted())
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies defaults, every layer in order, then environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		data, err := safeReadFile(path)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil, errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path),
					"Loader", "Load", "read layer")
			}
			return nil, errors.WrapInvalid(err, "Loader", "Load", "read layer "+path)
		}
		if err := decodeInto(cfg, data); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"Loader", "Load", "decode "+path)
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// decodeInto decodes YAML over cfg. Fields absent from data keep their current
// value; unknown keys are rejected.
func decodeInto(cfg *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val, ok := l.env("PRODUCER_TYPE"); ok {
		cfg.Producer.Type = val
	}
	if val, ok := l.env("PRODUCER_TOPIC"); ok {
		cfg.Producer.Topic = val
	}
	if val, ok := l.env("NATS_URLS"); ok {
		cfg.Producer.URLs = splitList(val)
	}
	if val, ok := l.env("KAFKA_BROKERS"); ok {
		cfg.Producer.Brokers = splitList(val)
	}
	if val, ok := l.env("USERNAME"); ok {
		cfg.Producer.Username = val
	}
	if val, ok := l.env("PASSWORD"); ok {
		cfg.Producer.Password = val
	}
	if val, ok := l.env("TOKEN"); ok {
		cfg.Producer.Token = val
	}
}

// env returns a non-empty override; values failing validateEnvVar are ignored
func (l *Loader) env(name string) (string, bool) {
	key := l.envPrefix + "_" + name
	val, ok := l.lookupEnv(key)
	if !ok || val == "" || validateEnvVar(key, val) != nil {
		return "", false
	}
	return val, true
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
