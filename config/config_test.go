package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/omprogbridge/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Omprog.ConfirmMessages)
	assert.False(t, cfg.Omprog.ParseTimestamp)
	assert.Equal(t, "logtime", cfg.Omprog.TimestampField)
	assert.Equal(t, 100*time.Millisecond, cfg.Reconcile.PollInterval)
	assert.Equal(t, 100, cfg.Reconcile.PollAttempts)
	assert.Equal(t, 10*time.Second, cfg.Reconcile.Timeout())
	assert.Equal(t, ProducerJetStream, cfg.Producer.Type)
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
omprog:
  confirm_messages: false
  begin_transaction_mark: "BEGIN\n"
  commit_transaction_mark: "COMMIT\n"
reconcile:
  poll_interval: 250ms
producer:
  topic: logs.edge
  urls: ["nats://a:4222"]
  connect_timeout: 3s
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.False(t, cfg.Omprog.ConfirmMessages)
	assert.Equal(t, "BEGIN\n", cfg.Omprog.BeginTransactionMark)
	assert.Equal(t, "COMMIT\n", cfg.Omprog.CommitTransactionMark)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.PollInterval)
	assert.Equal(t, 100, cfg.Reconcile.PollAttempts, "absent field keeps default")
	assert.Equal(t, "logs.edge", cfg.Producer.Topic)
	assert.Equal(t, []string{"nats://a:4222"}, cfg.Producer.URLs)
	assert.Equal(t, 3*time.Second, cfg.Producer.ConnectTimeout)
	assert.Equal(t, int32(5), cfg.Producer.CircuitThreshold)
	assert.Equal(t, "omprog-bridge", cfg.Producer.ClientName)
}

func TestLoader_Layers(t *testing.T) {
	loader := NewLoader()
	loader.AddLayer("testdata/base.yaml")
	loader.AddLayer("testdata/kafka.yaml")

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.True(t, cfg.Omprog.ParseTimestamp, "from base layer")
	assert.Equal(t, ProducerFranz, cfg.Producer.Type, "overridden by second layer")
	assert.Equal(t, []string{"nats://nats-1:4222", "nats://nats-2:4222"}, cfg.Producer.URLs)
	assert.Equal(t, AcksLeader, cfg.Producer.RequiredAcks)
	assert.Equal(t, 50*time.Millisecond, cfg.Reconcile.PollInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoader_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
producer:
  topik: typo
`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_BadDuration(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  poll_interval: soon
`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)
}

func TestLoader_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML config files allowed")
}

func TestLoader_ValidationCanBeDisabled(t *testing.T) {
	path := writeConfig(t, `
producer:
  type: pulsar
`)

	_, err := NewLoader().LoadFile(path)
	require.Error(t, err)

	loader := NewLoader()
	loader.EnableValidation(false)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pulsar", cfg.Producer.Type)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("OMPROG_BRIDGE_PRODUCER_TYPE", "sarama")
	t.Setenv("OMPROG_BRIDGE_PRODUCER_TOPIC", "audit")
	t.Setenv("OMPROG_BRIDGE_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("OMPROG_BRIDGE_NATS_URLS", "nats://x:4222")
	t.Setenv("OMPROG_BRIDGE_USERNAME", "bridge")
	t.Setenv("OMPROG_BRIDGE_PASSWORD", "s3cret")
	t.Setenv("OMPROG_BRIDGE_TOKEN", "")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ProducerSarama, cfg.Producer.Type)
	assert.Equal(t, "audit", cfg.Producer.Topic)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Producer.Brokers)
	assert.Equal(t, []string{"nats://x:4222"}, cfg.Producer.URLs)
	assert.Equal(t, "bridge", cfg.Producer.Username)
	assert.Equal(t, "s3cret", cfg.Producer.Password)
	assert.Empty(t, cfg.Producer.Token, "empty override is ignored")
}

func TestLoader_EnvOverrideRejectsNullByte(t *testing.T) {
	loader := NewLoader()
	loader.lookupEnv = func(key string) (string, bool) {
		if key == "OMPROG_BRIDGE_PRODUCER_TOPIC" {
			return "bad\x00topic", true
		}
		return "", false
	}

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "logs.rsyslog", cfg.Producer.Topic)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty begin mark", func(c *Config) { c.Omprog.BeginTransactionMark = "" }, "transaction marks"},
		{"same marks", func(c *Config) { c.Omprog.CommitTransactionMark = c.Omprog.BeginTransactionMark }, "must differ"},
		{"timestamp field required", func(c *Config) {
			c.Omprog.ParseTimestamp = true
			c.Omprog.TimestampField = ""
		}, "timestamp_field"},
		{"zero poll interval", func(c *Config) { c.Reconcile.PollInterval = 0 }, "poll_interval"},
		{"zero poll attempts", func(c *Config) { c.Reconcile.PollAttempts = 0 }, "poll_attempts"},
		{"empty topic", func(c *Config) { c.Producer.Topic = "" }, "producer.topic is required"},
		{"wildcard subject", func(c *Config) { c.Producer.Topic = "logs.>" }, "not a valid NATS publish subject"},
		{"no urls", func(c *Config) { c.Producer.URLs = nil }, "producer.urls"},
		{"stream name required", func(c *Config) { c.Producer.Stream.Create = true }, "stream.name"},
		{"unknown type", func(c *Config) { c.Producer.Type = "pulsar" }, "unknown producer.type"},
		{"kafka without brokers", func(c *Config) {
			c.Producer.Type = ProducerKafka
			c.Producer.Brokers = nil
		}, "producer.brokers"},
		{"kafka bad acks", func(c *Config) {
			c.Producer.Type = ProducerSarama
			c.Producer.RequiredAcks = "most"
		}, "required_acks"},
		{"kafka topic with wildcard is fine", func(c *Config) {
			c.Producer.Type = ProducerFranz
			c.Producer.Topic = "logs>"
		}, ""},
		{"password without username", func(c *Config) { c.Producer.Password = "x" }, "set together"},
		{"max pending", func(c *Config) { c.Producer.MaxPending = 0 }, "max_pending"},
		{"connect timeout", func(c *Config) { c.Producer.ConnectTimeout = 0 }, "connect_timeout"},
		{"circuit threshold", func(c *Config) { c.Producer.CircuitThreshold = 0 }, "circuit_threshold"},
		{"negative linger", func(c *Config) { c.Producer.Linger = -time.Millisecond }, "linger"},
		{"metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}, "metrics.port"},
		{"metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
		{"metrics disabled ignores port", func(c *Config) { c.Metrics.Port = -1 }, ""},
		{"tls cert without key", func(c *Config) {
			c.Producer.TLS.Enabled = true
			c.Producer.TLS.CertFile = "client.pem"
		}, "tls.cert_file"},
		{"tls min version", func(c *Config) {
			c.Producer.TLS.Enabled = true
			c.Producer.TLS.MinVersion = "1.1"
		}, "tls.min_version"},
		{"tls disabled ignores fields", func(c *Config) { c.Producer.TLS.MinVersion = "1.1" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestProducerConfig_StreamSubjects(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"logs.rsyslog"}, cfg.Producer.StreamSubjects())

	cfg.Producer.Stream.Subjects = []string{"logs.>"}
	assert.Equal(t, []string{"logs.>"}, cfg.Producer.StreamSubjects())
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Producer.Username = "bridge"
	cfg.Producer.Password = "hunter2"
	cfg.Producer.Token = "tok-123"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "tok-123")
	assert.Contains(t, out, "bridge")
	assert.Contains(t, out, "poll_interval: 100ms")
	assert.True(t, strings.Contains(out, "***"))

	assert.Equal(t, "hunter2", cfg.Producer.Password, "original untouched")
}

func TestValidateConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative yaml", "bridge.yaml", false},
		{"relative yml", "conf/bridge.yml", false},
		{"absolute", "/etc/omprog-bridge/bridge.yaml", false},
		{"empty", "", true},
		{"escapes cwd", "../bridge.yaml", true},
		{"json", "bridge.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
