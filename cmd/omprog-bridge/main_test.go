package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/errors"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, defaultConfigPath, cfg.ConfigPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.configSet)
	assert.NoError(t, validateFlags(cfg))
}

func TestParseFlags_ShortAndLongForms(t *testing.T) {
	cfg, err := parseFlags([]string{"-c", "/etc/bridge.yaml", "--log-format=text", "-v"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "/etc/bridge.yaml", cfg.ConfigPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.ShowVersion)
	assert.True(t, cfg.configSet)
}

func TestParseFlags_EnvFallback(t *testing.T) {
	t.Setenv("OMPROG_BRIDGE_CONFIG", "/srv/bridge.yaml")
	t.Setenv("OMPROG_BRIDGE_LOG_LEVEL", "debug")
	t.Setenv("OMPROG_BRIDGE_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "/srv/bridge.yaml", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.configSet)
}

func TestParseFlags_Unknown(t *testing.T) {
	_, err := parseFlags([]string{"--no-such-flag"}, io.Discard)
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	valid := func() *CLIConfig {
		return &CLIConfig{ConfigPath: "x.yaml", LogLevel: "info", LogFormat: "json", ShutdownTimeout: time.Second}
	}

	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr string
	}{
		{"valid", func(*CLIConfig) {}, ""},
		{"bad level", func(c *CLIConfig) { c.LogLevel = "trace" }, "invalid log level"},
		{"bad format", func(c *CLIConfig) { c.LogFormat = "xml" }, "invalid log format"},
		{"empty config path", func(c *CLIConfig) { c.ConfigPath = "" }, "config path"},
		{"zero shutdown timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"version skips checks", func(c *CLIConfig) { c.LogLevel = "bogus"; c.ShowVersion = true }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateFlags(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, Version, entry["version"])
	assert.Equal(t, "value", entry["key"])
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	setupLogger(&buf, "debug", "text").Debug("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
	assert.Contains(t, buf.String(), "source=")
}

func TestLoadConfig_MissingDefaultUsesDefaults(t *testing.T) {
	t.Setenv("OMPROG_BRIDGE_PRODUCER_TOPIC", "from.env")

	cliCfg := &CLIConfig{ConfigPath: filepath.Join(t.TempDir(), defaultConfigPath)}
	cfg, err := loadConfig(cliCfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, config.Default().Producer.Type, cfg.Producer.Type)
	assert.Equal(t, "from.env", cfg.Producer.Topic)
}

func TestLoadConfig_MissingExplicitPathFails(t *testing.T) {
	cliCfg := &CLIConfig{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"), configSet: true}
	_, err := loadConfig(cliCfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run([]string{"--version"}, nil, &stdout, io.Discard))
	assert.Equal(t, appName+" version "+Version+"\n", stdout.String())
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-h"}, nil, &stdout, &stderr))
	assert.Empty(t, stdout.String(), "help never goes to the acknowledgement channel")
	assert.Contains(t, stderr.String(), "-config")
}

func TestRun_ValidatePrintsRedactedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
producer:
  type: kafka
  topic: audit
  brokers: ["kafka-1:9092"]
  username: svc
  password: hunter2
`), 0o600))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-c", path, "--validate"}, nil, &stdout, &stderr))

	assert.Contains(t, stdout.String(), "audit")
	assert.NotContains(t, stdout.String(), "hunter2")
	assert.Contains(t, stderr.String(), "Configuration is valid")
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("producer:\n  type: carrier-pigeon\n"), 0o600))

	err := run([]string{"-c", path}, nil, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
