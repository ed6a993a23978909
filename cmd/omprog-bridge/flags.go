package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"time"
)

const defaultConfigPath = "omprog-bridge.yaml"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool

	// configSet is true when the path came from a flag or the environment
	configSet bool
	usage     func()
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Define flags with environment variable fallback
	configPath := getEnv("OMPROG_BRIDGE_CONFIG", defaultConfigPath)
	fs.StringVar(&cfg.ConfigPath, "config", configPath,
		"Path to YAML configuration file (env: OMPROG_BRIDGE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", configPath,
		"Path to YAML configuration file (env: OMPROG_BRIDGE_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("OMPROG_BRIDGE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: OMPROG_BRIDGE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("OMPROG_BRIDGE_LOG_FORMAT", "json"),
		"Log format: json, text (env: OMPROG_BRIDGE_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("OMPROG_BRIDGE_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Time allowed to flush the producer on exit (env: OMPROG_BRIDGE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration, print it and exit")

	fs.Usage = func() {
		printDetailedHelp(fs, stderr)
	}

	cfg.usage = fs.Usage

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	_, fromEnv := os.LookupEnv("OMPROG_BRIDGE_CONFIG")
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" || f.Name == "c" {
			cfg.configSet = true
		}
	})
	cfg.configSet = cfg.configSet || fromEnv

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - rsyslog omprog to message queue bridge

Usage: %s [options]

Reads log lines from stdin and acknowledges each one on stdout.

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # rsyslog action
  action(type="omprog" binary="/usr/local/bin/%s -c /etc/omprog-bridge.yaml"
         confirmMessages="on" useTransactions="on")

  # Publish to Kafka instead of JetStream
  OMPROG_BRIDGE_PRODUCER_TYPE=kafka OMPROG_BRIDGE_KAFKA_BROKERS=kafka:9092 %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
