// Package main implements the omprog-bridge binary. rsyslog starts it through the
// omprog module; it reads log lines on stdin, publishes them to a message queue and
// acknowledges each line on stdout.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/c360/omprogbridge/bridge"
	"github.com/c360/omprogbridge/componentregistry"
	"github.com/c360/omprogbridge/config"
	"github.com/c360/omprogbridge/metric"
	"github.com/c360/omprogbridge/producer"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "omprog-bridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	// A missing .env file is not an error
	_ = godotenv.Load()

	cliCfg, logger, shouldExit, err := initializeCLI(args, stdout, stderr)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		_, _ = fmt.Fprintln(stdout, cfg.String())
		logger.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()
	stopMetrics := startMetricsServer(cfg.Metrics, metricsRegistry, logger)
	defer stopMetrics(cliCfg.ShutdownTimeout)

	p, err := createProducer(ctx, cfg, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer closeProducer(p, cliCfg.ShutdownTimeout, logger)

	session, err := bridge.NewSession(bridge.Options{
		Omprog:    cfg.Omprog,
		Reconcile: cfg.Reconcile,
		Producer:  p,
		Input:     stdin,
		Output:    stdout,
		Logger:    logger.With("component", "session"),
		Metrics:   metricsRegistry.CoreMetrics(),
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if err := session.Run(ctx); err != nil {
		if stderrors.Is(err, context.Canceled) {
			logger.Info("Shutdown signal received")
			return nil
		}
		return fmt.Errorf("run session: %w", err)
	}
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string, stdout, stderr io.Writer) (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		cliCfg.usage()
		return nil, nil, true, nil
	}

	logger := setupLogger(stderr, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting omprog-bridge",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadConfig reads the config file when present. Only the default path may be
// missing; defaults plus environment overrides are used then.
func loadConfig(cliCfg *CLIConfig, logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader()

	if _, err := os.Stat(cliCfg.ConfigPath); err == nil || cliCfg.configSet {
		loader.AddLayer(cliCfg.ConfigPath)
	} else {
		logger.Info("No config file found, using defaults", "config_path", cliCfg.ConfigPath)
	}

	return loader.Load()
}

// createProducer builds the configured backend, connecting with retries
func createProducer(
	ctx context.Context,
	cfg *config.Config,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (producer.Producer, error) {
	registry, err := componentregistry.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("register producers: %w", err)
	}

	logger.Info("Creating producer",
		"type", cfg.Producer.Type,
		"topic", cfg.Producer.Topic)

	p, err := registry.New(ctx, cfg.Producer, producer.Dependencies{
		Logger:  logger,
		Metrics: metricsRegistry,
	})
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return p, nil
}

func closeProducer(p producer.Producer, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := p.Close(ctx); err != nil {
		logger.Error("Producer close failed", "error", err)
		return
	}
	logger.Info("Producer closed")
}

// startMetricsServer serves Prometheus metrics in the background when enabled
// and returns the matching shutdown function.
func startMetricsServer(
	cfg config.MetricsConfig,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) func(time.Duration) {
	if !cfg.Enabled {
		return func(time.Duration) {}
	}

	server := metric.NewServer(cfg.Port, cfg.Path, registry)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	logger.Info("Metrics server started", "address", server.Address())

	return func(timeout time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
}
