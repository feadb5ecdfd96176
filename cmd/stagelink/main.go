// Package main implements the entry point for the StageLink control
// panel runtime. StageLink routes events from input modules (clocks,
// sensors, network frames) to output modules (lights, sound, files,
// projection surfaces) according to operator-defined interactions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/c360/stagelink/config"
	"github.com/c360/stagelink/interaction"
	"github.com/c360/stagelink/metric"
	"github.com/c360/stagelink/module"
	"github.com/c360/stagelink/moduleregistry"
	"github.com/c360/stagelink/natsclient"
	"github.com/c360/stagelink/panel"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "stagelink"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting StageLink (installation control panel)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	loader := config.NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if cliCfg.ShutdownTimeout > 0 {
		cfg.Panel.ShutdownTimeout = cliCfg.ShutdownTimeout
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, kvStore, err := setupNATS(ctx, cfg, logger, metricsRegistry)
	if err != nil {
		// NATS is an optional backbone; the panel still runs standalone
		slog.Warn("NATS unavailable, running standalone", "error", err)
	}
	if natsClient != nil {
		defer func() { _ = natsClient.Close(context.Background()) }()
	}

	registry := module.NewRegistry()
	if err := moduleregistry.Register(registry); err != nil {
		return fmt.Errorf("module registration: %w", err)
	}

	deps := module.Deps{
		PanelID: cfg.Panel.ID,
		Metrics: metricsRegistry,
		Logger:  logger,
	}
	if natsClient != nil && cfg.Logging.StreamEnabled {
		deps.NATS = natsClient.GetConnection()
	}

	store := interaction.NewStore(cfg.Interactions.File, kvStore, logger)

	svc := panel.New(cfg, registry, deps, store, metricsRegistry)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("panel startup: %w", err)
	}

	return svc.Run(ctx)
}

// setupNATS connects to NATS and ensures the interaction KV bucket.
// Both return values are nil when NATS is disabled.
func setupNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *metric.MetricsRegistry) (*natsclient.Client, *natsclient.KVStore, error) {
	if !cfg.NATS.Enabled {
		return nil, nil, nil
	}

	client, err := natsclient.New(
		strings.Join(cfg.NATS.URLs, ","),
		natsclient.WithName(appName+"-"+cfg.Panel.ID),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metrics),
	)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}

	var kvStore *natsclient.KVStore
	if cfg.Interactions.KVBucket != "" {
		bucket, err := client.EnsureKeyValue(ctx, cfg.Interactions.KVBucket)
		if err != nil {
			logger.Warn("KV bucket unavailable, file persistence only", "error", err)
		} else {
			kvStore = client.NewKVStore(bucket)
		}
	}
	return client, kvStore, nil
}
