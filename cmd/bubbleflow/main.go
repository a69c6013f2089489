// Package main implements the entry point for the BubbleFlow backend:
// the HTTP service that stores flow definitions, tracks live execution
// state, and gates execution behind the readiness checks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bubblelab/bubbleflow/config"
	"github.com/bubblelab/bubbleflow/flowstore"
	"github.com/bubblelab/bubbleflow/metric"
	"github.com/bubblelab/bubbleflow/natsclient"
	"github.com/bubblelab/bubbleflow/runstate"
	"github.com/bubblelab/bubbleflow/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "bubbleflow"
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

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting BubbleFlow backend",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"listen_addr", cfg.ListenAddr())

	ctx := context.Background()

	natsClient, metricsRegistry, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = natsClient.Close(ctx) }()

	flowStore, err := flowstore.NewStore(natsClient, flowstore.WithBucket(cfg.NATS.FlowBucket))
	if err != nil {
		return fmt.Errorf("create flow store: %w", err)
	}

	flowService, err := service.NewFlowService(&service.Dependencies{
		Config:          cfg,
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		FlowStore:       flowStore,
		RunStates:       runstate.NewStore(),
	})
	if err != nil {
		return fmt.Errorf("create flow service: %w", err)
	}

	if err := flowService.Start(ctx); err != nil {
		return fmt.Errorf("start flow service: %w", err)
	}

	mux := http.NewServeMux()
	flowService.RegisterHTTPHandlers("/api/v1/", mux)

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
		logger.Info("Metrics server starting", "addr", metricsServer.Address())
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return runWithSignalHandling(ctx, cfg, server, flowService, metricsServer, cliCfg.ShutdownTimeout)
}

// loadConfiguration loads the config file (or defaults) and applies CLI
// log overrides.
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg := config.Default()
	if cliCfg.ConfigPath != "" {
		loaded, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupInfrastructure connects NATS and creates the metrics registry.
func setupInfrastructure(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*natsclient.Client, *metric.MetricsRegistry, error) {
	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithDisconnectHandler(func(err error) {
			logger.Warn("NATS disconnected", "error", err)
			metricsRegistry.CoreMetrics().RecordNATSStatus(false)
		}),
		natsclient.WithReconnectHandler(func() {
			logger.Info("NATS reconnected")
			metricsRegistry.CoreMetrics().RecordNATSStatus(true)
			metricsRegistry.CoreMetrics().RecordNATSReconnect()
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := natsClient.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := natsClient.WaitForConnection(waitCtx); err != nil {
		_ = natsClient.Close(ctx)
		return nil, nil, fmt.Errorf("wait for NATS connection: %w", err)
	}

	metricsRegistry.CoreMetrics().RecordNATSStatus(true)
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	return natsClient, metricsRegistry, nil
}

// runWithSignalHandling serves HTTP until a signal arrives, then shuts
// everything down gracefully.
func runWithSignalHandling(
	ctx context.Context,
	cfg *config.Config,
	server *http.Server,
	flowService *service.FlowService,
	metricsServer *metric.Server,
	shutdownTimeout time.Duration,
) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			slog.Error("Metrics server shutdown failed", "error", err)
		}
	}
	if err := flowService.Stop(cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("Flow service shutdown failed", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
