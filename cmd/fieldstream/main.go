// Package main implements the entry point for the fieldstream telemetry
// pipeline: NATS and HTTP ingress, validation and enrichment, windowed
// aggregation, anomaly detection, and routed delivery with a retry/DLQ
// failure path.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/fieldstream/config"
	"github.com/c360/fieldstream/service"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "fieldstream"
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
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := setupLogger(cfg.Service.LogLevel, cfg.Service.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("configuration is valid", "path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("starting fieldstream",
		"config", cliCfg.ConfigPath,
		"nats", cfg.NATS.URL,
		"http", cfg.HTTP.Addr)

	ctx := context.Background()
	app, err := service.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assemble application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		_ = app.Stop(ctx, cliCfg.ShutdownTimeout)
		return fmt.Errorf("start application: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	if err := app.Stop(ctx, cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("stop application: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// loadConfiguration reads the config file (defaults when no path is
// given) and applies CLI overrides.
func loadConfiguration(cli *CLIConfig) (*config.Config, error) {
	var cfg *config.Config
	if cli.ConfigPath == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.LoadFile(cli.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cli.LogLevel != "" {
		cfg.Service.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Service.LogFormat = cli.LogFormat
	}
	return cfg, nil
}
