package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Shawndas06/bank-aggregator/internal/shared/config"
	"github.com/Shawndas06/bank-aggregator/internal/shared/logger"
	"github.com/Shawndas06/bank-aggregator/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewForEnvironment(cfg.App.Env, logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.App.Name))

	// Money is rendered as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.App.Env,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		}, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Warn("Telemetry shutdown failed", zap.Error(err))
			}
		}()
		if cfg.Telemetry.OTLPEndpoint != "" {
			log = telemetry.BridgeLogs(log, cfg.Telemetry.ServiceName, zapcore.InfoLevel)
		}
	}

	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	srv := NewServer(SetupRoutes(deps, cfg, log), cfg)
	errCh := StartServer(srv, log)

	if deps.Scheduler != nil {
		deps.Scheduler.Start()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			GracefulShutdown(srv, deps.Scheduler, shutdownTimeout, log)
			return fmt.Errorf("http server: %w", err)
		}
	}

	GracefulShutdown(srv, deps.Scheduler, shutdownTimeout, log)
	return nil
}
