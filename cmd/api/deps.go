package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/app"
	httphandlers "github.com/Shawndas06/bank-aggregator/internal/interfaces/http"
	"github.com/Shawndas06/bank-aggregator/internal/interfaces/scheduler"
	"github.com/Shawndas06/bank-aggregator/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Core *app.Core

	// Handlers
	AccountHandler   *httphandlers.AccountHandler
	AnalyticsHandler *httphandlers.AnalyticsHandler

	// Scheduler is nil when disabled.
	Scheduler *scheduler.Scheduler
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Core:             core,
		AccountHandler:   httphandlers.NewAccountHandler(core.Aggregation, core.Accounts, core.Registry),
		AnalyticsHandler: httphandlers.NewAnalyticsHandler(core.Analytics, core.Registry),
	}

	if cfg.Scheduler.Enabled {
		deps.Scheduler, err = scheduler.New(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			WorkerCount:   cfg.Scheduler.WorkerCount,
			JobDelay:      cfg.Scheduler.JobDelay,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.RefreshJobs(core.Accounts, core.Aggregation, logger),
			Logger:        logger,
		})
		if err != nil {
			_ = core.Close()
			return nil, err
		}
	} else {
		logger.Info("Scheduler is disabled")
	}

	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Core != nil {
		_ = d.Core.Close()
	}
}
