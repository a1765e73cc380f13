package main

import (
	"net/http"

	"go.uber.org/zap"

	httphandlers "github.com/Shawndas06/bank-aggregator/internal/interfaces/http"
	"github.com/Shawndas06/bank-aggregator/internal/shared/config"
	"github.com/Shawndas06/bank-aggregator/internal/shared/middleware"
	"github.com/Shawndas06/bank-aggregator/internal/shared/telemetry"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", httphandlers.HandleHealth)
	if cfg.Telemetry.Enabled {
		mux.Handle("GET /metrics", telemetry.MetricsHandler())
	}

	// Identity comes from the upstream auth gateway headers.
	auth := middleware.RequireIdentity
	accounts := deps.AccountHandler
	analytics := deps.AnalyticsHandler

	mux.Handle("GET /api/accounts", auth(http.HandlerFunc(accounts.HandleListAccounts)))
	mux.Handle("POST /api/accounts", auth(http.HandlerFunc(accounts.HandleLinkAccount)))
	mux.Handle("GET /api/accounts/balances/all", auth(http.HandlerFunc(accounts.HandleAllBalances)))
	mux.Handle("GET /api/accounts/transactions/all", auth(http.HandlerFunc(accounts.HandleAllTransactions)))
	mux.Handle("GET /api/accounts/{id}", auth(http.HandlerFunc(accounts.HandleGetAccount)))
	mux.Handle("GET /api/accounts/{id}/balances", auth(http.HandlerFunc(accounts.HandleGetBalance)))
	mux.Handle("GET /api/accounts/{id}/transactions", auth(http.HandlerFunc(accounts.HandleGetTransactions)))
	mux.Handle("POST /api/accounts/{id}/sync", auth(http.HandlerFunc(accounts.HandleSync)))
	mux.Handle("PUT /api/accounts/{id}/rename", auth(http.HandlerFunc(accounts.HandleRename)))

	mux.Handle("GET /api/analytics/overview", auth(http.HandlerFunc(analytics.HandleOverview)))
	mux.Handle("GET /api/analytics/categories", auth(http.HandlerFunc(analytics.HandleCategories)))

	// Each wrapper runs before the one above it.
	handler := middleware.CORS(cfg.App.AllowedHosts)(mux)
	handler = middleware.Recover(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.NoStore(handler)
	handler = middleware.Logging(logger)(handler)
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}

	if cfg.App.ForceHTTPS {
		handler = middleware.RequireHTTPS(cfg.App.AllowedHosts)(middleware.HSTS(handler))
		logger.Info("HTTPS enforcement enabled (redirect + HSTS)")
	}

	return handler
}
