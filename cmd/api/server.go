package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/interfaces/scheduler"
	"github.com/Shawndas06/bank-aggregator/internal/shared/config"
)

// NewServer builds the HTTP server. Write timeout covers the slowest
// fan-out: one provider call is bounded by the HTTP client timeout.
func NewServer(handler http.Handler, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.App.Host, cfg.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.HTTPClient.Timeout*2 + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer serves in the background. A listen failure is sent on the
// returned channel.
func StartServer(srv *http.Server, logger *zap.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// GracefulShutdown stops the scheduler first so no refresh starts while the
// server drains, then shuts the server down.
func GracefulShutdown(srv *http.Server, sched *scheduler.Scheduler, timeout time.Duration, logger *zap.Logger) {
	logger.Info("Server shutting down...")

	if sched != nil {
		sched.Shutdown(timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	logger.Info("Server stopped")
}
