package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/app"
	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/aggregation"
	"github.com/Shawndas06/bank-aggregator/internal/domain/analytics"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/shared/config"
	"github.com/Shawndas06/bank-aggregator/internal/shared/logger"
)

// Syncer refreshes and drops cached provider data.
type Syncer interface {
	LinkedAccounts(ctx context.Context, userID int64, providerIDs []provider.ID) ([]*account.LinkedAccount, error)
	Sync(ctx context.Context, la *account.LinkedAccount) (aggregation.SyncResult, error)
	Invalidate(ctx context.Context, la *account.LinkedAccount) error
}

// Accounts is the subset of the linked account store the CLI touches.
type Accounts interface {
	UserIDs(ctx context.Context) ([]int64, error)
	Get(ctx context.Context, id string, userID int64) (*account.LinkedAccount, error)
	Unlink(ctx context.Context, id string, userID int64) error
}

// Analytics computes the dashboard views.
type Analytics interface {
	GetOverview(ctx context.Context, userID int64, providerIDs []provider.ID) (analytics.Overview, error)
	GetCategoryBreakdown(ctx context.Context, userID int64, providerIDs []provider.ID, start, end *time.Time) ([]analytics.CategoryTotal, error)
}

// Backend is what every command runs against.
type Backend struct {
	Registry  *provider.Registry
	Accounts  Accounts
	Syncer    Syncer
	Analytics Analytics
	Logger    *zap.Logger
	Close     func() error
}

// Connector opens a Backend for one command invocation.
type Connector func(ctx context.Context) (*Backend, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Timeout time.Duration
	Pretty  bool
	connect Connector
}

// NewRootCommand creates the admin command tree.
func NewRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Bank aggregator admin CLI",
		Long:          "Maintenance commands for linked accounts, cached provider data and analytics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Timeout <= 0 {
				return fmt.Errorf("invalid timeout %s: must be positive", opts.Timeout)
			}
			return nil
		},
	}

	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Minute, "timeout for the whole operation")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "indent JSON output")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewUnlinkCommand(opts))
	cmd.AddCommand(NewOverviewCommand(opts))
	cmd.AddCommand(NewBreakdownCommand(opts))
	cmd.AddCommand(NewProvidersCommand(opts))

	return cmd
}

// withBackend opens the backend under the command timeout and releases it
// when fn returns.
func (o *RootOptions) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *Backend) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()

	b, err := o.connect(ctx)
	if err != nil {
		return err
	}
	if b.Close != nil {
		defer func() { _ = b.Close() }()
	}
	if b.Logger == nil {
		b.Logger = zap.NewNop()
	}
	return fn(ctx, b)
}

func (o *RootOptions) writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if o.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// connectCore builds the real backend from the environment.
func connectCore(ctx context.Context) (*Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewForEnvironment(cfg.App.Env, logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("service", cfg.App.Name+"-admin"))

	decimal.MarshalJSONWithoutQuotes = true

	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Registry:  core.Registry,
		Accounts:  core.Accounts,
		Syncer:    core.Aggregation,
		Analytics: core.Analytics,
		Logger:    log,
		Close: func() error {
			_ = log.Sync()
			return core.Close()
		},
	}, nil
}
