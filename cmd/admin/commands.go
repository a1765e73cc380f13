package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

const dateLayout = "2006-01-02"

// SyncEntry reports the refresh of one linked account.
type SyncEntry struct {
	UserID          int64     `json:"userId"`
	LinkedAccountID string    `json:"linkedAccountId"`
	Provider        string    `json:"provider"`
	Transactions    int       `json:"transactionsCount,omitempty"`
	SyncedAt        time.Time `json:"syncedAt,omitzero"`
	Error           string    `json:"error,omitempty"`
}

// SyncReport is the output of the sync command.
type SyncReport struct {
	Users    int         `json:"users"`
	Accounts int         `json:"accounts"`
	Failed   int         `json:"failed"`
	Entries  []SyncEntry `json:"entries"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userIDs []int64
		all     bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Re-fetch provider data for linked accounts into the cache",
		Long: `Force a refresh of every linked account of the given users, bypassing
the cache. Use --all to refresh every user that has a linked account.`,
		Example: `  admin sync --user-id=1
  admin sync --user-id=1,2,3
  admin sync --all --workers=8 --timeout=1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(userIDs) == 0 && !all {
				return errors.New("must specify --user-id or --all")
			}
			if workers < 1 {
				return fmt.Errorf("invalid worker count %d", workers)
			}
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				ids := userIDs
				if all {
					var err error
					if ids, err = b.Accounts.UserIDs(ctx); err != nil {
						return fmt.Errorf("list users: %w", err)
					}
				}
				report, err := runSync(ctx, b, ids, workers)
				if err != nil {
					return err
				}
				if err := rootOpts.writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d of %d accounts failed to sync", report.Failed, report.Accounts)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64SliceVar(&userIDs, "user-id", nil, "user ID(s) to sync (comma-separated)")
	cmd.Flags().BoolVar(&all, "all", false, "sync every user with linked accounts")
	cmd.Flags().IntVar(&workers, "workers", 4, "number of users synced concurrently")

	return cmd
}

func runSync(ctx context.Context, b *Backend, userIDs []int64, workers int) (SyncReport, error) {
	var (
		mu     sync.Mutex
		report = SyncReport{Users: len(userIDs), Entries: []SyncEntry{}}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, userID := range userIDs {
		g.Go(func() error {
			accounts, err := b.Syncer.LinkedAccounts(ctx, userID, nil)
			if err != nil {
				return fmt.Errorf("list accounts of user %d: %w", userID, err)
			}
			for _, la := range accounts {
				entry := SyncEntry{UserID: userID, LinkedAccountID: la.ID, Provider: la.ProviderID.Name()}
				res, err := b.Syncer.Sync(ctx, la)
				if err != nil {
					entry.Error = err.Error()
					b.Logger.Warn("Account sync failed",
						zap.Int64("user_id", userID),
						zap.String("linked_account_id", la.ID),
						zap.Error(err))
				} else {
					entry.Transactions = res.Transactions
					entry.SyncedAt = res.SyncedAt
				}

				mu.Lock()
				report.Accounts++
				if entry.Error != "" {
					report.Failed++
				}
				report.Entries = append(report.Entries, entry)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SyncReport{}, err
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		if report.Entries[i].UserID != report.Entries[j].UserID {
			return report.Entries[i].UserID < report.Entries[j].UserID
		}
		return report.Entries[i].LinkedAccountID < report.Entries[j].LinkedAccountID
	})
	return report, nil
}

// NewUnlinkCommand creates the unlink command.
func NewUnlinkCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userID    int64
		accountID string
	)

	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Deactivate a linked account and drop its cached data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 || accountID == "" {
				return errors.New("--user-id and --account-id are required")
			}
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				la, err := b.Accounts.Get(ctx, accountID, userID)
				if err != nil {
					return err
				}
				if err := b.Accounts.Unlink(ctx, la.ID, userID); err != nil {
					return err
				}
				if err := b.Syncer.Invalidate(ctx, la); err != nil {
					b.Logger.Warn("Cached data not dropped", zap.String("linked_account_id", la.ID), zap.Error(err))
				}
				return rootOpts.writeJSON(cmd.OutOrStdout(), map[string]any{
					"unlinked": la.ID,
					"provider": la.ProviderID.Name(),
				})
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "owner of the linked account")
	cmd.Flags().StringVar(&accountID, "account-id", "", "linked account ID")

	return cmd
}

// NewOverviewCommand creates the overview command.
func NewOverviewCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userID    int64
		clientIDs string
	)

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print the analytics overview of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user-id is required")
			}
			providerIDs, err := provider.ParseIDList(clientIDs)
			if err != nil {
				return err
			}
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				ov, err := b.Analytics.GetOverview(ctx, userID, providerIDs)
				if err != nil {
					return err
				}
				return rootOpts.writeJSON(cmd.OutOrStdout(), ov)
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "user to summarize")
	cmd.Flags().StringVar(&clientIDs, "client-ids", "", "providers to include (comma-separated, default all)")

	return cmd
}

// NewBreakdownCommand creates the breakdown command.
func NewBreakdownCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userID     int64
		clientIDs  string
		start, end string
	)

	cmd := &cobra.Command{
		Use:     "breakdown",
		Short:   "Print spending per category for a user",
		Example: `  admin breakdown --user-id=1 --start=2024-05-01 --end=2024-05-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user-id is required")
			}
			providerIDs, err := provider.ParseIDList(clientIDs)
			if err != nil {
				return err
			}
			from, err := optionalDate("start", start)
			if err != nil {
				return err
			}
			to, err := optionalDate("end", end)
			if err != nil {
				return err
			}
			if from != nil && to != nil && from.After(*to) {
				return errors.New("--start must not be after --end")
			}
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				totals, err := b.Analytics.GetCategoryBreakdown(ctx, userID, providerIDs, from, to)
				if err != nil {
					return err
				}
				return rootOpts.writeJSON(cmd.OutOrStdout(), map[string]any{"categories": totals})
			})
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "user to analyze")
	cmd.Flags().StringVar(&clientIDs, "client-ids", "", "providers to include (comma-separated, default all)")
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD)")

	return cmd
}

func optionalDate(name, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", name, s)
	}
	return &t, nil
}

// ProviderEntry describes one configured provider.
type ProviderEntry struct {
	ID          provider.ID `json:"clientId"`
	Name        string      `json:"name"`
	DisplayName string      `json:"displayName"`
	BaseURL     string      `json:"baseUrl"`
	Default     bool        `json:"default"`
}

// NewProvidersCommand creates the providers command.
func NewProvidersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured bank providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				defaults := make(map[provider.ID]bool)
				for _, id := range b.Registry.DefaultSet() {
					defaults[id] = true
				}
				entries := make([]ProviderEntry, 0, len(b.Registry.All()))
				for _, p := range b.Registry.All() {
					entries = append(entries, ProviderEntry{
						ID:          p.ID,
						Name:        p.Name(),
						DisplayName: p.DisplayName,
						BaseURL:     p.BaseURL,
						Default:     defaults[p.ID],
					})
				}
				return rootOpts.writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}
}
