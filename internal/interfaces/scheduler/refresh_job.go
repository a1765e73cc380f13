package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/aggregation"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

// AccountSyncer refreshes cached provider data. *aggregation.Service satisfies it.
type AccountSyncer interface {
	LinkedAccounts(ctx context.Context, userID int64, providerIDs []provider.ID) ([]*account.LinkedAccount, error)
	Sync(ctx context.Context, la *account.LinkedAccount) (aggregation.SyncResult, error)
}

// UserLister lists users that have linked accounts. *account.Service satisfies it.
type UserLister interface {
	UserIDs(ctx context.Context) ([]int64, error)
}

// RefreshJob re-fetches every linked account of one user into the cache.
type RefreshJob struct {
	userID int64
	syncer AccountSyncer
	logger *zap.Logger
}

func NewRefreshJob(userID int64, syncer AccountSyncer, logger *zap.Logger) *RefreshJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshJob{userID: userID, syncer: syncer, logger: logger}
}

// Execute syncs each account in turn. A failing account does not stop the
// others; the job fails if any account failed.
func (j *RefreshJob) Execute(ctx context.Context) error {
	accounts, err := j.syncer.LinkedAccounts(ctx, j.userID, nil)
	if err != nil {
		return fmt.Errorf("list linked accounts: %w", err)
	}

	failed := 0
	for _, la := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := j.syncer.Sync(ctx, la); err != nil {
			failed++
			j.logger.Warn("Account refresh failed",
				zap.Int64("user_id", j.userID),
				zap.String("linked_account_id", la.ID),
				zap.Stringer("provider", la.ProviderID),
				zap.Error(err))
		}
	}

	j.logger.Info("Refresh finished",
		zap.Int64("user_id", j.userID),
		zap.Int("accounts", len(accounts)),
		zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("refresh completed with %d of %d accounts failing", failed, len(accounts))
	}
	return nil
}

// UserID returns the user ID associated with this job
func (j *RefreshJob) UserID() string {
	return strconv.FormatInt(j.userID, 10)
}

// Description returns a human-readable description of the job
func (j *RefreshJob) Description() string {
	return fmt.Sprintf("Cache refresh for user %d", j.userID)
}

// RefreshJobs builds one RefreshJob per user with linked accounts.
func RefreshJobs(users UserLister, syncer AccountSyncer, logger *zap.Logger) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := users.UserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, NewRefreshJob(id, syncer, logger))
		}
		return jobs, nil
	}
}
