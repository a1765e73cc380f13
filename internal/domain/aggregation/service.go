package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/infrastructure/cache"
)

var (
	aggTracer    = otel.Tracer("bank-aggregator/aggregation")
	aggMeter     = otel.Meter("bank-aggregator/aggregation")
	omittedTotal metric.Int64Counter
)

func init() {
	var err error
	omittedTotal, err = aggMeter.Int64Counter("aggregation.accounts_omitted",
		metric.WithDescription("Accounts left out of an aggregated response because their provider failed"))
	if err != nil {
		otel.Handle(err)
	}
}

// Cache key kinds.
const (
	kindAccountInfo  = "account_info"
	kindBalance      = "balance"
	kindTransactions = "transactions"
)

// Config tunes the service. Zero values fall back to defaults.
type Config struct {
	DataTTL time.Duration
	Logger  *zap.Logger
	Now     func() time.Time
}

// Service is the cache-aside data service.
type Service struct {
	registry *provider.Registry
	gateway  Gateway
	accounts LinkedAccounts
	loader   *cache.Loader
	cfg      Config
}

// NewService creates a data service.
func NewService(registry *provider.Registry, gateway Gateway, accounts LinkedAccounts, loader *cache.Loader, cfg Config) *Service {
	if cfg.DataTTL <= 0 {
		cfg.DataTTL = DefaultDataTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		registry: registry,
		gateway:  gateway,
		accounts: accounts,
		loader:   loader,
		cfg:      cfg,
	}
}

func dataKey(kind string, userID int64, accountID string) string {
	return cache.Key(kind, userID, accountID)
}

// DataKeys returns every cache key holding data of one provider account.
func DataKeys(userID int64, accountID string) []string {
	return []string{
		dataKey(kindAccountInfo, userID, accountID),
		dataKey(kindBalance, userID, accountID),
		dataKey(kindTransactions, userID, accountID),
	}
}

func (s *Service) providerName(id provider.ID) string {
	p, err := s.registry.Lookup(id)
	if err != nil {
		return id.Name()
	}
	return p.Name()
}

// linked resolves the active linked account the user holds for a provider account.
func (s *Service) linked(ctx context.Context, userID int64, accountID string, providerID provider.ID) (*account.LinkedAccount, error) {
	if !providerID.Valid() {
		return nil, fmt.Errorf("%w: %w: %d", banking.ErrInvalidFilter, provider.ErrUnknownProvider, providerID)
	}
	return s.accounts.FindByProviderAccount(ctx, userID, providerID, accountID)
}

// GetAccountInfo returns what the provider reports about a linked account.
func (s *Service) GetAccountInfo(ctx context.Context, userID int64, accountID string, providerID provider.ID) (AccountInfo, bool, error) {
	la, err := s.linked(ctx, userID, accountID, providerID)
	if err != nil {
		return AccountInfo{}, false, err
	}
	return s.accountInfo(ctx, la)
}

func (s *Service) accountInfo(ctx context.Context, la *account.LinkedAccount) (AccountInfo, bool, error) {
	return cache.Load(ctx, s.loader, dataKey(kindAccountInfo, la.UserID, la.ProviderAccountID), s.cfg.DataTTL, s.fetchInfo(la))
}

func (s *Service) fetchInfo(la *account.LinkedAccount) func(context.Context) (AccountInfo, error) {
	return func(ctx context.Context) (AccountInfo, error) {
		summaries, err := s.gateway.ListAccounts(ctx, la.UserID, la.ProviderID)
		if err != nil {
			return AccountInfo{}, err
		}
		for _, sum := range summaries {
			if sum.ProviderAccountID != la.ProviderAccountID {
				continue
			}
			return AccountInfo{
				LinkedAccountID:   la.ID,
				ProviderID:        la.ProviderID,
				ProviderName:      s.providerName(la.ProviderID),
				ProviderAccountID: la.ProviderAccountID,
				Name:              la.DisplayName,
				Currency:          sum.Currency,
				AccountType:       sum.AccountType,
			}, nil
		}
		return AccountInfo{}, fmt.Errorf("%w: %s no longer reports %s", banking.ErrAccountNotFound, s.providerName(la.ProviderID), la.ProviderAccountID)
	}
}

// GetBalance returns the balance of a linked account.
func (s *Service) GetBalance(ctx context.Context, userID int64, accountID string, providerID provider.ID) (banking.Balance, bool, error) {
	la, err := s.linked(ctx, userID, accountID, providerID)
	if err != nil {
		return banking.Balance{}, false, err
	}
	return s.balance(ctx, la)
}

func (s *Service) balance(ctx context.Context, la *account.LinkedAccount) (banking.Balance, bool, error) {
	return cache.Load(ctx, s.loader, dataKey(kindBalance, la.UserID, la.ProviderAccountID), s.cfg.DataTTL, s.fetchBalance(la))
}

func (s *Service) fetchBalance(la *account.LinkedAccount) func(context.Context) (banking.Balance, error) {
	return func(ctx context.Context) (banking.Balance, error) {
		return s.gateway.GetBalance(ctx, la.UserID, la.ProviderID, la.ProviderAccountID)
	}
}

// GetTransactions returns the recent transactions of a linked account.
func (s *Service) GetTransactions(ctx context.Context, userID int64, accountID string, providerID provider.ID) ([]banking.Transaction, bool, error) {
	la, err := s.linked(ctx, userID, accountID, providerID)
	if err != nil {
		return nil, false, err
	}
	return s.transactions(ctx, la)
}

func (s *Service) transactions(ctx context.Context, la *account.LinkedAccount) ([]banking.Transaction, bool, error) {
	return cache.Load(ctx, s.loader, dataKey(kindTransactions, la.UserID, la.ProviderAccountID), s.cfg.DataTTL, s.fetchTransactions(la))
}

func (s *Service) fetchTransactions(la *account.LinkedAccount) func(context.Context) ([]banking.Transaction, error) {
	return func(ctx context.Context) ([]banking.Transaction, error) {
		return s.gateway.ListTransactions(ctx, la.UserID, la.ProviderID, la.ProviderAccountID, providerFetchLimit)
	}
}

// forEachAccount runs fn over the accounts with bounded concurrency.
// Failing accounts are logged and counted, never returned.
func (s *Service) forEachAccount(ctx context.Context, op string, accounts []*account.LinkedAccount, fn func(ctx context.Context, i int, la *account.LinkedAccount) error) int {
	var (
		mu      sync.Mutex
		omitted int
	)
	g := new(errgroup.Group)
	g.SetLimit(fanOutLimit)
	for i, la := range accounts {
		g.Go(func() error {
			if err := fn(ctx, i, la); err != nil {
				s.cfg.Logger.Warn("Omitting account from aggregate",
					zap.String("op", op),
					zap.String("linked_account_id", la.ID),
					zap.Stringer("provider", la.ProviderID),
					zap.Error(err))
				omittedTotal.Add(ctx, 1, metric.WithAttributes(
					attribute.String("op", op),
					attribute.String("provider", la.ProviderID.String())))
				mu.Lock()
				omitted++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return omitted
}

// GetAllBalances returns balances of every active linked account, optionally
// restricted to some providers. A nil filter means all providers.
func (s *Service) GetAllBalances(ctx context.Context, userID int64, providerIDs []provider.ID) (BalancesResult, error) {
	ctx, span := aggTracer.Start(ctx, "aggregation.GetAllBalances",
		trace.WithAttributes(attribute.Int64("user_id", userID)))
	defer span.End()

	accounts, err := s.accounts.List(ctx, userID, providerIDs)
	if err != nil {
		return BalancesResult{}, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	slots := make([]*AccountBalance, len(accounts))
	omitted := s.forEachAccount(ctx, "balances", accounts, func(ctx context.Context, i int, la *account.LinkedAccount) error {
		bal, cached, err := s.balance(ctx, la)
		if err != nil {
			return err
		}
		slots[i] = &AccountBalance{
			LinkedAccountID:   la.ID,
			ProviderID:        la.ProviderID,
			ProviderName:      s.providerName(la.ProviderID),
			ProviderAccountID: la.ProviderAccountID,
			AccountName:       la.DisplayName,
			Balance:           bal,
			Cached:            cached,
		}
		return nil
	})

	result := BalancesResult{Balances: make([]AccountBalance, 0, len(accounts)), Omitted: omitted}
	for _, b := range slots {
		if b != nil {
			result.Balances = append(result.Balances, *b)
		}
	}
	span.SetAttributes(attribute.Int("accounts", len(accounts)), attribute.Int("omitted", omitted))
	return result, nil
}

// GetAllTransactions merges the transactions of every matching linked account,
// newest first, and returns the requested page.
func (s *Service) GetAllTransactions(ctx context.Context, userID int64, q TransactionQuery) (TransactionPage, error) {
	q, err := q.Normalize()
	if err != nil {
		return TransactionPage{}, err
	}

	ctx, span := aggTracer.Start(ctx, "aggregation.GetAllTransactions",
		trace.WithAttributes(attribute.Int64("user_id", userID)))
	defer span.End()

	merged, omitted, err := s.collectTransactions(ctx, userID, q.ProviderIDs, q.StartDate, q.EndDate)
	if err != nil {
		return TransactionPage{}, err
	}

	page := TransactionPage{Total: len(merged), Offset: q.Offset, Limit: q.Limit, Omitted: omitted}
	start := min(q.Offset, len(merged))
	end := min(start+q.Limit, len(merged))
	page.Items = merged[start:end]
	return page, nil
}

// CollectTransactions returns every matching transaction, newest first, without paging.
func (s *Service) CollectTransactions(ctx context.Context, userID int64, providerIDs []provider.ID, start, end *time.Time) ([]AccountTransaction, int, error) {
	return s.collectTransactions(ctx, userID, providerIDs, start, end)
}

func (s *Service) collectTransactions(ctx context.Context, userID int64, providerIDs []provider.ID, start, end *time.Time) ([]AccountTransaction, int, error) {
	accounts, err := s.accounts.List(ctx, userID, providerIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	perAccount := make([][]AccountTransaction, len(accounts))
	omitted := s.forEachAccount(ctx, "transactions", accounts, func(ctx context.Context, i int, la *account.LinkedAccount) error {
		txs, _, err := s.transactions(ctx, la)
		if err != nil {
			return err
		}
		name := s.providerName(la.ProviderID)
		out := make([]AccountTransaction, 0, len(txs))
		for _, tx := range txs {
			if !InRange(tx.Timestamp, start, end) {
				continue
			}
			out = append(out, AccountTransaction{
				Transaction:       tx,
				LinkedAccountID:   la.ID,
				ProviderID:        la.ProviderID,
				ProviderName:      name,
				ProviderAccountID: la.ProviderAccountID,
				AccountName:       la.DisplayName,
			})
		}
		perAccount[i] = out
		return nil
	})

	merged := make([]AccountTransaction, 0)
	for _, txs := range perAccount {
		merged = append(merged, txs...)
	}
	SortNewestFirst(merged)
	return merged, omitted, nil
}

// SortNewestFirst orders transactions by timestamp descending, ties broken by id.
func SortNewestFirst(txs []AccountTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
}

// ForceSync bypasses the cache for one linked account and rewrites every entry.
func (s *Service) ForceSync(ctx context.Context, userID int64, linkedAccountID string) (SyncResult, error) {
	la, err := s.accounts.Get(ctx, linkedAccountID, userID)
	if err != nil {
		return SyncResult{}, err
	}
	return s.Sync(ctx, la)
}

// Sync refreshes every cache entry of a linked account from its provider.
func (s *Service) Sync(ctx context.Context, la *account.LinkedAccount) (SyncResult, error) {
	ctx, span := aggTracer.Start(ctx, "aggregation.Sync",
		trace.WithAttributes(
			attribute.String("linked_account_id", la.ID),
			attribute.String("provider", la.ProviderID.String())))
	defer span.End()

	info, err := cache.Refresh(ctx, s.loader, dataKey(kindAccountInfo, la.UserID, la.ProviderAccountID), s.cfg.DataTTL, s.fetchInfo(la))
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to sync account info: %w", err)
	}
	bal, err := cache.Refresh(ctx, s.loader, dataKey(kindBalance, la.UserID, la.ProviderAccountID), s.cfg.DataTTL, s.fetchBalance(la))
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to sync balance: %w", err)
	}
	txs, err := cache.Refresh(ctx, s.loader, dataKey(kindTransactions, la.UserID, la.ProviderAccountID), s.cfg.DataTTL, s.fetchTransactions(la))
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to sync transactions: %w", err)
	}

	return SyncResult{
		LinkedAccountID: la.ID,
		Info:            info,
		Balance:         bal,
		Transactions:    len(txs),
		SyncedAt:        s.cfg.Now().UTC(),
	}, nil
}

// LinkAccount links the first provider account the user has not linked yet.
// An empty display name takes the provider's account name.
func (s *Service) LinkAccount(ctx context.Context, userID int64, providerID provider.ID, displayName string) (*account.LinkedAccount, error) {
	if _, err := s.registry.Lookup(providerID); err != nil {
		return nil, fmt.Errorf("%w: %w", banking.ErrInvalidFilter, err)
	}

	summaries, err := s.gateway.ListAccounts(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: %s reports no accounts", banking.ErrAccountNotFound, s.providerName(providerID))
	}

	grant, err := s.gateway.Consent(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}

	for _, sum := range summaries {
		name := displayName
		if name == "" {
			name = sum.Name
		}
		la, err := s.accounts.Link(ctx, account.CreateParams{
			UserID:            userID,
			ProviderID:        providerID,
			ProviderAccountID: sum.ProviderAccountID,
			DisplayName:       name,
			ConsentID:         grant.ID,
		})
		if errors.Is(err, account.ErrAlreadyLinked) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.cfg.Logger.Info("Linked account",
			zap.Int64("user_id", userID),
			zap.Stringer("provider", providerID),
			zap.String("linked_account_id", la.ID))
		return la, nil
	}
	return nil, account.ErrAlreadyLinked
}

// Invalidate drops the cached data of a linked account.
func (s *Service) Invalidate(ctx context.Context, la *account.LinkedAccount) error {
	return s.loader.Invalidate(ctx, DataKeys(la.UserID, la.ProviderAccountID)...)
}

// LinkedAccounts lists the user's active linked accounts.
func (s *Service) LinkedAccounts(ctx context.Context, userID int64, providerIDs []provider.ID) ([]*account.LinkedAccount, error) {
	return s.accounts.List(ctx, userID, providerIDs)
}
