package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/openbanking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/infrastructure/cache"
)

// MockGateway implements Gateway
type MockGateway struct {
	ListAccountsFunc     func(ctx context.Context, userID int64, providerID provider.ID) ([]banking.AccountSummary, error)
	GetBalanceFunc       func(ctx context.Context, userID int64, providerID provider.ID, accountID string) (banking.Balance, error)
	ListTransactionsFunc func(ctx context.Context, userID int64, providerID provider.ID, accountID string, limit int) ([]banking.Transaction, error)

	balanceCalls int32
	txCalls      int32
}

func (m *MockGateway) ListAccounts(ctx context.Context, userID int64, providerID provider.ID) ([]banking.AccountSummary, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx, userID, providerID)
	}
	return nil, nil
}

func (m *MockGateway) GetBalance(ctx context.Context, userID int64, providerID provider.ID, accountID string) (banking.Balance, error) {
	atomic.AddInt32(&m.balanceCalls, 1)
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, userID, providerID, accountID)
	}
	return banking.Balance{Amount: decimal.NewFromInt(100), Currency: "RUB"}, nil
}

func (m *MockGateway) ListTransactions(ctx context.Context, userID int64, providerID provider.ID, accountID string, limit int) ([]banking.Transaction, error) {
	atomic.AddInt32(&m.txCalls, 1)
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, userID, providerID, accountID, limit)
	}
	return nil, nil
}

func (m *MockGateway) Consent(ctx context.Context, userID int64, providerID provider.ID) (openbanking.ConsentGrant, error) {
	return openbanking.ConsentGrant{ID: "consent-7", Status: "approved"}, nil
}

// memAccounts is an in-memory LinkedAccounts.
type memAccounts struct {
	mu   sync.Mutex
	accs []*account.LinkedAccount
}

func (m *memAccounts) Get(ctx context.Context, id string, userID int64) (*account.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accs {
		if a.ID == id && a.UserID == userID && a.IsActive {
			return a, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

func (m *memAccounts) FindByProviderAccount(ctx context.Context, userID int64, providerID provider.ID, providerAccountID string) (*account.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accs {
		if a.UserID == userID && a.ProviderID == providerID && a.ProviderAccountID == providerAccountID && a.IsActive {
			return a, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

func (m *memAccounts) List(ctx context.Context, userID int64, providers []provider.ID) ([]*account.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*account.LinkedAccount
	for _, a := range m.accs {
		if a.UserID != userID || !a.IsActive {
			continue
		}
		if providers != nil && !containsID(providers, a.ProviderID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memAccounts) Link(ctx context.Context, p account.CreateParams) (*account.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accs {
		if a.UserID == p.UserID && a.ProviderID == p.ProviderID && a.ProviderAccountID == p.ProviderAccountID {
			return nil, account.ErrAlreadyLinked
		}
	}
	a := &account.LinkedAccount{
		ID:                fmt.Sprintf("la-%d", len(m.accs)+1),
		UserID:            p.UserID,
		ProviderID:        p.ProviderID,
		ProviderAccountID: p.ProviderAccountID,
		DisplayName:       p.DisplayName,
		ConsentID:         p.ConsentID,
		IsActive:          true,
	}
	m.accs = append(m.accs, a)
	return a, nil
}

func containsID(ids []provider.ID, id provider.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func link(userID int64, pid provider.ID, accID string) *account.LinkedAccount {
	return &account.LinkedAccount{ID: "la-" + accID, UserID: userID, ProviderID: pid, ProviderAccountID: accID, DisplayName: "Acc " + accID, IsActive: true}
}

var baseTime = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, gw *MockGateway, accs ...*account.LinkedAccount) (*Service, *cache.MemoryStore) {
	t.Helper()
	reg, err := provider.NewRegistry(provider.TeamCredentials{ClientID: "team222"},
		[]provider.Provider{
			{ID: provider.VBank, BaseURL: "http://vbank"},
			{ID: provider.ABank, BaseURL: "http://abank"},
			{ID: provider.SBank, BaseURL: "http://sbank"},
		}, nil)
	require.NoError(t, err)
	store := cache.NewMemoryStore()
	svc := NewService(reg, gw, &memAccounts{accs: accs}, cache.NewLoader(store, nil), Config{
		Now: func() time.Time { return baseTime },
	})
	return svc, store
}

func txs(accountID string, n int) []banking.Transaction {
	out := make([]banking.Transaction, n)
	for i := range out {
		out[i] = banking.Transaction{
			ID:        fmt.Sprintf("%s-%02d", accountID, i),
			Timestamp: baseTime.Add(-time.Duration(i) * time.Hour),
			Amount:    decimal.NewFromInt(int64(10 + i)),
			Currency:  "RUB",
			Direction: banking.Debit,
		}
	}
	return out
}

func TestGetBalance_CachedOnSecondCall(t *testing.T) {
	gw := &MockGateway{}
	svc, store := newService(t, gw, link(7, provider.VBank, "acc-1"))
	ctx := context.Background()

	b1, cached, err := svc.GetBalance(ctx, 7, "acc-1", provider.VBank)
	require.NoError(t, err)
	assert.False(t, cached)

	b2, cached, err := svc.GetBalance(ctx, 7, "acc-1", provider.VBank)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.True(t, b1.Amount.Equal(b2.Amount))
	assert.Equal(t, int32(1), gw.balanceCalls)

	_, found, _ := store.Get(ctx, "balance:7:acc-1")
	assert.True(t, found)
}

func TestGetBalance_RequiresLinkedAccount(t *testing.T) {
	gw := &MockGateway{}
	svc, _ := newService(t, gw, link(7, provider.VBank, "acc-1"))
	ctx := context.Background()

	_, _, err := svc.GetBalance(ctx, 8, "acc-1", provider.VBank)
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)

	_, _, err = svc.GetBalance(ctx, 7, "acc-1", provider.SBank)
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)

	_, _, err = svc.GetBalance(ctx, 7, "acc-1", provider.ID(9))
	assert.ErrorIs(t, err, banking.ErrInvalidFilter)
	assert.Zero(t, gw.balanceCalls)
}

func TestGetBalance_FailureNotCached(t *testing.T) {
	fail := true
	gw := &MockGateway{
		GetBalanceFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string) (banking.Balance, error) {
			if fail {
				return banking.Balance{}, banking.ErrProviderUnavailable
			}
			return banking.Balance{Amount: decimal.NewFromInt(5), Currency: "RUB"}, nil
		},
	}
	svc, _ := newService(t, gw, link(7, provider.VBank, "acc-1"))
	ctx := context.Background()

	_, _, err := svc.GetBalance(ctx, 7, "acc-1", provider.VBank)
	assert.ErrorIs(t, err, banking.ErrProviderUnavailable)

	fail = false
	b, cached, err := svc.GetBalance(ctx, 7, "acc-1", provider.VBank)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "5", b.Amount.String())
}

func TestGetAccountInfo(t *testing.T) {
	gw := &MockGateway{
		ListAccountsFunc: func(ctx context.Context, userID int64, pid provider.ID) ([]banking.AccountSummary, error) {
			return []banking.AccountSummary{
				{ProviderAccountID: "other", Name: "Other", Currency: "USD"},
				{ProviderAccountID: "acc-1", Name: "Checking", Currency: "RUB", AccountType: "Personal"},
			}, nil
		},
	}
	svc, _ := newService(t, gw, link(7, provider.ABank, "acc-1"), link(7, provider.ABank, "gone"))
	ctx := context.Background()

	info, cached, err := svc.GetAccountInfo(ctx, 7, "acc-1", provider.ABank)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "la-acc-1", info.LinkedAccountID)
	assert.Equal(t, "abank", info.ProviderName)
	assert.Equal(t, "Acc acc-1", info.Name)
	assert.Equal(t, "Personal", info.AccountType)

	_, _, err = svc.GetAccountInfo(ctx, 7, "gone", provider.ABank)
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)
}

func TestGetAllBalances_PartialFailure(t *testing.T) {
	gw := &MockGateway{
		GetBalanceFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string) (banking.Balance, error) {
			if pid == provider.SBank {
				return banking.Balance{}, fmt.Errorf("sbank: %w", banking.ErrProviderUnavailable)
			}
			return banking.Balance{Amount: decimal.NewFromInt(int64(pid) * 100), Currency: "RUB"}, nil
		},
	}
	svc, _ := newService(t, gw,
		link(7, provider.VBank, "v1"),
		link(7, provider.ABank, "a1"),
		link(7, provider.SBank, "s1"),
	)

	res, err := svc.GetAllBalances(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Omitted)
	require.Len(t, res.Balances, 2)
	assert.Equal(t, "v1", res.Balances[0].ProviderAccountID)
	assert.Equal(t, "a1", res.Balances[1].ProviderAccountID)
	assert.Equal(t, "vbank", res.Balances[0].ProviderName)
}

func TestGetAllBalances_ProviderFilter(t *testing.T) {
	gw := &MockGateway{}
	svc, _ := newService(t, gw,
		link(7, provider.VBank, "v1"),
		link(7, provider.ABank, "a1"),
	)
	ctx := context.Background()

	res, err := svc.GetAllBalances(ctx, 7, []provider.ID{provider.ABank})
	require.NoError(t, err)
	require.Len(t, res.Balances, 1)
	assert.Equal(t, provider.ABank, res.Balances[0].ProviderID)

	res, err = svc.GetAllBalances(ctx, 7, []provider.ID{})
	require.NoError(t, err)
	assert.Empty(t, res.Balances)
	assert.Zero(t, res.Omitted)
}

func TestGetAllTransactions_Pagination(t *testing.T) {
	gw := &MockGateway{
		ListTransactionsFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string, limit int) ([]banking.Transaction, error) {
			assert.Equal(t, providerFetchLimit, limit)
			return txs(accountID, 35), nil
		},
	}
	svc, _ := newService(t, gw, link(7, provider.VBank, "acc-1"))
	ctx := context.Background()

	page, err := svc.GetAllTransactions(ctx, 7, TransactionQuery{})
	require.NoError(t, err)
	assert.Equal(t, 35, page.Total)
	assert.Equal(t, DefaultLimit, page.Limit)
	require.Len(t, page.Items, 20)
	assert.Equal(t, "acc-1-00", page.Items[0].ID)
	assert.Equal(t, "la-acc-1", page.Items[0].LinkedAccountID)

	page, err = svc.GetAllTransactions(ctx, 7, TransactionQuery{Offset: 20})
	require.NoError(t, err)
	require.Len(t, page.Items, 15)
	assert.Equal(t, "acc-1-20", page.Items[0].ID)
	assert.Equal(t, "acc-1-34", page.Items[14].ID)

	page, err = svc.GetAllTransactions(ctx, 7, TransactionQuery{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 35, page.Total)

	assert.Equal(t, int32(1), gw.txCalls, "later pages are served from cache")
}

func TestGetAllTransactions_EmptyPageEncodesAsList(t *testing.T) {
	svc, _ := newService(t, &MockGateway{})

	page, err := svc.GetAllTransactions(context.Background(), 7, TransactionQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	require.NotNil(t, page.Items)

	raw, err := json.Marshal(page)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"transactions":[]`)
}

func TestGetAllTransactions_MergesNewestFirst(t *testing.T) {
	gw := &MockGateway{
		ListTransactionsFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string, limit int) ([]banking.Transaction, error) {
			if accountID == "a" {
				return []banking.Transaction{
					{ID: "a-old", Timestamp: baseTime.Add(-48 * time.Hour)},
					{ID: "a-tie", Timestamp: baseTime},
				}, nil
			}
			return []banking.Transaction{
				{ID: "b-mid", Timestamp: baseTime.Add(-24 * time.Hour)},
				{ID: "b-tie", Timestamp: baseTime},
			}, nil
		},
	}
	svc, _ := newService(t, gw, link(7, provider.VBank, "a"), link(7, provider.SBank, "b"))

	page, err := svc.GetAllTransactions(context.Background(), 7, TransactionQuery{Limit: 10})
	require.NoError(t, err)
	var ids []string
	for _, tx := range page.Items {
		ids = append(ids, tx.ID)
	}
	assert.Equal(t, []string{"a-tie", "b-tie", "b-mid", "a-old"}, ids)
}

func TestGetAllTransactions_DateRangeInclusive(t *testing.T) {
	gw := &MockGateway{
		ListTransactionsFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string, limit int) ([]banking.Transaction, error) {
			return []banking.Transaction{
				{ID: "before", Timestamp: time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)},
				{ID: "first", Timestamp: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
				{ID: "last", Timestamp: time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC)},
				{ID: "after", Timestamp: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
			}, nil
		},
	}
	svc, _ := newService(t, gw, link(7, provider.VBank, "acc-1"))
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	page, err := svc.GetAllTransactions(context.Background(), 7, TransactionQuery{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "last", page.Items[0].ID)
	assert.Equal(t, "first", page.Items[1].ID)
}

func TestGetAllTransactions_PartialFailure(t *testing.T) {
	gw := &MockGateway{
		ListTransactionsFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string, limit int) ([]banking.Transaction, error) {
			if accountID == "bad" {
				return nil, banking.ErrConsentPending
			}
			return txs(accountID, 3), nil
		},
	}
	svc, _ := newService(t, gw, link(7, provider.VBank, "good"), link(7, provider.ABank, "bad"))

	page, err := svc.GetAllTransactions(context.Background(), 7, TransactionQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Omitted)
}

func TestTransactionQuery_Normalize(t *testing.T) {
	day := func(d int) *time.Time {
		t := time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	tests := []struct {
		name    string
		q       TransactionQuery
		want    int
		wantErr bool
	}{
		{"default limit", TransactionQuery{}, DefaultLimit, false},
		{"max limit", TransactionQuery{Limit: MaxLimit}, MaxLimit, false},
		{"limit too large", TransactionQuery{Limit: MaxLimit + 1}, 0, true},
		{"negative limit", TransactionQuery{Limit: -1}, 0, true},
		{"negative offset", TransactionQuery{Offset: -5}, 0, true},
		{"same day range", TransactionQuery{StartDate: day(3), EndDate: day(3)}, DefaultLimit, false},
		{"inverted range", TransactionQuery{StartDate: day(4), EndDate: day(3)}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.q.Normalize()
			if tt.wantErr {
				assert.ErrorIs(t, err, banking.ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Limit)
		})
	}
}

func TestForceSync_BypassesCache(t *testing.T) {
	amount := int64(100)
	gw := &MockGateway{
		ListAccountsFunc: func(ctx context.Context, userID int64, pid provider.ID) ([]banking.AccountSummary, error) {
			return []banking.AccountSummary{{ProviderAccountID: "acc-1", Currency: "RUB"}}, nil
		},
		GetBalanceFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string) (banking.Balance, error) {
			return banking.Balance{Amount: decimal.NewFromInt(amount), Currency: "RUB"}, nil
		},
		ListTransactionsFunc: func(ctx context.Context, userID int64, pid provider.ID, accountID string, limit int) ([]banking.Transaction, error) {
			return txs(accountID, 4), nil
		},
	}
	svc, _ := newService(t, gw, link(7, provider.VBank, "acc-1"))
	ctx := context.Background()

	_, _, err := svc.GetBalance(ctx, 7, "acc-1", provider.VBank)
	require.NoError(t, err)

	amount = 250
	res, err := svc.ForceSync(ctx, 7, "la-acc-1")
	require.NoError(t, err)
	assert.Equal(t, "250", res.Balance.Amount.String())
	assert.Equal(t, 4, res.Transactions)
	assert.Equal(t, baseTime, res.SyncedAt)

	b, cached, err := svc.GetBalance(ctx, 7, "acc-1", provider.VBank)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "250", b.Amount.String())

	_, err = svc.ForceSync(ctx, 8, "la-acc-1")
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)
}

func TestLinkAccount(t *testing.T) {
	gw := &MockGateway{
		ListAccountsFunc: func(ctx context.Context, userID int64, pid provider.ID) ([]banking.AccountSummary, error) {
			return []banking.AccountSummary{
				{ProviderAccountID: "acc-1", Name: "Checking"},
				{ProviderAccountID: "acc-2", Name: "Savings"},
			}, nil
		},
	}
	svc, _ := newService(t, gw)
	ctx := context.Background()

	first, err := svc.LinkAccount(ctx, 7, provider.SBank, "")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", first.ProviderAccountID)
	assert.Equal(t, "Checking", first.DisplayName)
	assert.Equal(t, "consent-7", first.ConsentID)

	second, err := svc.LinkAccount(ctx, 7, provider.SBank, "Rainy day")
	require.NoError(t, err)
	assert.Equal(t, "acc-2", second.ProviderAccountID)
	assert.Equal(t, "Rainy day", second.DisplayName)

	_, err = svc.LinkAccount(ctx, 7, provider.SBank, "")
	assert.ErrorIs(t, err, account.ErrAlreadyLinked)

	_, err = svc.LinkAccount(ctx, 7, provider.ID(0), "")
	assert.ErrorIs(t, err, banking.ErrInvalidFilter)
}

func TestLinkAccount_NoProviderAccounts(t *testing.T) {
	gw := &MockGateway{}
	svc, _ := newService(t, gw)

	_, err := svc.LinkAccount(context.Background(), 7, provider.VBank, "")
	assert.ErrorIs(t, err, banking.ErrAccountNotFound)

	gw.ListAccountsFunc = func(ctx context.Context, userID int64, pid provider.ID) ([]banking.AccountSummary, error) {
		return nil, errors.New("boom")
	}
	_, err = svc.LinkAccount(context.Background(), 7, provider.VBank, "")
	assert.EqualError(t, err, "boom")
}

func TestInvalidate(t *testing.T) {
	gw := &MockGateway{}
	la := link(7, provider.VBank, "acc-1")
	svc, store := newService(t, gw, la)
	ctx := context.Background()

	_, _, err := svc.GetBalance(ctx, 7, "acc-1", provider.VBank)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, la))

	_, found, _ := store.Get(ctx, "balance:7:acc-1")
	assert.False(t, found)
}
