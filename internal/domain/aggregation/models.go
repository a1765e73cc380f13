// Package aggregation serves account data from the cache, falling back to the
// providers on a miss, and merges it across all of a user's linked accounts.
package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/openbanking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

const (
	DefaultDataTTL = 4 * time.Hour

	DefaultLimit = 20
	MaxLimit     = 100

	// providerFetchLimit is how many transactions are requested per account.
	providerFetchLimit = 100
	fanOutLimit        = 4
)

// Gateway is the provider access the service needs. *openbanking.Gateway satisfies it.
type Gateway interface {
	ListAccounts(ctx context.Context, userID int64, providerID provider.ID) ([]banking.AccountSummary, error)
	GetBalance(ctx context.Context, userID int64, providerID provider.ID, accountID string) (banking.Balance, error)
	ListTransactions(ctx context.Context, userID int64, providerID provider.ID, accountID string, limit int) ([]banking.Transaction, error)
	Consent(ctx context.Context, userID int64, providerID provider.ID) (openbanking.ConsentGrant, error)
}

// LinkedAccounts is the slice of the account service used here. *account.Service satisfies it.
type LinkedAccounts interface {
	Get(ctx context.Context, id string, userID int64) (*account.LinkedAccount, error)
	FindByProviderAccount(ctx context.Context, userID int64, providerID provider.ID, providerAccountID string) (*account.LinkedAccount, error)
	List(ctx context.Context, userID int64, providers []provider.ID) ([]*account.LinkedAccount, error)
	Link(ctx context.Context, params account.CreateParams) (*account.LinkedAccount, error)
}

// AccountInfo is a linked account joined with what the provider reports about it.
type AccountInfo struct {
	LinkedAccountID   string      `json:"id"`
	ProviderID        provider.ID `json:"clientId"`
	ProviderName      string      `json:"bankName"`
	ProviderAccountID string      `json:"accountId"`
	Name              string      `json:"accountName"`
	Currency          string      `json:"currency"`
	AccountType       string      `json:"accountType,omitempty"`
}

// AccountBalance is one entry of an aggregated balance listing.
type AccountBalance struct {
	LinkedAccountID   string          `json:"id"`
	ProviderID        provider.ID     `json:"clientId"`
	ProviderName      string          `json:"bankName"`
	ProviderAccountID string          `json:"accountId"`
	AccountName       string          `json:"accountName"`
	Balance           banking.Balance `json:"balance"`
	Cached            bool            `json:"cached"`
}

// BalancesResult lists balances of every account that answered. Omitted
// counts accounts skipped because their provider failed.
type BalancesResult struct {
	Balances []AccountBalance `json:"balances"`
	Omitted  int              `json:"omitted"`
}

// AccountTransaction is a transaction tagged with the account it belongs to.
type AccountTransaction struct {
	banking.Transaction
	LinkedAccountID   string      `json:"linkedAccountId"`
	ProviderID        provider.ID `json:"clientId"`
	ProviderName      string      `json:"bankName"`
	ProviderAccountID string      `json:"accountId"`
	AccountName       string      `json:"accountName"`
}

// TransactionQuery filters and pages the merged transaction list.
// Dates are inclusive; EndDate covers its whole day.
type TransactionQuery struct {
	ProviderIDs []provider.ID
	Offset      int
	Limit       int
	StartDate   *time.Time
	EndDate     *time.Time
}

// Normalize applies the default limit and validates the window.
func (q TransactionQuery) Normalize() (TransactionQuery, error) {
	if q.Offset < 0 {
		return q, fmt.Errorf("%w: offset must not be negative", banking.ErrInvalidFilter)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return q, fmt.Errorf("%w: limit must be between 1 and %d", banking.ErrInvalidFilter, MaxLimit)
	}
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		return q, fmt.Errorf("%w: start date is after end date", banking.ErrInvalidFilter)
	}
	return q, nil
}

// InRange reports whether t falls inside [start, end of endDate's day].
func InRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(dayStart(*start)) {
		return false
	}
	if end != nil && !t.Before(dayStart(*end).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// TransactionPage is one page of the merged, newest-first transaction list.
type TransactionPage struct {
	Items   []AccountTransaction `json:"transactions"`
	Total   int                  `json:"total"`
	Offset  int                  `json:"offset"`
	Limit   int                  `json:"limit"`
	Omitted int                  `json:"omitted"`
}

// SyncResult reports a forced refresh of one linked account.
type SyncResult struct {
	LinkedAccountID string          `json:"id"`
	Info            AccountInfo     `json:"account"`
	Balance         banking.Balance `json:"balance"`
	Transactions    int             `json:"transactionsCount"`
	SyncedAt        time.Time       `json:"syncedAt"`
}
