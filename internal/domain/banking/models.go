// Package banking holds the provider-independent account, balance and
// transaction model that every upstream component works with.
package banking

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether money left (debit) or entered (credit) an account.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// ParseDirection normalises the indicators providers use ("Debit", "DBIT", "credit", ...).
// Anything unrecognised is treated as a debit.
func ParseDirection(s string) Direction {
	switch s {
	case "credit", "Credit", "CREDIT", "CRDT":
		return Credit
	default:
		return Debit
	}
}

// AccountSummary is an account as reported by a provider.
type AccountSummary struct {
	ProviderAccountID string `json:"accountId"`
	Name              string `json:"accountName"`
	Currency          string `json:"currency"`
	AccountType       string `json:"accountType,omitempty"`
}

// Balance is always materialised from a provider call or the cache.
type Balance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Transaction is a single normalised movement. Amount is never negative;
// Direction carries the sign.
type Transaction struct {
	ID                   string          `json:"id"`
	Timestamp            time.Time       `json:"date"`
	Description          string          `json:"description"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Direction            Direction       `json:"type"`
	MerchantCategoryCode string          `json:"mccCode"`
}

// IsDebit reports whether the transaction is an expense.
func (t Transaction) IsDebit() bool {
	return t.Direction == Debit
}

// Defaults applied when a provider omits optional fields.
const (
	DefaultAccountName = "Account"
)
