// Package openbanking talks to the external banks. Each bank speaks a slightly
// different dialect of the same API; the variants in this package normalise
// all of them into the banking model.
package openbanking

import (
	"context"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

// Auth carries the per-user credentials attached to every data request.
type Auth struct {
	Token     string
	ConsentID string
	// ClientID is the per-user client identifier ("team222-42").
	ClientID string
}

// ConsentRequest is the body sent to /account-consents/request.
type ConsentRequest struct {
	ClientID           string   `json:"client_id"`
	Permissions        []string `json:"permissions"`
	Reason             string   `json:"reason"`
	RequestingBank     string   `json:"requesting_bank"`
	RequestingBankName string   `json:"requesting_bank_name"`
}

// ConsentStatus is the normalised state of a consent at the provider.
type ConsentStatus string

const (
	ConsentApproved ConsentStatus = "approved"
	ConsentPending  ConsentStatus = "pending"
	ConsentRejected ConsentStatus = "rejected"
)

// ConsentResponse is what the provider answered to a consent request.
// Pending consents only carry a RequestID.
type ConsentResponse struct {
	ConsentID string
	RequestID string
	Status    ConsentStatus
}

// Provider is one external bank.
type Provider interface {
	ID() provider.ID
	RequestToken(ctx context.Context, creds provider.TeamCredentials) (string, error)
	RequestConsent(ctx context.Context, token string, req ConsentRequest) (ConsentResponse, error)
	ListAccounts(ctx context.Context, auth Auth) ([]banking.AccountSummary, error)
	GetBalance(ctx context.Context, auth Auth, accountID string) (banking.Balance, error)
	ListTransactions(ctx context.Context, auth Auth, accountID string, limit int) ([]banking.Transaction, error)
}
