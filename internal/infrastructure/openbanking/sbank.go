package openbanking

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
)

// sbankClient handles the flat dialect: numeric amounts with a sibling
// currency, "name" for the account label, "type" for the direction.
type sbankClient struct {
	client
}

type sbankAccountsResponse struct {
	Data struct {
		Account []struct {
			AccountID   string `json:"accountId"`
			Name        string `json:"name"`
			Currency    string `json:"currency"`
			AccountType string `json:"accountType"`
		} `json:"account"`
	} `json:"data"`
}

type sbankBalancesResponse struct {
	Data struct {
		Balance []struct {
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
		} `json:"balance"`
	} `json:"data"`
}

type sbankTransactionsResponse struct {
	Data struct {
		Transaction []struct {
			TransactionID string          `json:"transactionId"`
			BookingDate   string          `json:"bookingDate"`
			Description   string          `json:"description"`
			Amount        decimal.Decimal `json:"amount"`
			Currency      string          `json:"currency"`
			Type          string          `json:"type"`
			MCC           string          `json:"mcc"`
		} `json:"transaction"`
	} `json:"data"`
}

func (c *sbankClient) ListAccounts(ctx context.Context, auth Auth) ([]banking.AccountSummary, error) {
	q := url.Values{}
	q.Set("client_id", auth.ClientID)

	var resp sbankAccountsResponse
	if err := c.do(ctx, "accounts", http.MethodGet, "/accounts", q, c.dataHeaders(auth), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]banking.AccountSummary, 0, len(resp.Data.Account))
	for _, a := range resp.Data.Account {
		out = append(out, banking.AccountSummary{
			ProviderAccountID: a.AccountID,
			Name:              orDefault(a.Name, banking.DefaultAccountName),
			Currency:          orDefault(a.Currency, c.baseCurrency),
			AccountType:       a.AccountType,
		})
	}
	return out, nil
}

func (c *sbankClient) GetBalance(ctx context.Context, auth Auth, accountID string) (banking.Balance, error) {
	var resp sbankBalancesResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/balances"
	if err := c.do(ctx, "balances", http.MethodGet, path, nil, c.dataHeaders(auth), nil, &resp); err != nil {
		return banking.Balance{}, err
	}
	if len(resp.Data.Balance) == 0 {
		return banking.Balance{Amount: decimal.Zero, Currency: c.baseCurrency}, nil
	}
	b := resp.Data.Balance[0]
	return banking.Balance{Amount: b.Amount, Currency: orDefault(b.Currency, c.baseCurrency)}, nil
}

func (c *sbankClient) ListTransactions(ctx context.Context, auth Auth, accountID string, limit int) ([]banking.Transaction, error) {
	q := url.Values{}
	if l := limitQuery(limit); l != "" {
		q.Set("limit", l)
	}
	var resp sbankTransactionsResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/transactions"
	if err := c.do(ctx, "transactions", http.MethodGet, path, q, c.dataHeaders(auth), nil, &resp); err != nil {
		return nil, err
	}

	rows := make([]rawTransaction, 0, len(resp.Data.Transaction))
	for _, t := range resp.Data.Transaction {
		rows = append(rows, rawTransaction{
			id:        t.TransactionID,
			timestamp: t.BookingDate,
			info:      t.Description,
			amount:    t.Amount,
			currency:  t.Currency,
			indicator: t.Type,
			mcc:       t.MCC,
		})
	}
	return c.normalizeTransactions("transactions", accountID, rows)
}
