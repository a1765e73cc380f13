package openbanking

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
)

// vbankClient speaks the canonical camelCase dialect.
type vbankClient struct {
	client
}

type vbankAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type vbankAccountsResponse struct {
	Data struct {
		Account []struct {
			AccountID   string `json:"accountId"`
			Nickname    string `json:"nickname"`
			Currency    string `json:"currency"`
			AccountType string `json:"accountType"`
		} `json:"account"`
	} `json:"data"`
}

type vbankBalancesResponse struct {
	Data struct {
		Balance []struct {
			Amount vbankAmount `json:"amount"`
		} `json:"balance"`
	} `json:"data"`
}

type vbankTransactionsResponse struct {
	Data struct {
		Transaction []struct {
			TransactionID          string      `json:"transactionId"`
			BookingDateTime        string      `json:"bookingDateTime"`
			TransactionInformation string      `json:"transactionInformation"`
			Amount                 vbankAmount `json:"amount"`
			CreditDebitIndicator   string      `json:"creditDebitIndicator"`
			MerchantCategoryCode   string      `json:"merchantCategoryCode"`
		} `json:"transaction"`
	} `json:"data"`
}

func (c *vbankClient) ListAccounts(ctx context.Context, auth Auth) ([]banking.AccountSummary, error) {
	q := url.Values{}
	q.Set("client_id", auth.ClientID)

	var resp vbankAccountsResponse
	if err := c.do(ctx, "accounts", http.MethodGet, "/accounts", q, c.dataHeaders(auth), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]banking.AccountSummary, 0, len(resp.Data.Account))
	for _, a := range resp.Data.Account {
		out = append(out, banking.AccountSummary{
			ProviderAccountID: a.AccountID,
			Name:              orDefault(a.Nickname, banking.DefaultAccountName),
			Currency:          orDefault(a.Currency, c.baseCurrency),
			AccountType:       a.AccountType,
		})
	}
	return out, nil
}

func (c *vbankClient) GetBalance(ctx context.Context, auth Auth, accountID string) (banking.Balance, error) {
	var resp vbankBalancesResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/balances"
	if err := c.do(ctx, "balances", http.MethodGet, path, nil, c.dataHeaders(auth), nil, &resp); err != nil {
		return banking.Balance{}, err
	}
	if len(resp.Data.Balance) == 0 {
		return banking.Balance{Amount: decimal.Zero, Currency: c.baseCurrency}, nil
	}
	b := resp.Data.Balance[0].Amount
	return banking.Balance{Amount: b.Amount, Currency: orDefault(b.Currency, c.baseCurrency)}, nil
}

func (c *vbankClient) ListTransactions(ctx context.Context, auth Auth, accountID string, limit int) ([]banking.Transaction, error) {
	q := url.Values{}
	if l := limitQuery(limit); l != "" {
		q.Set("limit", l)
	}
	var resp vbankTransactionsResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/transactions"
	if err := c.do(ctx, "transactions", http.MethodGet, path, q, c.dataHeaders(auth), nil, &resp); err != nil {
		return nil, err
	}

	rows := make([]rawTransaction, 0, len(resp.Data.Transaction))
	for _, t := range resp.Data.Transaction {
		rows = append(rows, rawTransaction{
			id:        t.TransactionID,
			timestamp: t.BookingDateTime,
			info:      t.TransactionInformation,
			amount:    t.Amount.Amount,
			currency:  t.Amount.Currency,
			indicator: t.CreditDebitIndicator,
			mcc:       t.MerchantCategoryCode,
		})
	}
	return c.normalizeTransactions("transactions", accountID, rows)
}
