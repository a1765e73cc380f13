package openbanking

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
)

// abankClient handles the PascalCase OBIE dialect.
type abankClient struct {
	client
}

const interimAvailable = "InterimAvailable"

type abankAmount struct {
	Amount   decimal.Decimal `json:"Amount"`
	Currency string          `json:"Currency"`
}

type abankAccountsResponse struct {
	Data struct {
		Account []struct {
			AccountID      string `json:"AccountId"`
			Nickname       string `json:"Nickname"`
			Currency       string `json:"Currency"`
			AccountType    string `json:"AccountType"`
			AccountSubType string `json:"AccountSubType"`
		} `json:"Account"`
	} `json:"Data"`
}

type abankBalancesResponse struct {
	Data struct {
		Balance []struct {
			Amount abankAmount `json:"Amount"`
			Type   string      `json:"Type"`
		} `json:"Balance"`
	} `json:"Data"`
}

type abankTransactionsResponse struct {
	Data struct {
		Transaction []struct {
			TransactionID          string      `json:"TransactionId"`
			BookingDateTime        string      `json:"BookingDateTime"`
			TransactionInformation string      `json:"TransactionInformation"`
			Amount                 abankAmount `json:"Amount"`
			CreditDebitIndicator   string      `json:"CreditDebitIndicator"`
			MerchantDetails        struct {
				MerchantCategoryCode string `json:"MerchantCategoryCode"`
			} `json:"MerchantDetails"`
		} `json:"Transaction"`
	} `json:"Data"`
}

func (c *abankClient) ListAccounts(ctx context.Context, auth Auth) ([]banking.AccountSummary, error) {
	q := url.Values{}
	q.Set("client_id", auth.ClientID)

	var resp abankAccountsResponse
	if err := c.do(ctx, "accounts", http.MethodGet, "/accounts", q, c.dataHeaders(auth), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]banking.AccountSummary, 0, len(resp.Data.Account))
	for _, a := range resp.Data.Account {
		accountType := a.AccountType
		if accountType == "" {
			accountType = a.AccountSubType
		}
		out = append(out, banking.AccountSummary{
			ProviderAccountID: a.AccountID,
			Name:              orDefault(a.Nickname, banking.DefaultAccountName),
			Currency:          orDefault(a.Currency, c.baseCurrency),
			AccountType:       accountType,
		})
	}
	return out, nil
}

func (c *abankClient) GetBalance(ctx context.Context, auth Auth, accountID string) (banking.Balance, error) {
	var resp abankBalancesResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/balances"
	if err := c.do(ctx, "balances", http.MethodGet, path, nil, c.dataHeaders(auth), nil, &resp); err != nil {
		return banking.Balance{}, err
	}
	balances := resp.Data.Balance
	if len(balances) == 0 {
		return banking.Balance{Amount: decimal.Zero, Currency: c.baseCurrency}, nil
	}

	chosen := balances[0].Amount
	for _, b := range balances {
		if b.Type == interimAvailable {
			chosen = b.Amount
			break
		}
	}
	return banking.Balance{Amount: chosen.Amount, Currency: orDefault(chosen.Currency, c.baseCurrency)}, nil
}

func (c *abankClient) ListTransactions(ctx context.Context, auth Auth, accountID string, limit int) ([]banking.Transaction, error) {
	q := url.Values{}
	if l := limitQuery(limit); l != "" {
		q.Set("limit", l)
	}
	var resp abankTransactionsResponse
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
			mcc:       t.MerchantDetails.MerchantCategoryCode,
		})
	}
	return c.normalizeTransactions("transactions", accountID, rows)
}
