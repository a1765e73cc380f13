package openbanking

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

// The same two movements, expressed in each bank's dialect.
var dialects = map[provider.ID]struct {
	accounts     string
	balances     string
	transactions string
}{
	provider.VBank: {
		accounts: `{"data":{"account":[{"accountId":"acc-1","nickname":"Salary","currency":"RUB","accountType":"Personal"}]}}`,
		balances: `{"data":{"balance":[{"amount":{"amount":"1520.75","currency":"RUB"}}]}}`,
		transactions: `{"data":{"transaction":[
			{"transactionId":"t1","bookingDateTime":"2025-03-10T12:30:00Z","transactionInformation":"Pyaterochka","amount":{"amount":"350.40","currency":"RUB"},"creditDebitIndicator":"Debit","merchantCategoryCode":"5411"},
			{"transactionId":"t2","bookingDateTime":"2025-03-05T09:00:00Z","transactionInformation":"Salary","amount":{"amount":"50000.00","currency":"RUB"},"creditDebitIndicator":"Credit"}
		]}}`,
	},
	provider.SBank: {
		accounts: `{"data":{"account":[{"accountId":"acc-1","name":"Salary","currency":"RUB","accountType":"Personal"}]}}`,
		balances: `{"data":{"balance":[{"amount":1520.75,"currency":"RUB"}]}}`,
		transactions: `{"data":{"transaction":[
			{"transactionId":"t1","bookingDate":"2025-03-10T12:30:00Z","description":"Pyaterochka","amount":350.40,"currency":"RUB","type":"debit","mcc":"5411"},
			{"transactionId":"t2","bookingDate":"2025-03-05T09:00:00Z","description":"Salary","amount":50000.00,"currency":"RUB","type":"credit"}
		]}}`,
	},
	provider.ABank: {
		accounts: `{"Data":{"Account":[{"AccountId":"acc-1","Nickname":"Salary","Currency":"RUB","AccountType":"Personal"}]}}`,
		balances: `{"Data":{"Balance":[
			{"Amount":{"Amount":"1600.00","Currency":"RUB"},"Type":"ClosingBooked"},
			{"Amount":{"Amount":"1520.75","Currency":"RUB"},"Type":"InterimAvailable"}
		]}}`,
		transactions: `{"Data":{"Transaction":[
			{"TransactionId":"t1","BookingDateTime":"2025-03-10T12:30:00Z","TransactionInformation":"Pyaterochka","Amount":{"Amount":"350.40","Currency":"RUB"},"CreditDebitIndicator":"Debit","MerchantDetails":{"MerchantCategoryCode":"5411"}},
			{"TransactionId":"t2","BookingDateTime":"2025-03-05T09:00:00Z","TransactionInformation":"Salary","Amount":{"Amount":"50000.00","Currency":"RUB"},"CreditDebitIndicator":"Credit"}
		]}}`,
	},
}

func dialectServer(id provider.ID) http.HandlerFunc {
	d := dialects[id]
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts":
			writeJSON(w, http.StatusOK, d.accounts)
		case "/accounts/acc-1/balances":
			writeJSON(w, http.StatusOK, d.balances)
		case "/accounts/acc-1/transactions":
			writeJSON(w, http.StatusOK, d.transactions)
		default:
			http.NotFound(w, r)
		}
	}
}

func TestVariants_IdenticalNormalization(t *testing.T) {
	auth := Auth{Token: "tok", ConsentID: "c", ClientID: "team222-1"}
	ctx := context.Background()

	wantAccounts := []banking.AccountSummary{{ProviderAccountID: "acc-1", Name: "Salary", Currency: "RUB", AccountType: "Personal"}}
	wantTx := []banking.Transaction{
		{
			ID:                   "t1",
			Timestamp:            time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC),
			Description:          "Pyaterochka",
			Amount:               decimalOf("350.40"),
			Currency:             "RUB",
			Direction:            banking.Debit,
			MerchantCategoryCode: "5411",
		},
		{
			ID:          "t2",
			Timestamp:   time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
			Description: "Salary",
			Amount:      decimalOf("50000"),
			Currency:    "RUB",
			Direction:   banking.Credit,
		},
	}

	for _, id := range provider.AllIDs() {
		t.Run(id.Name(), func(t *testing.T) {
			p := newTestProvider(t, id, dialectServer(id))

			accounts, err := p.ListAccounts(ctx, auth)
			require.NoError(t, err)
			assert.Equal(t, wantAccounts, accounts)

			bal, err := p.GetBalance(ctx, auth, "acc-1")
			require.NoError(t, err)
			assert.True(t, decimalOf("1520.75").Equal(bal.Amount), "got %s", bal.Amount)
			assert.Equal(t, "RUB", bal.Currency)

			txs, err := p.ListTransactions(ctx, auth, "acc-1", 50)
			require.NoError(t, err)
			require.Len(t, txs, len(wantTx))
			for i := range wantTx {
				got, want := txs[i], wantTx[i]
				assert.Equal(t, want.ID, got.ID)
				assert.True(t, want.Timestamp.Equal(got.Timestamp))
				assert.Equal(t, want.Description, got.Description)
				assert.True(t, want.Amount.Equal(got.Amount), "amount %s != %s", got.Amount, want.Amount)
				assert.Equal(t, want.Currency, got.Currency)
				assert.Equal(t, want.Direction, got.Direction)
				assert.Equal(t, want.MerchantCategoryCode, got.MerchantCategoryCode)
			}
		})
	}
}

func TestVariants_Defaults(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, provider.VBank, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts":
			writeJSON(w, http.StatusOK, `{"data":{"account":[{"accountId":"acc-2"}]}}`)
		case "/accounts/acc-2/balances":
			writeJSON(w, http.StatusOK, `{"data":{"balance":[]}}`)
		case "/accounts/acc-2/transactions":
			writeJSON(w, http.StatusOK, `{"data":{"transaction":[{"bookingDateTime":"2025-03-01","amount":{"amount":"-12.5"}}]}}`)
		}
	})

	accounts, err := p.ListAccounts(ctx, Auth{})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, banking.DefaultAccountName, accounts[0].Name)
	assert.Equal(t, "RUB", accounts[0].Currency)

	bal, err := p.GetBalance(ctx, Auth{}, "acc-2")
	require.NoError(t, err)
	assert.True(t, bal.Amount.IsZero())
	assert.Equal(t, "RUB", bal.Currency)

	txs, err := p.ListTransactions(ctx, Auth{}, "acc-2", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "acc-2-0", txs[0].ID)
	assert.True(t, decimalOf("12.5").Equal(txs[0].Amount), "amount is made non-negative")
	assert.Equal(t, banking.Debit, txs[0].Direction)
	assert.Equal(t, "", txs[0].MerchantCategoryCode)
	assert.Equal(t, "RUB", txs[0].Currency)
}

func TestVariants_LimitQuery(t *testing.T) {
	p := newTestProvider(t, provider.SBank, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, `{"data":{"transaction":[]}}`)
	})

	txs, err := p.ListTransactions(context.Background(), Auth{}, "acc-1", 25)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestVariants_MalformedTimestamp(t *testing.T) {
	p := newTestProvider(t, provider.ABank, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"Data":{"Transaction":[{"TransactionId":"x","BookingDateTime":"yesterday"}]}}`)
	})

	_, err := p.ListTransactions(context.Background(), Auth{}, "acc-1", 10)
	assert.ErrorIs(t, err, banking.ErrProviderUnavailable)
}

func TestABank_BalanceWithoutInterim(t *testing.T) {
	p := newTestProvider(t, provider.ABank, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"Data":{"Balance":[{"Amount":{"Amount":"10.00","Currency":"USD"},"Type":"ClosingBooked"}]}}`)
	})

	bal, err := p.GetBalance(context.Background(), Auth{}, "acc-1")
	require.NoError(t, err)
	assert.True(t, decimalOf("10").Equal(bal.Amount))
	assert.Equal(t, "USD", bal.Currency)
}
