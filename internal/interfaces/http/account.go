package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/aggregation"
	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/shared/identity"
	"github.com/Shawndas06/bank-aggregator/internal/shared/logger"
)

// AggregationService is what the account routes need from *aggregation.Service.
type AggregationService interface {
	LinkedAccounts(ctx context.Context, userID int64, providerIDs []provider.ID) ([]*account.LinkedAccount, error)
	LinkAccount(ctx context.Context, userID int64, providerID provider.ID, displayName string) (*account.LinkedAccount, error)
	GetAccountInfo(ctx context.Context, userID int64, accountID string, providerID provider.ID) (aggregation.AccountInfo, bool, error)
	GetBalance(ctx context.Context, userID int64, accountID string, providerID provider.ID) (banking.Balance, bool, error)
	GetTransactions(ctx context.Context, userID int64, accountID string, providerID provider.ID) ([]banking.Transaction, bool, error)
	ForceSync(ctx context.Context, userID int64, linkedAccountID string) (aggregation.SyncResult, error)
	GetAllBalances(ctx context.Context, userID int64, providerIDs []provider.ID) (aggregation.BalancesResult, error)
	GetAllTransactions(ctx context.Context, userID int64, q aggregation.TransactionQuery) (aggregation.TransactionPage, error)
}

// AccountRenamer is satisfied by *account.Service.
type AccountRenamer interface {
	Rename(ctx context.Context, id string, userID int64, displayName string) (*account.LinkedAccount, error)
}

// AccountHandler serves linked accounts and their provider data.
type AccountHandler struct {
	service  AggregationService
	accounts AccountRenamer
	registry *provider.Registry
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(service AggregationService, accounts AccountRenamer, registry *provider.Registry) *AccountHandler {
	return &AccountHandler{service: service, accounts: accounts, registry: registry}
}

type LinkAccountRequest struct {
	ClientID    provider.ID `json:"clientId" validate:"required,gt=0"`
	AccountName string      `json:"accountName" validate:"max=100"`
}

type RenameAccountRequest struct {
	AccountName string `json:"accountName" validate:"required,max=100"`
}

type AccountInfoResponse struct {
	aggregation.AccountInfo
	Cached bool `json:"cached"`
}

type BalanceResponse struct {
	banking.Balance
	Cached bool `json:"cached"`
}

type TransactionsResponse struct {
	Transactions []banking.Transaction `json:"transactions"`
	Cached       bool                  `json:"cached"`
}

func callerIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "Authentication required")
	}
	return id, ok
}

// HandleListAccounts lists the caller's linked accounts, optionally for one provider.
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	providers, err := providerFilter(r, "client_id", h.registry, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	accounts, err := h.service.LinkedAccounts(r.Context(), id.UserID, providers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []*account.LinkedAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// HandleLinkAccount links the caller's next unlinked account at a provider.
func (h *AccountHandler) HandleLinkAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req LinkAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checkAllowed(req.ClientID, h.registry, id); err != nil {
		writeError(w, r, err)
		return
	}

	la, err := h.service.LinkAccount(r.Context(), id.UserID, req.ClientID, req.AccountName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, la)
}

// HandleGetAccount returns provider details of one account.
func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, pid, ok := h.accountRequest(w, r)
	if !ok {
		return
	}
	info, cached, err := h.service.GetAccountInfo(r.Context(), id.UserID, r.PathValue("id"), pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountInfoResponse{AccountInfo: info, Cached: cached})
}

// HandleGetBalance returns the balance of one account.
func (h *AccountHandler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	id, pid, ok := h.accountRequest(w, r)
	if !ok {
		return
	}
	bal, cached, err := h.service.GetBalance(r.Context(), id.UserID, r.PathValue("id"), pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: bal, Cached: cached})
}

// HandleGetTransactions returns the recent transactions of one account.
func (h *AccountHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	id, pid, ok := h.accountRequest(w, r)
	if !ok {
		return
	}
	txs, cached, err := h.service.GetTransactions(r.Context(), id.UserID, r.PathValue("id"), pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []banking.Transaction{}
	}
	writeJSON(w, http.StatusOK, TransactionsResponse{Transactions: txs, Cached: cached})
}

// accountRequest resolves the caller and the mandatory client_id of the
// single-account routes, where {id} is the provider's account id.
func (h *AccountHandler) accountRequest(w http.ResponseWriter, r *http.Request) (identity.Identity, provider.ID, bool) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return id, 0, false
	}
	if r.PathValue("id") == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Account ID is required")
		return id, 0, false
	}
	pid, err := requiredProvider(r.URL.Query().Get("client_id"), h.registry, id)
	if err != nil {
		writeError(w, r, err)
		return id, 0, false
	}
	return id, pid, true
}

// HandleSync refreshes the cached data of a linked account.
func (h *AccountHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	res, err := h.service.ForceSync(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("Account synced",
		zap.String("linked_account_id", res.LinkedAccountID),
		zap.Int("transactions", res.Transactions))
	writeJSON(w, http.StatusOK, res)
}

// HandleRename changes the display name of a linked account.
func (h *AccountHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req RenameAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	la, err := h.accounts.Rename(r.Context(), r.PathValue("id"), id.UserID, req.AccountName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, la)
}

// HandleAllBalances returns balances across every linked account.
func (h *AccountHandler) HandleAllBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	providers, err := providerFilter(r, "client_ids", h.registry, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.service.GetAllBalances(r.Context(), id.UserID, providers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAllTransactions returns one page of the merged transaction feed.
func (h *AccountHandler) HandleAllTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	q, err := transactionQuery(r, h.registry, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.service.GetAllTransactions(r.Context(), id.UserID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func transactionQuery(r *http.Request, registry *provider.Registry, id identity.Identity) (aggregation.TransactionQuery, error) {
	var q aggregation.TransactionQuery
	var err error
	if q.ProviderIDs, err = providerFilter(r, "client_ids", registry, id); err != nil {
		return q, err
	}
	if q.Offset, err = parseInt(r, "offset"); err != nil {
		return q, err
	}
	if q.Limit, err = parseInt(r, "limit"); err != nil {
		return q, err
	}
	if q.StartDate, q.EndDate, err = parseDateRange(r); err != nil {
		return q, err
	}
	return q, nil
}
