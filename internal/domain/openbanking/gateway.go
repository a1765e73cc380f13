package openbanking

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	obclient "github.com/Shawndas06/bank-aggregator/internal/infrastructure/openbanking"
)

// Gateway is the single entry point for provider reads. It resolves the
// user's token and consent, then calls the provider variant.
type Gateway struct {
	registry  *provider.Registry
	providers map[provider.ID]obclient.Provider
	tokens    *TokenManager
	consents  *ConsentManager
	cfg       Config
}

// NewGateway creates a gateway.
func NewGateway(registry *provider.Registry, providers map[provider.ID]obclient.Provider, tokens *TokenManager, consents *ConsentManager, cfg Config) *Gateway {
	return &Gateway{
		registry:  registry,
		providers: providers,
		tokens:    tokens,
		consents:  consents,
		cfg:       cfg.withDefaults(),
	}
}

// Mode returns the failure mode the gateway runs in.
func (g *Gateway) Mode() Mode {
	return g.cfg.Mode
}

type authorization struct {
	provider  obclient.Provider
	auth      obclient.Auth
	synthetic bool
}

func (g *Gateway) authorize(ctx context.Context, userID int64, providerID provider.ID, perm string) (authorization, error) {
	p, err := lookupProvider(g.providers, providerID)
	if err != nil {
		return authorization{}, err
	}

	token, err := g.tokens.GetToken(ctx, userID, providerID)
	if err != nil {
		return authorization{}, err
	}
	grant, err := g.consents.GetOrCreateConsent(ctx, userID, providerID, []string{perm})
	if err != nil {
		return authorization{}, err
	}
	if grant.Pending() {
		return authorization{}, fmt.Errorf("%s consent %s: %w", providerID, grant.RequestID, banking.ErrConsentPending)
	}
	if !grant.Covers([]string{perm}) {
		return authorization{}, fmt.Errorf("%w: %s consent lacks %s", banking.ErrProviderUnavailable, providerID, perm)
	}

	return authorization{
		provider: p,
		auth: obclient.Auth{
			Token:     token,
			ConsentID: grant.ID,
			ClientID:  g.registry.Credentials().ClientIDFor(userID),
		},
		synthetic: IsSynthetic(token) || grant.Synthetic,
	}, nil
}

// handleFailure converts a provider error into the error callers see, clearing
// credentials the provider no longer accepts. It returns nil when a synthetic
// substitute should be served instead.
func (g *Gateway) handleFailure(ctx context.Context, userID int64, providerID provider.ID, op string, err error) error {
	var perr *obclient.ProviderError
	if errors.As(err, &perr) {
		switch perr.StatusCode {
		case http.StatusUnauthorized:
			if ierr := g.tokens.Invalidate(ctx, userID, providerID); ierr != nil {
				g.cfg.Logger.Warn("failed to invalidate token", zap.Error(ierr))
			}
		case http.StatusForbidden:
			if errors.Is(err, banking.ErrConsentPending) {
				break
			}
			if ierr := g.consents.Invalidate(ctx, userID, providerID); ierr != nil {
				g.cfg.Logger.Warn("failed to invalidate consent", zap.Error(ierr))
			}
		}
	}

	if errors.Is(err, banking.ErrConsentPending) || g.cfg.Mode == Production {
		return err
	}
	g.logSynthetic(ctx, providerID, userID, op, err)
	return nil
}

func (g *Gateway) logSynthetic(ctx context.Context, providerID provider.ID, userID int64, op string, cause error) {
	syntheticTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", op), attribute.String("provider", providerID.Name())))
	fields := []zap.Field{
		zap.Bool("synthetic", true),
		zap.String("provider", providerID.Name()),
		zap.Int64("user_id", userID),
		zap.String("op", op),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	g.cfg.Logger.Warn("serving synthetic provider data", fields...)
}

// ListAccounts returns the accounts the provider holds for the user.
func (g *Gateway) ListAccounts(ctx context.Context, userID int64, providerID provider.ID) ([]banking.AccountSummary, error) {
	ctx, span := obTracer.Start(ctx, "openbanking.ListAccounts")
	defer span.End()

	a, err := g.authorize(ctx, userID, providerID, PermReadAccounts)
	if err != nil {
		return nil, err
	}
	if a.synthetic {
		g.logSynthetic(ctx, providerID, userID, "accounts", nil)
		return g.syntheticAccounts(userID, providerID), nil
	}

	accounts, err := a.provider.ListAccounts(ctx, a.auth)
	if err != nil {
		if herr := g.handleFailure(ctx, userID, providerID, "accounts", err); herr != nil {
			return nil, herr
		}
		return g.syntheticAccounts(userID, providerID), nil
	}
	return accounts, nil
}

// GetBalance returns the current balance of one provider account.
func (g *Gateway) GetBalance(ctx context.Context, userID int64, providerID provider.ID, accountID string) (banking.Balance, error) {
	ctx, span := obTracer.Start(ctx, "openbanking.GetBalance")
	defer span.End()

	a, err := g.authorize(ctx, userID, providerID, PermReadBalances)
	if err != nil {
		return banking.Balance{}, err
	}
	if a.synthetic {
		g.logSynthetic(ctx, providerID, userID, "balances", nil)
		return g.syntheticBalance(userID, providerID, accountID), nil
	}

	bal, err := a.provider.GetBalance(ctx, a.auth, accountID)
	if err != nil {
		if herr := g.handleFailure(ctx, userID, providerID, "balances", err); herr != nil {
			return banking.Balance{}, herr
		}
		return g.syntheticBalance(userID, providerID, accountID), nil
	}
	return bal, nil
}

// ListTransactions returns up to limit recent transactions of one provider account.
func (g *Gateway) ListTransactions(ctx context.Context, userID int64, providerID provider.ID, accountID string, limit int) ([]banking.Transaction, error) {
	ctx, span := obTracer.Start(ctx, "openbanking.ListTransactions")
	defer span.End()

	a, err := g.authorize(ctx, userID, providerID, PermReadTransactions)
	if err != nil {
		return nil, err
	}
	if a.synthetic {
		g.logSynthetic(ctx, providerID, userID, "transactions", nil)
		return g.syntheticTransactions(userID, providerID, accountID, limit), nil
	}

	txs, err := a.provider.ListTransactions(ctx, a.auth, accountID, limit)
	if err != nil {
		if herr := g.handleFailure(ctx, userID, providerID, "transactions", err); herr != nil {
			return nil, herr
		}
		return g.syntheticTransactions(userID, providerID, accountID, limit), nil
	}
	return txs, nil
}

// Consent returns the user's consent at a provider, creating it with the full
// read set when needed. Linking uses it so later reads need no widening.
func (g *Gateway) Consent(ctx context.Context, userID int64, providerID provider.ID) (ConsentGrant, error) {
	return g.consents.GetOrCreateConsent(ctx, userID, providerID, ReadPermissions)
}
