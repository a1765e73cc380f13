package openbanking

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/infrastructure/cache"
	obclient "github.com/Shawndas06/bank-aggregator/internal/infrastructure/openbanking"
)

// ConsentManager creates and caches data-access consents. Pending consents are
// cached like approved ones so a pending request is not re-issued on every read.
type ConsentManager struct {
	registry  *provider.Registry
	providers map[provider.ID]obclient.Provider
	tokens    *TokenManager
	loader    *cache.Loader
	cfg       Config
}

// NewConsentManager creates a consent manager.
func NewConsentManager(registry *provider.Registry, providers map[provider.ID]obclient.Provider, tokens *TokenManager, loader *cache.Loader, cfg Config) *ConsentManager {
	return &ConsentManager{
		registry:  registry,
		providers: providers,
		tokens:    tokens,
		loader:    loader,
		cfg:       cfg.withDefaults(),
	}
}

func consentKey(userID int64, providerID provider.ID) string {
	return cache.Key("consent", userID, int(providerID))
}

// GetOrCreateConsent returns the cached consent for (user, provider) or requests one.
// A cached grant that lacks some of the requested permissions is replaced by a
// grant covering both sets.
func (m *ConsentManager) GetOrCreateConsent(ctx context.Context, userID int64, providerID provider.ID, permissions []string) (ConsentGrant, error) {
	ctx, span := obTracer.Start(ctx, "openbanking.GetOrCreateConsent")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("provider", providerID.Name()))

	p, err := lookupProvider(m.providers, providerID)
	if err != nil {
		return ConsentGrant{}, err
	}

	key := consentKey(userID, providerID)
	grant, _, err := cache.Load(ctx, m.loader, key, m.cfg.ConsentTTL, func(ctx context.Context) (ConsentGrant, error) {
		return m.request(ctx, p, userID, permissions)
	})
	if err == nil && !grant.Covers(permissions) {
		wanted := unionPermissions(grant.Permissions, permissions)
		grant, err = cache.Refresh(ctx, m.loader, key, m.cfg.ConsentTTL, func(ctx context.Context) (ConsentGrant, error) {
			return m.request(ctx, p, userID, wanted)
		})
	}
	if err == nil {
		return grant, nil
	}

	if m.cfg.Mode == Production {
		return ConsentGrant{}, fmt.Errorf("failed to obtain %s consent: %w", providerID, err)
	}

	syntheticTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "consent"), attribute.String("provider", providerID.Name())))
	m.cfg.Logger.Warn("provider consent unavailable, using synthetic consent",
		zap.Bool("synthetic", true),
		zap.String("provider", providerID.Name()),
		zap.Int64("user_id", userID),
		zap.Error(err),
	)
	return ConsentGrant{
		ID:          fmt.Sprintf("%sconsent-%s-%d", syntheticPrefix, providerID.Name(), userID),
		Status:      obclient.ConsentApproved,
		Permissions: unionPermissions(nil, permissions),
		Synthetic:   true,
	}, nil
}

// Invalidate drops the cached consent for (user, provider).
func (m *ConsentManager) Invalidate(ctx context.Context, userID int64, providerID provider.ID) error {
	return m.loader.Invalidate(ctx, consentKey(userID, providerID))
}

func (m *ConsentManager) request(ctx context.Context, p obclient.Provider, userID int64, permissions []string) (ConsentGrant, error) {
	token, err := m.tokens.GetToken(ctx, userID, p.ID())
	if err != nil {
		return ConsentGrant{}, err
	}
	if IsSynthetic(token) {
		return ConsentGrant{}, fmt.Errorf("%w: no real token for %s", banking.ErrProviderUnavailable, p.ID())
	}

	creds := m.registry.Credentials()
	resp, err := p.RequestConsent(ctx, token, obclient.ConsentRequest{
		ClientID:           creds.ClientIDFor(userID),
		Permissions:        permissions,
		Reason:             consentReason,
		RequestingBank:     creds.ClientID,
		RequestingBankName: creds.TeamName,
	})
	if err != nil {
		return ConsentGrant{}, err
	}
	if resp.Status == obclient.ConsentRejected {
		// Rejections are not cached; the next read asks again.
		return ConsentGrant{}, fmt.Errorf("%w: %s rejected the consent request", banking.ErrProviderUnavailable, p.ID())
	}

	m.cfg.Logger.Info("consent created",
		zap.String("provider", p.ID().Name()),
		zap.Int64("user_id", userID),
		zap.String("status", string(resp.Status)),
	)
	return ConsentGrant{
		ID:          resp.ConsentID,
		RequestID:   resp.RequestID,
		Status:      resp.Status,
		Permissions: unionPermissions(nil, permissions),
	}, nil
}

func unionPermissions(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, p := range append(append([]string(nil), a...), b...) {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
