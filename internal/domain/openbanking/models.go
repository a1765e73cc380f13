// Package openbanking manages per-user provider credentials (tokens and
// consents) and routes account reads to the right provider.
package openbanking

import (
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	obclient "github.com/Shawndas06/bank-aggregator/internal/infrastructure/openbanking"
)

// Mode decides what happens when a provider cannot be reached.
type Mode int

const (
	// Production surfaces provider failures as errors.
	Production Mode = iota
	// Development substitutes deterministic synthetic credentials and data.
	Development
)

// ModeFor maps the deployment environment to a Mode.
func ModeFor(production bool) Mode {
	if production {
		return Production
	}
	return Development
}

func (m Mode) String() string {
	if m == Production {
		return "production"
	}
	return "development"
}

// Read permissions requested from providers.
const (
	PermReadAccounts     = "ReadAccountsDetail"
	PermReadBalances     = "ReadBalances"
	PermReadTransactions = "ReadTransactionsDetail"
)

// ReadPermissions is the full read set. Data reads ask only for the one they need.
var ReadPermissions = []string{PermReadAccounts, PermReadBalances, PermReadTransactions}

const (
	DefaultTokenTTL   = 23 * time.Hour
	DefaultConsentTTL = 4 * time.Hour

	consentReason = "Account aggregation"
)

// ConsentGrant is a cached consent for one (user, provider) pair.
type ConsentGrant struct {
	ID          string                 `json:"id"`
	RequestID   string                 `json:"requestId,omitempty"`
	Status      obclient.ConsentStatus `json:"status"`
	Permissions []string               `json:"permissions"`
	Synthetic   bool                   `json:"synthetic,omitempty"`
}

// Pending reports whether the provider has not approved the consent yet.
func (g ConsentGrant) Pending() bool {
	return g.Status == obclient.ConsentPending
}

// Covers reports whether the grant includes every permission in perms.
func (g ConsentGrant) Covers(perms []string) bool {
	for _, p := range perms {
		if !slices.Contains(g.Permissions, p) {
			return false
		}
	}
	return true
}

// Config is shared by the token manager, consent manager and gateway.
type Config struct {
	Mode         Mode
	BaseCurrency string
	TokenTTL     time.Duration
	ConsentTTL   time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BaseCurrency == "" {
		c.BaseCurrency = "RUB"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.ConsentTTL <= 0 {
		c.ConsentTTL = DefaultConsentTTL
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

var (
	obTracer          = otel.Tracer("bank-aggregator/openbanking")
	obMeter           = otel.Meter("bank-aggregator/openbanking")
	syntheticTotal, _ = obMeter.Int64Counter("provider.synthetic", metric.WithDescription("Synthetic substitutions for unreachable providers"))
)
