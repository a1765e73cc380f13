// Package app wires the aggregation core from configuration. Both binaries
// build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/aggregation"
	"github.com/Shawndas06/bank-aggregator/internal/domain/analytics"
	"github.com/Shawndas06/bank-aggregator/internal/domain/openbanking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/infrastructure/cache"
	"github.com/Shawndas06/bank-aggregator/internal/infrastructure/crypto"
	obclient "github.com/Shawndas06/bank-aggregator/internal/infrastructure/openbanking"
	"github.com/Shawndas06/bank-aggregator/internal/infrastructure/postgres"
	"github.com/Shawndas06/bank-aggregator/internal/shared/config"
)

// Core holds the domain services shared by the API server and the admin CLI.
type Core struct {
	DB          *postgres.DB
	Registry    *provider.Registry
	Accounts    *account.Service
	Gateway     *openbanking.Gateway
	Aggregation *aggregation.Service
	Analytics   *analytics.Engine
	Mode        openbanking.Mode

	closers []func() error
}

// NewCore connects to Postgres and the cache and builds every domain service.
func NewCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Core, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Core{Mode: openbanking.ModeFor(cfg.IsProduction())}

	registry, err := provider.NewRegistry(cfg.Banks.Credentials(), cfg.Banks.Providers(), cfg.Banks.DefaultProviders)
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}
	c.Registry = registry

	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)
	logger.Info("Connected to database", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	if err := db.Migrate(ctx, logger); err != nil {
		c.Close()
		return nil, err
	}

	store, closeStore, err := cache.NewStore(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cache.WithLogger(logger), cache.WithInMemoryFallback(cfg.Redis.FallbackToMemory))
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, closeStore)

	if cfg.Cache.EncryptionSecret != "" {
		enc, err := crypto.NewEncryptorFromSecret(cfg.Cache.EncryptionSecret)
		if err != nil {
			c.Close()
			return nil, err
		}
		store = cache.NewSealedStore(store, enc)
	} else {
		logger.Warn("Cache encryption secret not set, provider tokens are cached in plain text")
	}
	loader := cache.NewLoader(store, logger)

	providers, err := obclient.NewAll(registry, obclient.Options{
		HTTPClient:   obclient.NewHTTPClient(cfg.HTTPClient.ConnectTimeout, cfg.HTTPClient.Timeout),
		BaseCurrency: cfg.App.BaseCurrency,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	obCfg := openbanking.Config{
		Mode:         c.Mode,
		BaseCurrency: cfg.App.BaseCurrency,
		TokenTTL:     cfg.Cache.TokenTTL,
		ConsentTTL:   cfg.Cache.ConsentTTL,
		Logger:       logger,
	}
	tokens := openbanking.NewTokenManager(registry, providers, loader, obCfg)
	consents := openbanking.NewConsentManager(registry, providers, tokens, loader, obCfg)
	c.Gateway = openbanking.NewGateway(registry, providers, tokens, consents, obCfg)

	c.Accounts = account.NewService(postgres.NewLinkedAccountRepository(db))
	c.Aggregation = aggregation.NewService(registry, c.Gateway, c.Accounts, loader, aggregation.Config{
		DataTTL: cfg.Cache.DataTTL,
		Logger:  logger,
	})
	c.Analytics = analytics.NewEngine(c.Aggregation, nil, logger)

	logger.Info("Aggregation core ready",
		zap.Stringer("mode", c.Mode),
		zap.Int("providers", len(registry.All())))
	return c, nil
}

// Close releases connections in reverse order of acquisition.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
