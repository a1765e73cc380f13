package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// FactoryOption configures NewStore.
type FactoryOption func(*factory)

type factory struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger used to report the chosen backend.
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to MemoryStore.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStore connects to Redis, falling back to an in-memory store when allowed.
// The returned close func releases the backend.
func NewStore(cfg RedisConfig, opts ...FactoryOption) (Store, func() error, error) {
	f := &factory{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}

	store, err := NewRedisStore(cfg)
	if err == nil {
		f.logger.Info("using Redis cache", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
		return store, store.Close, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("redis required but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory cache; entries are not shared between instances",
		zap.Error(err),
	)
	return NewMemoryStore(), func() error { return nil }, nil
}
