package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	cacheTracer    = otel.Tracer("bank-aggregator/cache")
	cacheMeter     = otel.Meter("bank-aggregator/cache")
	cacheHits, _   = cacheMeter.Int64Counter("cache.hits", metric.WithDescription("Cache lookups served from the store"))
	cacheMisses, _ = cacheMeter.Int64Counter("cache.misses", metric.WithDescription("Cache lookups that reached the source"))
	cacheErrors, _ = cacheMeter.Int64Counter("cache.errors", metric.WithDescription("Store failures treated as misses"))
)

// Loader implements read-through caching of JSON values on top of a Store.
// Concurrent misses for one key share a single fetch.
type Loader struct {
	store  Store
	group  singleflight.Group
	logger *zap.Logger
}

// NewLoader creates a Loader. A nil logger disables logging.
func NewLoader(store Store, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, logger: logger}
}

// Store returns the underlying store.
func (l *Loader) Store() Store {
	return l.store
}

// Invalidate removes keys from the store.
func (l *Loader) Invalidate(ctx context.Context, keys ...string) error {
	return l.store.Delete(ctx, keys...)
}

// Load returns the cached value for key, or calls fetch, stores its result with
// ttl and returns it. cached reports whether the value came from the store.
// Failed fetches are never stored. Store failures degrade to a fetch.
func Load[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Load")
	defer span.End()
	kind := attribute.String("cache.kind", kindOf(key))

	if v, ok := lookup[T](ctx, l, key); ok {
		cacheHits.Add(ctx, 1, metric.WithAttributes(kind))
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return v, true, nil
	}
	cacheMisses.Add(ctx, 1, metric.WithAttributes(kind))
	span.SetAttributes(attribute.Bool("cache.hit", false))

	res, err := share(ctx, l, key, func(ctx context.Context) (any, error) {
		// A concurrent caller may have filled the key while we waited for the lock.
		if v, ok := lookup[T](ctx, l, key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		l.put(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return res.(T), false, nil
}

// Refresh calls fetch unconditionally and overwrites the stored value.
func Refresh[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Refresh")
	defer span.End()

	res, err := share(ctx, l, "refresh:"+key, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		l.put(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// share runs fn once per key across concurrent callers. The shared call keeps
// the first caller's values but not its cancellation, so one caller giving up
// does not fail the others. Each caller still returns when its own ctx ends.
func share(ctx context.Context, l *Loader, key string, fn func(context.Context) (any, error)) (any, error) {
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		return fn(shared)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func lookup[T any](ctx context.Context, l *Loader, key string) (T, bool) {
	var v T
	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		cacheErrors.Add(ctx, 1)
		l.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return v, false
	}
	if !found {
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		l.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return v, false
	}
	return v, true
}

func (l *Loader) put(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		l.logger.Error("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := l.store.Set(ctx, key, string(raw), ttl); err != nil {
		cacheErrors.Add(ctx, 1)
		l.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func kindOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}

// Key joins a resource kind with its identifiers: Key("balance", 7, "acc-1") = "balance:7:acc-1".
func Key(kind string, parts ...any) string {
	k := kind
	for _, p := range parts {
		k += ":" + fmt.Sprint(p)
	}
	return k
}
