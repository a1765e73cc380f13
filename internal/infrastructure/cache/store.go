// Package cache provides the TTL key-value store behind tokens, consents and
// provider data, plus a read-through loader that collapses concurrent misses.
package cache

import (
	"context"
	"time"
)

// Store is a string key-value store where every entry carries a TTL.
// Get reports found=false for missing and expired keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Sealer encrypts values at rest. *crypto.Encryptor satisfies it.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SealedStore encrypts values on Set and decrypts them on Get.
type SealedStore struct {
	inner  Store
	sealer Sealer
}

// NewSealedStore wraps inner so that nothing it holds is readable without the key.
func NewSealedStore(inner Store, sealer Sealer) *SealedStore {
	return &SealedStore{inner: inner, sealer: sealer}
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, found, err := s.inner.Get(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	plain, err := s.sealer.Decrypt(v)
	if err != nil {
		// Unreadable entries (rotated key) behave as misses and get overwritten.
		return "", false, nil
	}
	return plain, true, nil
}

func (s *SealedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	sealed, err := s.sealer.Encrypt(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed, ttl)
}

func (s *SealedStore) Delete(ctx context.Context, keys ...string) error {
	return s.inner.Delete(ctx, keys...)
}

var (
	_ Store = (*SealedStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
