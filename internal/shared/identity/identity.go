// Package identity carries the caller resolved by the upstream auth layer.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderTier   = "X-User-Tier"

	TierPremium = "premium"
)

// ErrMissingIdentity means the request carried no usable user id.
var ErrMissingIdentity = errors.New("missing identity")

// Identity is the authenticated caller. Unlimited users see every provider;
// the rest are restricted to the registry's default set.
type Identity struct {
	UserID    int64
	Unlimited bool
}

// FromHeaders reads the identity forwarded by the auth gateway.
func FromHeaders(h http.Header) (Identity, error) {
	raw := strings.TrimSpace(h.Get(HeaderUserID))
	if raw == "" {
		return Identity{}, ErrMissingIdentity
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, fmt.Errorf("%w: invalid %s %q", ErrMissingIdentity, HeaderUserID, raw)
	}
	return Identity{
		UserID:    id,
		Unlimited: strings.EqualFold(strings.TrimSpace(h.Get(HeaderTier)), TierPremium),
	}, nil
}

type contextKey struct{}

// WithContext stores the identity in ctx.
func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithContext.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
