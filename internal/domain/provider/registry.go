package provider

import (
	"fmt"
	"sort"
)

// Registry maps provider ids to their endpoints and holds the shared team credentials.
// It is built once at startup and never mutated.
type Registry struct {
	providers   map[ID]Provider
	credentials TeamCredentials
	defaultSet  []ID
}

// NewRegistry validates the given providers and returns a registry.
// defaultSet lists the providers available to users without unlimited access;
// an empty defaultSet means VBank only.
func NewRegistry(creds TeamCredentials, providers []Provider, defaultSet []ID) (*Registry, error) {
	r := &Registry{
		providers:   make(map[ID]Provider, len(providers)),
		credentials: creds,
	}
	for _, p := range providers {
		if !p.ID.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownProvider, p.ID)
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: base URL is required", p.ID)
		}
		if p.DisplayName == "" {
			p.DisplayName = p.ID.Name()
		}
		r.providers[p.ID] = p
	}

	if len(defaultSet) == 0 {
		defaultSet = []ID{VBank}
	}
	for _, id := range defaultSet {
		if _, ok := r.providers[id]; !ok {
			return nil, fmt.Errorf("default provider %s is not registered", id)
		}
	}
	r.defaultSet = append([]ID(nil), defaultSet...)

	return r, nil
}

// Lookup returns the configuration of a registered provider.
func (r *Registry) Lookup(id ID) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %d", ErrUnknownProvider, id)
	}
	return p, nil
}

// All returns every registered provider ordered by id.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Credentials returns the shared team credentials.
func (r *Registry) Credentials() TeamCredentials {
	return r.credentials
}

// DefaultSet returns the providers available to restricted users.
func (r *Registry) DefaultSet() []ID {
	return append([]ID(nil), r.defaultSet...)
}

// Allowed narrows a requested provider filter to what a user may see.
// A nil request means every provider the user is entitled to.
func (r *Registry) Allowed(requested []ID, unlimited bool) []ID {
	entitled := r.DefaultSet()
	if unlimited {
		entitled = entitled[:0]
		for _, p := range r.All() {
			entitled = append(entitled, p.ID)
		}
	}
	if requested == nil {
		return entitled
	}

	allowed := make(map[ID]struct{}, len(entitled))
	for _, id := range entitled {
		allowed[id] = struct{}{}
	}
	out := make([]ID, 0, len(requested))
	for _, id := range requested {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
