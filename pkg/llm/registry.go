package llm

import (
	"fmt"

	"github.com/parley-ai/parley/pkg/types"
)

// Registry holds the adapter for each configured provider. Selection is a
// plain map lookup on the provider enum — no reflection, no dynamic dispatch.
//
// A Registry is populated once at startup and read-only afterwards, so it
// needs no locking.
type Registry struct {
	adapters map[types.Provider]Adapter
}

// NewRegistry creates a registry containing the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[types.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Register adds or replaces the adapter for its provider.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Provider()] = a
}

// Get returns the adapter for a provider, or ErrUnknownProvider.
func (r *Registry) Get(p types.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return a, nil
}

// Providers returns the registered provider set.
func (r *Registry) Providers() []types.Provider {
	out := make([]types.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
