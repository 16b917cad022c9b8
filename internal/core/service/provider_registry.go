package service

import (
	"fmt"
	"sort"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/port/output"
)

// ProviderRegistry resolves a gateway adapter by provider name. It is filled
// once at startup and only read afterwards.
type ProviderRegistry struct {
	providers map[core.Provider]output.PaymentProvider
}

// NewProviderRegistry creates a registry holding providers
func NewProviderRegistry(providers ...output.PaymentProvider) *ProviderRegistry {
	r := &ProviderRegistry{providers: make(map[core.Provider]output.PaymentProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the adapter for p.Name()
func (r *ProviderRegistry) Register(p output.PaymentProvider) {
	r.providers[p.Name()] = p
}

// Get returns the adapter for name
func (r *ProviderRegistry) Get(name core.Provider) (output.PaymentProvider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, name)
}

// Names lists the registered providers in lexical order
func (r *ProviderRegistry) Names() []core.Provider {
	names := make([]core.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
