// Package providers maps provider names to their MediaProvider
// implementations. Registration happens at wiring time in main; the core
// services look providers up by the name stored alongside credentials.
package providers

import (
	"fmt"
	"sync"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Registry holds the known media providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]driven.MediaProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]driven.MediaProvider),
	}
}

// Register adds a provider under its own name. Registering the same name
// twice overwrites, last registration wins.
func (r *Registry) Register(p driven.MediaProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (driven.MediaProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotRegistered, name)
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
