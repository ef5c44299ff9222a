package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
)

// Factory builds a Provider from its configuration section.
type Factory func(cfg config.ProviderConf) (Provider, error)

// Registry maps provider kinds to their factories.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Panics on duplicate kind to surface misconfiguration early.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("provider registry: duplicate kind %q", kind))
	}
	r.factories[kind] = f
}

// Open builds the provider selected by cfg.Kind.
func (r *Registry) Open(cfg config.ProviderConf) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %q", cfg.Kind)
	}
	p, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("open provider %s: %w", cfg.Kind, err)
	}
	return p, nil
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
