// Package providers builds the upstream LLM provider selected by configuration.
package providers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"agentgate/config"
	"agentgate/internal/core"
)

// Options carries shared infrastructure handed to every provider builder.
type Options struct {
	HTTPClient *http.Client
}

// Builder creates a provider instance from configuration
type Builder func(cfg config.ProviderConfig, opts Options) (core.Provider, error)

// Registration lets a provider package describe itself to the factory.
type Registration struct {
	Type string
	New  Builder
}

// ProviderFactory maps provider types to their builders
type ProviderFactory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewProviderFactory creates an empty factory
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{builders: make(map[string]Builder)}
}

// Add registers every registration.
func (f *ProviderFactory) Add(regs ...Registration) {
	for _, reg := range regs {
		f.Register(reg.Type, reg.New)
	}
}

// Register associates providerType with builder, replacing any earlier one.
func (f *ProviderFactory) Register(providerType string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[providerType] = builder
}

// Create instantiates the provider of the given type
func (f *ProviderFactory) Create(providerType string, cfg config.ProviderConfig, opts Options) (core.Provider, error) {
	f.mu.RLock()
	builder, ok := f.builders[providerType]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}
	return builder(cfg, opts)
}

// ListRegistered returns the registered provider types, sorted
func (f *ProviderFactory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
