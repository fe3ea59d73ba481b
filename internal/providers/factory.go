// Package providers provides the provider factory, the model registry and the
// helpers shared by provider adapters.
package providers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/pkg/llmclient"
)

// ProviderOptions carries the shared infrastructure handed to every adapter.
type ProviderOptions struct {
	Resilience config.ResilienceConfig
	Hooks      llmclient.Hooks
	// HTTPClient overrides the transport; nil uses httpclient defaults.
	HTTPClient *http.Client
}

// Registration describes how to build one provider type.
type Registration struct {
	Type string
	New  func(cfg config.ProviderConfig, opts ProviderOptions) core.Provider
}

// ProviderFactory builds adapters by provider type.
type ProviderFactory struct {
	mu       sync.RWMutex
	builders map[string]Registration
	opts     ProviderOptions
}

// NewProviderFactory creates an empty factory. Adapters are added with Register.
func NewProviderFactory(opts ProviderOptions) *ProviderFactory {
	return &ProviderFactory{
		builders: make(map[string]Registration),
		opts:     opts,
	}
}

// Register adds a provider type. A later registration for the same type replaces the earlier one.
func (f *ProviderFactory) Register(reg Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[reg.Type] = reg
}

// Create instantiates the adapter for cfg.Type.
func (f *ProviderFactory) Create(cfg config.ProviderConfig, resilience config.ResilienceConfig) (core.Provider, error) {
	f.mu.RLock()
	reg, ok := f.builders[cfg.Type]
	opts := f.opts
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	opts.Resilience = resilience
	return reg.New(cfg, opts), nil
}

// RegisteredTypes returns the registered provider types, sorted.
func (f *ProviderFactory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
