package providers

import (
	"log/slog"
	"sync/atomic"

	"streamgate/config"
	"streamgate/internal/core"
)

// Store holds the current registry snapshot. Connections load it once and
// keep using that snapshot even if a reload swaps in a new one meanwhile.
type Store struct {
	current atomic.Pointer[ModelRegistry]
	factory *ProviderFactory
}

// Init builds the first registry from cfg and returns a store serving it.
func Init(cfg *config.Config, factory *ProviderFactory) *Store {
	s := &Store{factory: factory}
	s.Reload(cfg)
	return s
}

// Reload builds a registry from cfg and replaces the current one wholesale.
func (s *Store) Reload(cfg *config.Config) *ModelRegistry {
	registry := NewModelRegistry(cfg, s.factory)
	s.Swap(registry)

	slog.Info("model registry loaded",
		"models", registry.ModelCount(),
		"providers", registry.ProviderCount(),
	)
	return registry
}

// Swap installs registry as the current snapshot.
func (s *Store) Swap(registry *ModelRegistry) {
	s.current.Store(registry)
}

// Registry returns the current snapshot.
func (s *Store) Registry() *ModelRegistry {
	return s.current.Load()
}

// Current returns the current snapshot as a lookup.
func (s *Store) Current() core.ModelLookup {
	return s.current.Load()
}
