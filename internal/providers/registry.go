package providers

import (
	"log/slog"

	"streamgate/config"
	"streamgate/internal/core"
)

// ModelRegistry maps model names to their configuration and adapter.
// It is immutable after construction and safe for concurrent reads;
// a config reload builds a new registry instead of mutating this one.
type ModelRegistry struct {
	entries  []core.ModelEntry
	index    map[string]int           // model name -> first entry in load order
	adapters map[string]core.Provider // provider name -> adapter
}

// NewModelRegistry builds a registry from cfg. Providers whose type has no
// registered adapter keep their models listed; resolving them later fails with
// an unknown-provider error.
func NewModelRegistry(cfg *config.Config, factory *ProviderFactory) *ModelRegistry {
	r := &ModelRegistry{
		index:    make(map[string]int),
		adapters: make(map[string]core.Provider),
	}

	for _, pCfg := range cfg.Providers {
		p, err := factory.Create(pCfg, cfg.Resilience)
		if err != nil {
			slog.Warn("provider has no adapter", "name", pCfg.Name, "type", pCfg.Type, "error", err)
		} else {
			r.adapters[pCfg.Name] = p
		}

		for _, mCfg := range pCfg.Models {
			if prev, exists := r.index[mCfg.Name]; exists {
				slog.Warn("model configured more than once, first definition wins",
					"model", mCfg.Name,
					"provider", pCfg.Name,
					"winner", r.entries[prev].Provider,
				)
				r.entries = append(r.entries, newModelEntry(pCfg, mCfg))
				continue
			}
			r.index[mCfg.Name] = len(r.entries)
			r.entries = append(r.entries, newModelEntry(pCfg, mCfg))
		}
	}

	return r
}

func newModelEntry(p config.ProviderConfig, m config.ModelConfig) core.ModelEntry {
	entry := core.ModelEntry{
		Name:         m.Name,
		Provider:     p.Name,
		ProviderType: p.Type,
		SystemPrompt: m.SystemPrompt,
		Params: core.Params{
			Model:            m.Model,
			Temperature:      m.Temperature,
			MaxTokens:        m.MaxTokens,
			TopP:             m.TopP,
			IncludeReasoning: m.IncludeReasoning,
			APIKey:           p.APIKey,
			BaseURL:          p.BaseURL,
			Extra:            m.Extra,
		},
	}
	if m.APIKey != "" {
		entry.Params.APIKey = m.APIKey
	}
	if m.Thinking != nil {
		entry.Params.Thinking = &core.ThinkingParams{BudgetTokens: m.Thinking.BudgetTokens}
	}
	if m.SkipLeadingLine != nil || m.Continuation != nil {
		entry.Parser = &core.ParserOverrides{
			SkipLeadingLine: m.SkipLeadingLine,
			Continuation:    m.Continuation,
		}
	}
	return entry
}

// Resolve returns the entry for an exact model name. Reads have no side effects.
func (r *ModelRegistry) Resolve(model string) (core.ModelEntry, bool) {
	i, ok := r.index[model]
	if !ok {
		return core.ModelEntry{}, false
	}
	return r.entries[i], true
}

// ListModels returns every configured model name in load order.
func (r *ModelRegistry) ListModels() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	return names
}

// Entries returns a copy of all entries in load order.
func (r *ModelRegistry) Entries() []core.ModelEntry {
	return append([]core.ModelEntry(nil), r.entries...)
}

// Provider returns the adapter serving entry.
func (r *ModelRegistry) Provider(entry core.ModelEntry) (core.Provider, error) {
	p, ok := r.adapters[entry.Provider]
	if !ok {
		return nil, core.NewUnknownProviderError(entry.Provider, entry.Name)
	}
	return p, nil
}

// ModelCount returns the number of configured models, duplicates included.
func (r *ModelRegistry) ModelCount() int {
	return len(r.entries)
}

// ProviderCount returns the number of providers with a working adapter.
func (r *ModelRegistry) ProviderCount() int {
	return len(r.adapters)
}
