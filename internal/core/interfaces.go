// Package core defines the core interfaces and types for the streaming gateway.
package core

import (
	"context"
)

// Provider is the per-backend adapter. Every backend is driven through the same
// two operations regardless of its wire protocol.
type Provider interface {
	// ParseConversation turns a raw transcript into the conversation shape this
	// backend expects. It never fails: unrecognised lines become user turns.
	ParseConversation(raw, systemPrompt string) Conversation

	// Stream starts generation and returns a pull-based token stream.
	// Failures before the first token (transport, credentials, non-200 status)
	// are returned here. Failures reported by the backend after that are
	// delivered in-band as a single error token followed by io.EOF.
	Stream(ctx context.Context, params *Params, conv Conversation) (TokenStream, error)
}

// TokenStream is a finite, pull-based sequence of tokens.
// The caller controls pacing: the next token is only read from the transport
// when Recv is called.
type TokenStream interface {
	// Recv returns the next non-empty token, or io.EOF once the backend signals
	// completion or the transport closes.
	Recv() (Token, error)

	// Close releases transport resources. It is safe to call more than once
	// and may be called before the stream is drained.
	Close() error
}

// ModelLookup resolves model names to registry entries.
type ModelLookup interface {
	// Resolve returns the entry for an exact model name.
	Resolve(model string) (ModelEntry, bool)

	// ListModels returns all configured model names in load order.
	ListModels() []string

	// Provider returns the adapter serving the entry.
	Provider(entry ModelEntry) (Provider, error)
}

// ModelEntry is one configured model and everything needed to serve it.
type ModelEntry struct {
	Name         string
	Provider     string // provider name as configured (config key)
	ProviderType string // adapter type, e.g. "openai", "gemini"
	SystemPrompt string
	Params       Params
	Parser       *ParserOverrides
}

// ParserOverrides adjusts an adapter's transcript parsing for one model.
// Nil fields keep the adapter's own policy.
type ParserOverrides struct {
	SkipLeadingLine *bool
	Continuation    *bool
}

// RequestParams returns the generation parameters for a request against this entry.
func (e ModelEntry) RequestParams() *Params {
	p := e.Params
	if p.Model == "" {
		p.Model = e.Name
	}
	p.SystemPrompt = e.SystemPrompt
	return &p
}

// OverridableParser is implemented by adapters whose transcript policy can be
// adjusted per model.
type OverridableParser interface {
	ParseConversationWith(raw, systemPrompt string, overrides *ParserOverrides) Conversation
}

// ParseFor parses raw for entry, applying the entry's parser overrides when
// the adapter supports them.
func ParseFor(p Provider, entry ModelEntry, raw string) Conversation {
	if op, ok := p.(OverridableParser); ok && entry.Parser != nil {
		return op.ParseConversationWith(raw, entry.SystemPrompt, entry.Parser)
	}
	return p.ParseConversation(raw, entry.SystemPrompt)
}
