// Package gemini provides Google Gemini API integration for the streaming gateway.
//
// Gemini is driven as a chat: the transcript is split into prior history and
// the latest user prompt, and a chat session sends both to the native
// streamGenerateContent endpoint.
package gemini

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/pkg/llmclient"
	"streamgate/internal/pkg/sse"
	"streamgate/internal/providers"
	"streamgate/internal/transcript"
)

// Registration provides factory registration for the Gemini provider.
var Registration = providers.Registration{
	Type: "gemini",
	New: func(cfg config.ProviderConfig, opts providers.ProviderOptions) core.Provider {
		return New(cfg, opts)
	},
}

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"

	errorPrefix = "Gemini API failed: "
)

// Provider implements core.Provider for Google Gemini
type Provider struct {
	name   string
	client *llmclient.Client
	policy transcript.Policy
}

// New creates a new Gemini provider
func New(cfg config.ProviderConfig, opts providers.ProviderOptions) *Provider {
	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	clientCfg := llmclient.Config{
		ProviderName:   cfg.Name,
		BaseURL:        strings.TrimRight(baseURL, "/"),
		Retry:          opts.Resilience.Retry,
		Hooks:          opts.Hooks,
		CircuitBreaker: opts.Resilience.CircuitBreaker,
	}

	p := &Provider{
		name:   cfg.Name,
		policy: transcript.Policy{Continuation: true},
	}
	if opts.HTTPClient != nil {
		p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, clientCfg, nil)
	} else {
		p.client = llmclient.New(clientCfg, nil)
	}
	return p
}

// ParseConversation merges unmarked lines into the open turn.
func (p *Provider) ParseConversation(raw, systemPrompt string) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy)
}

// ParseConversationWith applies per-model parser overrides, such as skipping a
// leading metadata line.
func (p *Provider) ParseConversationWith(raw, systemPrompt string, overrides *core.ParserOverrides) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy.WithOverrides(overrides))
}

// Stream splits conv into history and prompt and streams the model's reply.
func (p *Provider) Stream(ctx context.Context, params *core.Params, conv core.Conversation) (core.TokenStream, error) {
	if err := providers.RequireAPIKey(p.name, params); err != nil {
		return nil, err
	}

	history, prompt := conv.SplitPrompt()
	slog.Debug("gemini chat request",
		"connection_id", core.GetConnectionID(ctx),
		"history_turns", len(history),
		"prompt_chars", len(prompt),
	)

	session := newChatSession(p.client, params, history)
	body, err := session.sendMessageStream(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return providers.NewEventStream(body, decodeChunk), nil
}

// decodeChunk maps one streamGenerateContent chunk to a token.
// Parts flagged as thoughts are reasoning; everything else is content.
// A malformed chunk yields an error token and decoding continues.
func decodeChunk(ev sse.Event) (core.Token, bool) {
	if !gjson.ValidBytes(ev.Data) {
		return core.ErrorToken(errorPrefix + "invalid response chunk: " + ev.Raw), false
	}
	data := gjson.ParseBytes(ev.Data)

	if errResult := data.Get("error"); errResult.Exists() {
		msg := errResult.Get("message").String()
		if msg == "" {
			msg = errResult.String()
		}
		return core.ErrorToken(errorPrefix + msg), true
	}

	var tok core.Token
	data.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		text := part.Get("text").String()
		if part.Get("thought").Bool() {
			tok.Reasoning += text
		} else {
			tok.Content += text
		}
		return true
	})

	if reason := data.Get("promptFeedback.blockReason").String(); reason != "" && tok.IsEmpty() {
		return core.ErrorToken(errorPrefix + "prompt blocked: " + reason), true
	}
	return tok, false
}
