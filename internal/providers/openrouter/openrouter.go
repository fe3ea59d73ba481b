// Package openrouter provides OpenRouter integration for the streaming gateway.
// Responses are decoded directly from the raw server-sent event stream so that
// the non-standard reasoning field survives.
package openrouter

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/pkg/llmclient"
	"streamgate/internal/pkg/sse"
	"streamgate/internal/providers"
	"streamgate/internal/transcript"
)

// Registration provides factory registration for the OpenRouter provider.
var Registration = providers.Registration{
	Type: "openrouter",
	New: func(cfg config.ProviderConfig, opts providers.ProviderOptions) core.Provider {
		return New(cfg, opts)
	},
}

const (
	defaultBaseURL          = "https://openrouter.ai/api/v1"
	defaultModel            = "deepseek/deepseek-r1"
	defaultTemperature      = 0.7
	defaultIncludeReasoning = true
)

// Provider implements core.Provider for OpenRouter
type Provider struct {
	name   string
	client *llmclient.Client
	policy transcript.Policy
}

// New creates a new OpenRouter provider
func New(cfg config.ProviderConfig, opts providers.ProviderOptions) *Provider {
	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	clientCfg := llmclient.Config{
		ProviderName:   cfg.Name,
		BaseURL:        baseURL,
		Retry:          opts.Resilience.Retry,
		Hooks:          opts.Hooks,
		CircuitBreaker: opts.Resilience.CircuitBreaker,
	}

	p := &Provider{
		name:   cfg.Name,
		policy: transcript.Policy{SystemTurn: true},
	}
	if opts.HTTPClient != nil {
		p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, clientCfg, nil)
	} else {
		p.client = llmclient.New(clientCfg, nil)
	}
	return p
}

// ParseConversation keeps one turn per line behind a system turn.
func (p *Provider) ParseConversation(raw, systemPrompt string) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy)
}

// ParseConversationWith applies per-model parser overrides.
func (p *Provider) ParseConversationWith(raw, systemPrompt string, overrides *core.ParserOverrides) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy.WithOverrides(overrides))
}

type chatRequest struct {
	Model            string      `json:"model"`
	Messages         []core.Turn `json:"messages"`
	Stream           bool        `json:"stream"`
	IncludeReasoning bool        `json:"include_reasoning"`
	Temperature      float64     `json:"temperature"`
	MaxTokens        *int        `json:"max_tokens,omitempty"`
	TopP             *float64    `json:"top_p,omitempty"`
}

func buildRequest(params *core.Params, conv core.Conversation) *chatRequest {
	req := &chatRequest{
		Model:            params.ModelOr(defaultModel),
		Messages:         conv,
		Stream:           true,
		IncludeReasoning: params.IncludeReasoningOr(defaultIncludeReasoning),
		Temperature:      params.TemperatureOr(defaultTemperature),
	}
	if req.Messages == nil {
		req.Messages = core.Conversation{}
	}
	if params != nil {
		req.MaxTokens = params.MaxTokens
		req.TopP = params.TopP
	}
	return req
}

// Stream posts the conversation and decodes the event stream frame by frame.
func (p *Provider) Stream(ctx context.Context, params *core.Params, conv core.Conversation) (core.TokenStream, error) {
	if err := providers.RequireAPIKey(p.name, params); err != nil {
		return nil, err
	}

	payload, err := providers.WithExtra(buildRequest(params, conv), params.Extra)
	if err != nil {
		return nil, err
	}

	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     payload,
		Headers:  map[string]string{"Authorization": "Bearer " + params.APIKey},
	})
	if err != nil {
		return nil, err
	}
	return providers.NewEventStream(body, decodeFrame), nil
}

// decodeFrame maps one data frame to a token.
// A malformed frame yields an error token but decoding continues with the next one.
func decodeFrame(ev sse.Event) (core.Token, bool) {
	if ev.IsDone() {
		return core.Token{}, true
	}
	if !gjson.ValidBytes(ev.Data) {
		return core.ErrorToken("Invalid response chunk: " + ev.Raw), false
	}
	data := gjson.ParseBytes(ev.Data)

	if choices := data.Get("choices"); choices.Exists() {
		delta := choices.Get("0.delta")
		return core.Token{
			Content:   delta.Get("content").String(),
			Reasoning: delta.Get("reasoning").String(),
		}, false
	}
	if errResult := data.Get("error"); errResult.Exists() {
		msg := errResult.Get("message").String()
		if msg == "" {
			msg = errResult.String()
		}
		return core.ErrorToken("API error: " + msg), true
	}
	return core.Token{}, false
}
