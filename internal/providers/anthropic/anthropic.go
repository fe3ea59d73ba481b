// Package anthropic provides Anthropic API integration for the streaming gateway.
package anthropic

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

// Registration provides factory registration for the Anthropic provider.
var Registration = providers.Registration{
	Type: "anthropic",
	New: func(cfg config.ProviderConfig, opts providers.ProviderOptions) core.Provider {
		return New(cfg, opts)
	},
}

const (
	defaultBaseURL      = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"

	defaultModel        = "claude-3-5-sonnet-20241022"
	defaultSystemPrompt = "You are a helpful assistant."
	defaultTemperature  = 0.7
	defaultMaxTokens    = 1024
)

// Provider implements core.Provider for the Anthropic messages API.
type Provider struct {
	name   string
	client *llmclient.Client
	policy transcript.Policy
}

// New creates a new Anthropic provider.
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

	p := &Provider{name: cfg.Name}
	if opts.HTTPClient != nil {
		p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, clientCfg, setHeaders)
	} else {
		p.client = llmclient.New(clientCfg, setHeaders)
	}
	return p
}

func setHeaders(req *http.Request) {
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

// ParseConversation keeps one turn per line. The system prompt travels
// out-of-band, so no system turn is produced.
func (p *Provider) ParseConversation(raw, systemPrompt string) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy)
}

// ParseConversationWith applies per-model parser overrides.
func (p *Provider) ParseConversationWith(raw, systemPrompt string, overrides *core.ParserOverrides) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy.WithOverrides(overrides))
}

// messagesRequest is the Anthropic streaming request body.
type messagesRequest struct {
	Model       string          `json:"model"`
	Messages    []message       `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
	Stream      bool            `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

func buildRequest(params *core.Params, conv core.Conversation) *messagesRequest {
	req := &messagesRequest{
		Model:     params.ModelOr(defaultModel),
		System:    defaultSystemPrompt,
		MaxTokens: params.MaxTokensOr(defaultMaxTokens),
		Stream:    true,
	}
	if params != nil && params.SystemPrompt != "" {
		req.System = params.SystemPrompt
	}

	for _, t := range conv {
		switch t.Role {
		case core.RoleSystem:
			// A system turn from an override policy still goes out-of-band.
			if t.Content != "" {
				req.System = t.Content
			}
		case core.RoleAssistant:
			req.Messages = append(req.Messages, message{Role: "assistant", Content: t.Content})
		default:
			req.Messages = append(req.Messages, message{Role: "user", Content: t.Content})
		}
	}

	// Extended thinking requires the default temperature.
	if params != nil && params.Thinking != nil {
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: params.Thinking.BudgetTokens}
		if req.MaxTokens <= req.Thinking.BudgetTokens {
			req.MaxTokens = req.Thinking.BudgetTokens + defaultMaxTokens
		}
		return req
	}

	temp := params.TemperatureOr(defaultTemperature)
	req.Temperature = &temp
	if params != nil {
		req.TopP = params.TopP
	}
	return req
}

// Stream starts a messages stream.
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
		Endpoint: "/messages",
		Body:     payload,
		Headers:  map[string]string{"x-api-key": params.APIKey},
	})
	if err != nil {
		return nil, err
	}
	return providers.NewEventStream(body, decodeEvent), nil
}

// decodeEvent maps one messages-stream event to a token. The SSE event name
// selects the handler; the payload's type field covers streams that omit it.
// A malformed frame yields an error token and decoding continues.
func decodeEvent(ev sse.Event) (core.Token, bool) {
	if !gjson.ValidBytes(ev.Data) {
		return core.ErrorToken("Invalid response chunk: " + ev.Raw), false
	}
	data := gjson.ParseBytes(ev.Data)

	kind := ev.Name
	if kind == "" {
		kind = data.Get("type").String()
	}
	switch kind {
	case "content_block_delta":
		delta := data.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			return core.Token{Content: delta.Get("text").String()}, false
		case "thinking_delta":
			return core.Token{Reasoning: delta.Get("thinking").String()}, false
		}
	case "error":
		msg := data.Get("error.message").String()
		if msg == "" {
			msg = data.Get("error").String()
		}
		return core.ErrorToken("API error: " + msg), true
	case "message_stop":
		return core.Token{}, true
	}
	return core.Token{}, false
}
