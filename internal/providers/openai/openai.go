// Package openai provides OpenAI API integration for the streaming gateway.
// The same adapter serves OpenAI-compatible backends (Groq, xAI, Ollama) with a
// different default base URL.
package openai

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/httpclient"
	"streamgate/internal/providers"
	"streamgate/internal/transcript"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o"
	defaultTemperature = 0.7
)

// Registration provides factory registration for the OpenAI provider.
var Registration = CompatibleRegistration("openai", defaultBaseURL, true)

// CompatibleRegistration registers the adapter for an OpenAI-compatible provider type.
// requireKey is false for local servers that accept anonymous requests.
func CompatibleRegistration(providerType, baseURL string, requireKey bool) providers.Registration {
	return providers.Registration{
		Type: providerType,
		New: func(cfg config.ProviderConfig, opts providers.ProviderOptions) core.Provider {
			p := New(cfg, opts)
			p.defaultURL = baseURL
			p.requireKey = requireKey
			if cfg.BaseURL != "" {
				p.defaultURL = cfg.BaseURL
			}
			return p
		},
	}
}

// Provider implements core.Provider on top of the go-openai SDK.
type Provider struct {
	name       string
	defaultURL string
	requireKey bool
	httpClient *http.Client
	policy     transcript.Policy
}

// New creates a new OpenAI provider.
func New(cfg config.ProviderConfig, opts providers.ProviderOptions) *Provider {
	base := opts.HTTPClient
	if base == nil {
		base = httpclient.Default()
	}
	observed := *base
	observed.Transport = opts.Hooks.WrapTransport(cfg.Name, base.Transport)

	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return &Provider{
		name:       cfg.Name,
		defaultURL: baseURL,
		requireKey: true,
		httpClient: &observed,
		policy:     transcript.Policy{SystemTurn: true},
	}
}

// ParseConversation keeps one turn per line and materialises the system prompt as a turn.
func (p *Provider) ParseConversation(raw, systemPrompt string) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy)
}

// ParseConversationWith applies per-model parser overrides.
func (p *Provider) ParseConversationWith(raw, systemPrompt string, overrides *core.ParserOverrides) core.Conversation {
	return transcript.Parse(raw, systemPrompt, p.policy.WithOverrides(overrides))
}

// Stream opens a chat completion stream. The SDK client is built per call so
// the credential and base URL always come from the request parameters.
func (p *Provider) Stream(ctx context.Context, params *core.Params, conv core.Conversation) (core.TokenStream, error) {
	if p.requireKey {
		if err := providers.RequireAPIKey(p.name, params); err != nil {
			return nil, err
		}
	}

	var apiKey string
	if params != nil {
		apiKey = params.APIKey
	}
	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.BaseURL = providers.BaseURLOr(params, p.defaultURL)
	clientCfg.HTTPClient = p.httpClient
	client := goopenai.NewClientWithConfig(clientCfg)

	stream, err := client.CreateChatCompletionStream(ctx, buildRequest(params, conv))
	if err != nil {
		return nil, convertError(p.name, err)
	}
	return &tokenStream{stream: stream}, nil
}

func buildRequest(params *core.Params, conv core.Conversation) goopenai.ChatCompletionRequest {
	model := params.ModelOr(defaultModel)
	req := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: toMessages(conv),
		Stream:   true,
	}

	// Reasoning models reject temperature and max_tokens.
	if isReasoningModel(model) {
		if params != nil && params.MaxTokens != nil {
			req.MaxCompletionTokens = *params.MaxTokens
		}
		return req
	}

	// The SDK omits a zero temperature, so an explicit 0 is sent as the
	// smallest positive value instead of falling back to the backend default.
	req.Temperature = float32(params.TemperatureOr(defaultTemperature))
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if params != nil && params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params != nil && params.TopP != nil {
		req.TopP = float32(*params.TopP)
	}
	return req
}

func toMessages(conv core.Conversation) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(conv))
	for _, t := range conv {
		role := goopenai.ChatMessageRoleUser
		switch t.Role {
		case core.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		case core.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return msgs
}

// isReasoningModel reports whether the model is an OpenAI o-series model
// (o1, o3, o4) that requires max_completion_tokens and a fixed temperature.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

// convertError maps SDK errors onto the gateway error taxonomy.
func convertError(provider string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return core.ParseProviderError(provider, apiErr.HTTPStatusCode, []byte(apiErr.Message), err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return core.ParseProviderError(provider, reqErr.HTTPStatusCode, []byte(reqErr.Error()), err)
	}
	return core.NewProviderError(provider, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
}

// tokenStream adapts the SDK stream to core.TokenStream.
type tokenStream struct {
	stream    *goopenai.ChatCompletionStream
	done      bool
	closeOnce sync.Once
	closeErr  error
}

func (s *tokenStream) Recv() (core.Token, error) {
	for !s.done {
		resp, err := s.stream.Recv()
		if err != nil {
			s.done = true
			_ = s.Close()
			if errors.Is(err, io.EOF) {
				return core.Token{}, io.EOF
			}
			return core.ErrorToken(streamErrorMessage(err)), nil
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		tok := core.Token{Content: delta.Content, Reasoning: delta.ReasoningContent}
		if !tok.IsEmpty() {
			return tok, nil
		}
	}
	return core.Token{}, io.EOF
}

func (s *tokenStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
	})
	return s.closeErr
}

func streamErrorMessage(err error) string {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return "API error: " + apiErr.Message
	}
	return "stream interrupted: " + err.Error()
}
