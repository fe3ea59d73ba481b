package gemini

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"streamgate/internal/core"
	"streamgate/internal/pkg/llmclient"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type thinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget,omitempty"`
}

type generationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens *int            `json:"maxOutputTokens,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

// chatSession carries the prior turns of one conversation. It lives for a
// single request and is never shared.
type chatSession struct {
	client  *llmclient.Client
	apiKey  string
	model   string
	history []content
	system  *content
	config  *generationConfig
}

func newChatSession(client *llmclient.Client, params *core.Params, history core.Conversation) *chatSession {
	s := &chatSession{
		client:  client,
		model:   params.ModelOr(defaultModel),
		history: make([]content, 0, len(history)),
		config:  newGenerationConfig(params),
	}
	for _, t := range history {
		role := "user"
		if t.Role == core.RoleAssistant {
			role = "model"
		}
		s.history = append(s.history, content{Role: role, Parts: []part{{Text: t.Content}}})
	}
	if params != nil {
		s.apiKey = params.APIKey
	}
	if params != nil && params.SystemPrompt != "" {
		s.system = &content{Parts: []part{{Text: params.SystemPrompt}}}
	}
	return s
}

func newGenerationConfig(params *core.Params) *generationConfig {
	if params == nil {
		return nil
	}
	cfg := &generationConfig{
		Temperature:     params.Temperature,
		MaxOutputTokens: params.MaxTokens,
		TopP:            params.TopP,
	}
	if params.Thinking != nil {
		cfg.ThinkingConfig = &thinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  params.Thinking.BudgetTokens,
		}
	}
	if *cfg == (generationConfig{}) {
		return nil
	}
	return cfg
}

// sendMessageStream sends history followed by prompt and returns the open SSE body.
func (s *chatSession) sendMessageStream(ctx context.Context, prompt string) (io.ReadCloser, error) {
	contents := append(append([]content(nil), s.history...), content{
		Role:  "user",
		Parts: []part{{Text: prompt}},
	})

	return s.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/models/" + url.PathEscape(s.model) + ":streamGenerateContent",
		Query:    map[string]string{"alt": "sse"},
		Headers:  map[string]string{"x-goog-api-key": s.apiKey},
		Body: generateRequest{
			Contents:          contents,
			SystemInstruction: s.system,
			GenerationConfig:  s.config,
		},
	})
}
