package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/pkg/llmclient"
	"streamgate/internal/providers"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *core.Params) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := New(config.ProviderConfig{Name: "openai", Type: "openai"}, providers.ProviderOptions{HTTPClient: server.Client()})
	return p, &core.Params{APIKey: "sk-test", BaseURL: server.URL}
}

func collect(t *testing.T, s core.TokenStream) []core.Token {
	t.Helper()
	defer s.Close()
	var toks []core.Token
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return toks
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		toks = append(toks, tok)
	}
}

func chunk(content, reasoning string) string {
	delta := map[string]string{}
	if content != "" {
		delta["content"] = content
	}
	if reasoning != "" {
		delta["reasoning_content"] = reasoning
	}
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o",
		"choices": []any{map[string]any{"index": 0, "delta": delta}},
	})
	return "data: " + string(b) + "\n\n"
}

func TestParseConversation(t *testing.T) {
	p := New(config.ProviderConfig{Name: "openai"}, providers.ProviderOptions{})
	conv := p.ParseConversation("Hi\n<Assistant>: Hello\n<You>: How are you?", "Be brief")

	want := core.Conversation{
		{Role: core.RoleSystem, Content: "Be brief"},
		{Role: core.RoleUser, Content: "Hi"},
		{Role: core.RoleAssistant, Content: "Hello"},
		{Role: core.RoleUser, Content: "How are you?"},
	}
	if len(conv) != len(want) {
		t.Fatalf("got %d turns, want %d: %+v", len(conv), len(want), conv)
	}
	for i := range want {
		if conv[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, conv[i], want[i])
		}
	}
}

func TestParseConversationWith_Continuation(t *testing.T) {
	p := New(config.ProviderConfig{Name: "openai"}, providers.ProviderOptions{})
	on := true
	conv := p.ParseConversationWith("<You>: first\nsecond", "", &core.ParserOverrides{Continuation: &on})

	if len(conv) != 2 || conv[1].Content != "first second" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestStream(t *testing.T) {
	var received map[string]any
	var auth string

	p, params := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chunk("", "thinking"))
		_, _ = io.WriteString(w, chunk("Hel", ""))
		_, _ = io.WriteString(w, chunk("", ""))
		_, _ = io.WriteString(w, chunk("lo", ""))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	conv := core.Conversation{
		{Role: core.RoleSystem, Content: "sys"},
		{Role: core.RoleUser, Content: "Hi"},
	}
	stream, err := p.Stream(context.Background(), params, conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	toks := collect(t, stream)

	want := []core.Token{{Reasoning: "thinking"}, {Content: "Hel"}, {Content: "lo"}}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token %d = %+v, want %+v", i, toks[i], want[i])
		}
	}

	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if received["model"] != "gpt-4o" {
		t.Errorf("model = %v, want default gpt-4o", received["model"])
	}
	if received["stream"] != true {
		t.Errorf("stream = %v, want true", received["stream"])
	}
	if temp, _ := received["temperature"].(float64); temp < 0.69 || temp > 0.71 {
		t.Errorf("temperature = %v, want 0.7", received["temperature"])
	}
	msgs, _ := received["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", received["messages"])
	}
	if first := msgs[0].(map[string]any); first["role"] != "system" || first["content"] != "sys" {
		t.Errorf("first message = %v", first)
	}
}

func TestStream_Params(t *testing.T) {
	var received map[string]any
	p, params := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	temp, maxTokens := 0.2, 64
	params.Model = "gpt-4o-mini"
	params.Temperature = &temp
	params.MaxTokens = &maxTokens

	stream, err := p.Stream(context.Background(), params, core.Conversation{{Role: core.RoleUser, Content: "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks := collect(t, stream); len(toks) != 0 {
		t.Errorf("expected no tokens, got %+v", toks)
	}
	if received["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", received["model"])
	}
	if received["max_tokens"] != float64(64) {
		t.Errorf("max_tokens = %v", received["max_tokens"])
	}
}

func TestBuildRequest_ReasoningModel(t *testing.T) {
	maxTokens := 100
	req := buildRequest(&core.Params{Model: "o3-mini", MaxTokens: &maxTokens}, nil)

	if req.MaxTokens != 0 {
		t.Errorf("MaxTokens = %d, want 0", req.MaxTokens)
	}
	if req.MaxCompletionTokens != 100 {
		t.Errorf("MaxCompletionTokens = %d, want 100", req.MaxCompletionTokens)
	}
	if req.Temperature != 0 {
		t.Errorf("Temperature = %v, want unset", req.Temperature)
	}
}

func TestBuildRequest_ZeroTemperatureIsSent(t *testing.T) {
	zero := 0.0
	req := buildRequest(&core.Params{Temperature: &zero}, nil)
	if req.Temperature != math.SmallestNonzeroFloat32 {
		t.Errorf("Temperature = %v, want smallest positive float32", req.Temperature)
	}

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["temperature"]; !ok {
		t.Error("temperature missing from request body")
	}

	req = buildRequest(nil, nil)
	if req.Temperature != float32(defaultTemperature) {
		t.Errorf("Temperature = %v, want default %v", req.Temperature, defaultTemperature)
	}
}

func TestIsReasoningModel(t *testing.T) {
	tests := map[string]bool{
		"o1":          true,
		"o3-mini":     true,
		"O4-mini":     true,
		"gpt-4o":      false,
		"omni-legacy": false,
		"":            false,
	}
	for model, want := range tests {
		if got := isReasoningModel(model); got != want {
			t.Errorf("isReasoningModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestStream_MissingAPIKey(t *testing.T) {
	called := false
	p, params := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	params.APIKey = ""

	_, err := p.Stream(context.Background(), params, core.Conversation{{Role: core.RoleUser, Content: "x"}})
	var gwErr *core.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Type != core.ErrorTypeAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if called {
		t.Error("no request should be sent without a credential")
	}
}

func TestStream_NoKeyRequiredForLocalServers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chunk("local", ""))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	reg := CompatibleRegistration("ollama", server.URL, false)
	p := reg.New(config.ProviderConfig{Name: "ollama", Type: "ollama"}, providers.ProviderOptions{HTTPClient: server.Client()})

	stream, err := p.Stream(context.Background(), &core.Params{Model: "llama3"}, core.Conversation{{Role: core.RoleUser, Content: "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	toks := collect(t, stream)
	if len(toks) != 1 || toks[0].Content != "local" {
		t.Errorf("tokens = %+v", toks)
	}
}

func TestStream_HTTPErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType core.ErrorType
	}{
		{"unauthorized", http.StatusUnauthorized, core.ErrorTypeAuthentication},
		{"rate limited", http.StatusTooManyRequests, core.ErrorTypeRateLimit},
		{"bad request", http.StatusBadRequest, core.ErrorTypeInvalidRequest},
		{"server error", http.StatusInternalServerError, core.ErrorTypeProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, params := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
			})

			_, err := p.Stream(context.Background(), params, core.Conversation{{Role: core.RoleUser, Content: "x"}})
			var gwErr *core.GatewayError
			if !errors.As(err, &gwErr) {
				t.Fatalf("expected GatewayError, got %T: %v", err, err)
			}
			if gwErr.Type != tt.wantType {
				t.Errorf("type = %s, want %s", gwErr.Type, tt.wantType)
			}
			if !strings.Contains(gwErr.Message, "nope") {
				t.Errorf("message = %q, want upstream message", gwErr.Message)
			}
		})
	}
}

func TestStream_HooksObserveRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	var seen []llmclient.RequestInfo
	p := New(config.ProviderConfig{Name: "primary"}, providers.ProviderOptions{
		HTTPClient: server.Client(),
		Hooks:      llmclient.Hooks{OnRequestEnd: func(info llmclient.RequestInfo) { seen = append(seen, info) }},
	})

	stream, err := p.Stream(context.Background(), &core.Params{APIKey: "k", BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	collect(t, stream)

	if len(seen) != 1 || seen[0].Provider != "primary" || seen[0].StatusCode != http.StatusOK {
		t.Errorf("hooks saw %+v", seen)
	}
}
