package core

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one attributed utterance within a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of turns.
// It is built once per request and must not be mutated afterwards.
type Conversation []Turn

// LastUserIndex returns the index of the last user turn, or -1 if there is none.
func (c Conversation) LastUserIndex() int {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// SplitPrompt partitions the conversation for turn-based chat APIs.
// The last user turn is the prompt; every other user or assistant turn is history,
// in original order. System turns are dropped. Without a user turn the prompt is "".
func (c Conversation) SplitPrompt() (history Conversation, prompt string) {
	last := c.LastUserIndex()
	history = make(Conversation, 0, len(c))
	for i, t := range c {
		if i == last || t.Role == RoleSystem {
			continue
		}
		history = append(history, t)
	}
	if last >= 0 {
		prompt = c[last].Content
	}
	return history, prompt
}

// Token is one unit of generated output.
//
// Content and Reasoning carry model output. Err carries an in-band failure
// reported by the backend after generation started; the multiplexer renders it
// with the error marker. A token with all fields empty is never emitted.
type Token struct {
	Content   string
	Reasoning string
	Err       string
}

// IsEmpty reports whether the token carries nothing to write.
func (t Token) IsEmpty() bool {
	return t.Content == "" && t.Reasoning == "" && t.Err == ""
}

// ErrorToken builds an in-band error token.
func ErrorToken(msg string) Token {
	return Token{Err: msg}
}

// ThinkingParams configures extended reasoning for providers that support it.
type ThinkingParams struct {
	BudgetTokens int `yaml:"budget_tokens" json:"budget_tokens"`
}

// Params is the per-request generation configuration handed to a provider.
// Nil pointer fields fall back to the provider's documented defaults.
type Params struct {
	Model            string
	SystemPrompt     string
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	IncludeReasoning *bool
	Thinking         *ThinkingParams
	APIKey           string
	BaseURL          string
	// Extra holds provider-specific request fields passed through verbatim.
	Extra map[string]any
}

// TemperatureOr returns the configured temperature or def.
func (p *Params) TemperatureOr(def float64) float64 {
	if p == nil || p.Temperature == nil {
		return def
	}
	return *p.Temperature
}

// MaxTokensOr returns the configured output limit or def.
func (p *Params) MaxTokensOr(def int) int {
	if p == nil || p.MaxTokens == nil {
		return def
	}
	return *p.MaxTokens
}

// ModelOr returns the configured model name or def.
func (p *Params) ModelOr(def string) string {
	if p == nil || p.Model == "" {
		return def
	}
	return p.Model
}

// IncludeReasoningOr returns the reasoning toggle or def.
func (p *Params) IncludeReasoningOr(def bool) bool {
	if p == nil || p.IncludeReasoning == nil {
		return def
	}
	return *p.IncludeReasoning
}
