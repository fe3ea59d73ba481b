package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// knownProviderEnvs maps well-known provider names to their environment variables.
// A set variable wins over the YAML value for a provider with that name.
var knownProviderEnvs = []struct {
	name       string
	apiKeyEnv  string
	baseURLEnv string
}{
	{"openai", "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	{"anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"},
	{"gemini", "GEMINI_API_KEY", "GEMINI_BASE_URL"},
	{"openrouter", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL"},
	{"groq", "GROQ_API_KEY", "GROQ_BASE_URL"},
	{"xai", "XAI_API_KEY", "XAI_BASE_URL"},
	{"ollama", "OLLAMA_API_KEY", "OLLAMA_BASE_URL"},
}

func applyProviderEnvVars(providers ProviderList) {
	for _, kp := range knownProviderEnvs {
		apiKey := os.Getenv(kp.apiKeyEnv)
		baseURL := os.Getenv(kp.baseURLEnv)
		if apiKey == "" && baseURL == "" {
			continue
		}
		for i := range providers {
			if providers[i].Name != kp.name {
				continue
			}
			if apiKey != "" {
				providers[i].APIKey = apiKey
			}
			if baseURL != "" {
				providers[i].BaseURL = baseURL
			}
		}
	}
}

// expandNode substitutes ${VAR} placeholders in every scalar of the document.
// Plain scalars lose their resolved tag so "${TEMPERATURE}" can still decode as a number.
func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && strings.Contains(n.Value, "${") {
		n.Value = expandString(n.Value)
		if n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
			n.Tag = ""
		}
	}
	for _, child := range n.Content {
		expandNode(child)
	}
}

// expandString replaces ${VAR} and ${VAR:-default} with values from the environment.
// An unset variable without a default expands to the empty string.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])
		b.WriteString(lookupPlaceholder(s[start+2 : end]))
		s = s[end+1:]
	}
	return b.String()
}

func lookupPlaceholder(expr string) string {
	name, def, hasDefault := strings.Cut(expr, ":-")
	if value := os.Getenv(name); value != "" {
		return value
	}
	if hasDefault {
		return def
	}
	return ""
}
