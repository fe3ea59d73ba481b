// Package ollama registers a local Ollama server as an OpenAI-compatible provider.
// Ollama accepts anonymous requests, so no API key is required.
package ollama

import (
	"streamgate/internal/providers/openai"
)

const defaultBaseURL = "http://localhost:11434/v1"

// Registration provides factory registration for the Ollama provider.
var Registration = openai.CompatibleRegistration("ollama", defaultBaseURL, false)
