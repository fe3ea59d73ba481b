// Package groq registers Groq as an OpenAI-compatible provider.
package groq

import (
	"streamgate/internal/providers/openai"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// Registration provides factory registration for the Groq provider.
var Registration = openai.CompatibleRegistration("groq", defaultBaseURL, true)
