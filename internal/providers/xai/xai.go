// Package xai registers xAI as an OpenAI-compatible provider.
package xai

import (
	"streamgate/internal/providers/openai"
)

const defaultBaseURL = "https://api.x.ai/v1"

// Registration provides factory registration for the xAI provider.
var Registration = openai.CompatibleRegistration("xai", defaultBaseURL, true)
