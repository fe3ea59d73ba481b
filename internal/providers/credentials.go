package providers

import (
	"encoding/json"

	"streamgate/internal/core"
)

// RequireAPIKey fails before any network activity when a provider that needs a
// credential has none configured.
func RequireAPIKey(provider string, params *core.Params) error {
	if params == nil || params.APIKey == "" {
		return core.NewAuthenticationError(provider, "missing API key for provider "+provider)
	}
	return nil
}

// BaseURLOr returns the per-request base URL when set, otherwise def.
func BaseURLOr(params *core.Params, def string) string {
	if params == nil || params.BaseURL == "" {
		return def
	}
	return params.BaseURL
}

// WithExtra merges extra top-level fields into a JSON request body.
// Fields the adapter already set take precedence.
func WithExtra(body any, extra map[string]any) (any, error) {
	if len(extra) == 0 {
		return body, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}
	merged := make(map[string]any)
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, core.NewInvalidRequestError("request body is not a JSON object", err)
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return merged, nil
}
