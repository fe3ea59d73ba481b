package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamgate/internal/core"
)

func TestRequireAPIKey(t *testing.T) {
	require.NoError(t, RequireAPIKey("openai", &core.Params{APIKey: "k"}))

	for _, params := range []*core.Params{nil, {}} {
		err := RequireAPIKey("openai", params)
		var gwErr *core.GatewayError
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, core.ErrorTypeAuthentication, gwErr.Type)
		assert.Equal(t, "openai", gwErr.Provider)
	}
}

func TestBaseURLOr(t *testing.T) {
	assert.Equal(t, "def", BaseURLOr(nil, "def"))
	assert.Equal(t, "def", BaseURLOr(&core.Params{}, "def"))
	assert.Equal(t, "http://x", BaseURLOr(&core.Params{BaseURL: "http://x"}, "def"))
}

func TestWithExtra(t *testing.T) {
	type body struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}

	same, err := WithExtra(body{Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, body{Model: "m"}, same)

	merged, err := WithExtra(body{Model: "m", Stream: true}, map[string]any{
		"model":    "ignored",
		"provider": map[string]any{"order": []any{"Fireworks"}},
	})
	require.NoError(t, err)

	m := merged.(map[string]any)
	assert.Equal(t, "m", m["model"])
	assert.Equal(t, true, m["stream"])
	assert.Equal(t, map[string]any{"order": []any{"Fireworks"}}, m["provider"])

	_, err = WithExtra([]string{"not", "an", "object"}, map[string]any{"a": 1})
	require.Error(t, err)
}
