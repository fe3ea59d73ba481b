package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestExpandString tests the expandString function with various scenarios
func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "string without placeholders",
			input:    "simple-string",
			expected: "simple-string",
		},
		{
			name:     "simple variable expansion",
			input:    "${API_KEY}",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "sk-12345",
		},
		{
			name:     "variable in middle of string",
			input:    "prefix-${API_KEY}-suffix",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "prefix-sk-12345-suffix",
		},
		{
			name:     "multiple variables",
			input:    "${SCHEME}://${HOST}:${PORT}",
			envVars:  map[string]string{"SCHEME": "https", "HOST": "api.example.com", "PORT": "8080"},
			expected: "https://api.example.com:8080",
		},
		{
			name:     "variable with default value - env var exists",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": "sk-real-key"},
			expected: "sk-real-key",
		},
		{
			name:     "variable with default value - env var missing",
			input:    "${API_KEY:-default-key}",
			expected: "default-key",
		},
		{
			name:     "variable with default value - env var empty",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": ""},
			expected: "default-key",
		},
		{
			name:     "unresolved variable becomes empty",
			input:    "${MISSING_VAR}",
			expected: "",
		},
		{
			name:     "partially resolved string",
			input:    "${RESOLVED}-${UNRESOLVED}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1-",
		},
		{
			name:     "unterminated placeholder is left alone",
			input:    "abc${OOPS",
			expected: "abc${OOPS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"API_KEY", "SCHEME", "HOST", "PORT", "MISSING_VAR", "RESOLVED", "UNRESOLVED", "OOPS"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			require.Equal(t, tt.expected, expandString(tt.input))
		})
	}
}

func TestExpandNode_RetypesPlainScalars(t *testing.T) {
	t.Setenv("TEMP", "0.25")

	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("temperature: ${TEMP}\nquoted: \"${TEMP}\"\n"), &root))
	expandNode(&root)

	var out struct {
		Temperature float64 `yaml:"temperature"`
		Quoted      string  `yaml:"quoted"`
	}
	require.NoError(t, root.Decode(&out))
	require.Equal(t, 0.25, out.Temperature)
	require.Equal(t, "0.25", out.Quoted)
}
