package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGatewayError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GatewayError
		expected string
	}{
		{
			name: "error with provider",
			err: &GatewayError{
				Type:     ErrorTypeProvider,
				Message:  "upstream error",
				Provider: "openai",
			},
			expected: "[openai] provider_error: upstream error",
		},
		{
			name: "error without provider",
			err: &GatewayError{
				Type:    ErrorTypeInvalidRequest,
				Message: "bad request",
			},
			expected: "invalid_request_error: bad request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	gatewayErr := &GatewayError{
		Type:    ErrorTypeProvider,
		Message: "wrapped error",
		Err:     originalErr,
	}

	if unwrapped := gatewayErr.Unwrap(); unwrapped != originalErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, originalErr)
	}
	if !errors.Is(gatewayErr, originalErr) {
		t.Error("errors.Is should see the wrapped error")
	}
}

func TestErrorLine(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "no message",
			err:  NewProtocolError("No message provided"),
			want: "ERROR: No message provided\n",
		},
		{
			name: "model not found",
			err:  NewModelNotFoundError("ghost-model"),
			want: "ERROR: Model 'ghost-model' not found in config\n",
		},
		{
			name: "unknown provider",
			err:  NewUnknownProviderError("mystery", "m1"),
			want: "ERROR: Unknown provider 'mystery' for model 'm1'\n",
		},
		{
			name: "wrapped resolution error keeps wording",
			err:  fmt.Errorf("resolve: %w", NewModelNotFoundError("x")),
			want: "ERROR: Model 'x' not found in config\n",
		},
		{
			name: "provider error is a server error",
			err:  NewProviderError("anthropic", http.StatusBadGateway, "connection refused", nil),
			want: "ERROR: Server error: [anthropic] provider_error: connection refused\n",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: "ERROR: Server error: boom\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorLine(tt.err); got != tt.want {
				t.Errorf("ErrorLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseProviderError(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		body         string
		expectedType ErrorType
		expectedMsg  string
	}{
		{
			name:         "openai style unauthorized",
			statusCode:   http.StatusUnauthorized,
			body:         `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			expectedType: ErrorTypeAuthentication,
			expectedMsg:  "Incorrect API key provided",
		},
		{
			name:         "forbidden",
			statusCode:   http.StatusForbidden,
			body:         `{"error":{"message":"forbidden"}}`,
			expectedType: ErrorTypeAuthentication,
			expectedMsg:  "forbidden",
		},
		{
			name:         "rate limited",
			statusCode:   http.StatusTooManyRequests,
			body:         `{"error":{"message":"slow down"}}`,
			expectedType: ErrorTypeRateLimit,
			expectedMsg:  "slow down",
		},
		{
			name:         "bad request with string error",
			statusCode:   http.StatusBadRequest,
			body:         `{"error":"model is required"}`,
			expectedType: ErrorTypeInvalidRequest,
			expectedMsg:  "model is required",
		},
		{
			name:         "gemini list envelope",
			statusCode:   http.StatusBadRequest,
			body:         `[{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}]`,
			expectedType: ErrorTypeInvalidRequest,
			expectedMsg:  "API key not valid",
		},
		{
			name:         "server error with plain body",
			statusCode:   http.StatusInternalServerError,
			body:         "upstream exploded",
			expectedType: ErrorTypeProvider,
			expectedMsg:  "upstream exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseProviderError("test", tt.statusCode, []byte(tt.body), nil)
			if err.Type != tt.expectedType {
				t.Errorf("Type = %v, want %v", err.Type, tt.expectedType)
			}
			if err.Message != tt.expectedMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.expectedMsg)
			}
			if err.Provider != "test" {
				t.Errorf("Provider = %q, want %q", err.Provider, "test")
			}
			if err.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.statusCode)
			}
		})
	}
}
