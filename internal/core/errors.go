package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorMarker prefixes every error line written to a client.
const ErrorMarker = "ERROR: "

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeProtocol indicates a malformed or empty command or body
	ErrorTypeProtocol ErrorType = "protocol_error"
	// ErrorTypeResolution indicates an unknown model or unmapped provider
	ErrorTypeResolution ErrorType = "resolution_error"
	// ErrorTypeProvider indicates an upstream provider error (5xx, transport)
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates an upstream rate limit (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates the upstream rejected the request (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates a missing or rejected credential
	ErrorTypeAuthentication ErrorType = "authentication_error"
)

// GatewayError is the base error type for all gateway errors
type GatewayError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Provider   string
	// Original error for debugging (not written to clients)
	Err error
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ClientMessage is the text written after the error marker.
// Protocol and resolution errors carry their exact wording; everything else is
// reported as a server error.
func (e *GatewayError) ClientMessage() string {
	switch e.Type {
	case ErrorTypeProtocol, ErrorTypeResolution:
		return e.Message
	default:
		return "Server error: " + e.Error()
	}
}

// ErrorLine renders err as the single line written to a client.
func ErrorLine(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return ErrorMarker + gwErr.ClientMessage() + "\n"
	}
	return ErrorMarker + "Server error: " + err.Error() + "\n"
}

// NewProtocolError creates an error for malformed client input.
func NewProtocolError(message string) *GatewayError {
	return &GatewayError{Type: ErrorTypeProtocol, Message: message}
}

// NewModelNotFoundError reports a model name absent from the registry.
func NewModelNotFoundError(model string) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeResolution,
		Message: fmt.Sprintf("Model '%s' not found in config", model),
	}
}

// NewUnknownProviderError reports a model mapped to a provider type with no adapter.
func NewUnknownProviderError(provider, model string) *GatewayError {
	return &GatewayError{
		Type:     ErrorTypeResolution,
		Message:  fmt.Sprintf("Unknown provider '%s' for model '%s'", provider, model),
		Provider: provider,
	}
}

// NewProviderError creates a new provider error (upstream 5xx or transport)
func NewProviderError(provider string, statusCode int, message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(provider string, message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(provider string, message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Provider:   provider,
	}
}

// ParseProviderError parses an error response from a provider and returns an appropriate GatewayError
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *GatewayError {
	message := ExtractErrorMessage(body)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(provider, message)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(provider, message)
	case statusCode >= 400 && statusCode < 500:
		err := NewInvalidRequestError(message, originalErr)
		err.StatusCode = statusCode
		err.Provider = provider
		return err
	default:
		return NewProviderError(provider, statusCode, message, originalErr)
	}
}

// ExtractErrorMessage pulls a human-readable message out of a provider error body.
// It understands {"error":{"message":...}}, {"error":"..."} and Gemini's
// [{"error":{...}}] envelope, falling back to the raw body.
func ExtractErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "0.error.message", "message"} {
			if msg := gjson.GetBytes(body, path); msg.Type == gjson.String && msg.Str != "" {
				return msg.Str
			}
		}
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			return msg.String()
		}
	}
	return string(body)
}
