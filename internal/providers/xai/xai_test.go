package xai

import (
	"context"
	"errors"
	"testing"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/providers"
)

func TestRegistration_RequiresAPIKey(t *testing.T) {
	if Registration.Type != "xai" {
		t.Fatalf("Type = %q, want xai", Registration.Type)
	}
	p := Registration.New(config.ProviderConfig{Name: "xai", Type: "xai"}, providers.ProviderOptions{})

	_, err := p.Stream(context.Background(), &core.Params{Model: "grok-3"}, nil)
	var gwErr *core.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Type != core.ErrorTypeAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
}
