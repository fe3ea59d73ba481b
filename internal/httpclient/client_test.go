package httpclient

import (
	"net/http"
	"testing"
	"time"

	"streamgate/config"
)

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset", "", 5 * time.Second},
		{"integer seconds", "30", 30 * time.Second},
		{"duration string", "2m", 2 * time.Minute},
		{"garbage", "soon", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STREAMGATE_TEST_DURATION", tt.value)
			if got := envDuration("STREAMGATE_TEST_DURATION", 5*time.Second); got != tt.want {
				t.Errorf("envDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("STREAMGATE_HTTP_TIMEOUT", "")
	t.Setenv("STREAMGATE_HTTP_RESPONSE_HEADER_TIMEOUT", "")

	client := New(config.UpstreamConfig{})
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 so long streams are not cut", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", client.Transport)
	}
	if transport.ResponseHeaderTimeout != defaultResponseHeaderTimeout {
		t.Errorf("ResponseHeaderTimeout = %v, want %v", transport.ResponseHeaderTimeout, defaultResponseHeaderTimeout)
	}
	if !transport.DisableCompression {
		t.Error("DisableCompression = false, want true for event streams")
	}
}

func TestNew_ConfigWinsOverEnv(t *testing.T) {
	t.Setenv("STREAMGATE_HTTP_RESPONSE_HEADER_TIMEOUT", "5")

	client := New(config.UpstreamConfig{
		ResponseHeaderTimeout: 42 * time.Second,
		MaxIdleConnsPerHost:   7,
		Timeout:               3 * time.Minute,
	})
	if client.Timeout != 3*time.Minute {
		t.Errorf("Timeout = %v, want 3m", client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if transport.ResponseHeaderTimeout != 42*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 42s", transport.ResponseHeaderTimeout)
	}
	if transport.MaxIdleConnsPerHost != 7 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 7", transport.MaxIdleConnsPerHost)
	}
}

func TestNew_EnvFillsUnsetFields(t *testing.T) {
	t.Setenv("STREAMGATE_HTTP_RESPONSE_HEADER_TIMEOUT", "15s")

	transport := New(config.UpstreamConfig{}).Transport.(*http.Transport)
	if transport.ResponseHeaderTimeout != 15*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 15s", transport.ResponseHeaderTimeout)
	}
}

func TestDefault_IsShared(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() returned different clients")
	}
}
