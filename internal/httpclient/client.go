// Package httpclient builds the HTTP client shared by every provider adapter.
//
// Completions are streamed for as long as the model keeps generating, so the
// client has no overall timeout by default. Only connection setup and the wait
// for the first response byte are bounded.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"streamgate/config"
)

const (
	defaultDialTimeout           = 30 * time.Second
	defaultResponseHeaderTimeout = 600 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultMaxIdleConnsPerHost   = 32
)

// envDuration reads a duration from key. Plain integers are seconds; anything
// else must parse as a Go duration. Unset or invalid values return def.
func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return def
}

// withDefaults fills zero fields. STREAMGATE_HTTP_RESPONSE_HEADER_TIMEOUT and
// STREAMGATE_HTTP_TIMEOUT apply when the config leaves those fields unset.
func withDefaults(cfg config.UpstreamConfig) config.UpstreamConfig {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ResponseHeaderTimeout == 0 {
		cfg.ResponseHeaderTimeout = envDuration("STREAMGATE_HTTP_RESPONSE_HEADER_TIMEOUT", defaultResponseHeaderTimeout)
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = defaultIdleConnTimeout
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = envDuration("STREAMGATE_HTTP_TIMEOUT", 0)
	}
	return cfg
}

// New builds a client for upstream streaming calls.
func New(cfg config.UpstreamConfig) *http.Client {
	cfg = withDefaults(cfg)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		// A gzip-encoded event stream is only decoded in blocks, which holds
		// tokens back from the client.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

var shared = sync.OnceValue(func() *http.Client {
	return New(config.UpstreamConfig{})
})

// Default returns the process-wide client used when none is injected.
func Default() *http.Client {
	return shared()
}
