// Package llmclient provides the HTTP transport shared by raw-HTTP providers:
//   - JSON request marshaling and provider-specific headers
//   - retries with exponential backoff, only before a stream has been handed out
//   - standardized error parsing (401, 429, 5xx)
//   - circuit breaking
//   - request hooks for metrics
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/httpclient"
)

// Config holds configuration for the LLM client
type Config struct {
	// ProviderName identifies the provider for error messages and metrics
	ProviderName string

	// BaseURL is the API base URL
	BaseURL string

	// Retry configuration
	Retry config.RetryConfig

	// CircuitBreaker configuration; nil disables circuit breaking
	CircuitBreaker *config.CircuitBreakerConfig

	// Hooks observe every upstream attempt
	Hooks Hooks
}

// RequestInfo describes one finished upstream attempt.
type RequestInfo struct {
	Provider   string
	Endpoint   string
	StatusCode int // 0 when the request never got a response
	Duration   time.Duration
	Err        error
}

// Hooks lets callers observe upstream traffic without coupling the client to a metrics backend.
type Hooks struct {
	OnRequestEnd func(info RequestInfo)
}

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Client is a base HTTP client for LLM providers. It is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	config         Config
	headerSetter   HeaderSetter
	circuitBreaker *circuitBreaker
}

// New creates a new LLM client with the given configuration
func New(cfg Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.Default(), cfg, headerSetter)
}

// NewWithHTTPClient creates a new LLM client with a custom HTTP client
func NewWithHTTPClient(httpClient *http.Client, cfg Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient:   httpClient,
		config:       cfg,
		headerSetter: headerSetter,
	}

	if cfg.CircuitBreaker != nil {
		c.circuitBreaker = newCircuitBreaker(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.Timeout,
		)
	}

	return c
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	Body     any // JSON marshaled if not nil
	Headers  map[string]string
	// Query parameters appended to the URL
	Query map[string]string
}

// DoStream executes a streaming request and returns the open response body.
// Retries happen only while no body has been returned, so a caller never sees
// duplicated output. The caller must close the returned body.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	body, err := marshalBody(req.Body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	maxAttempts := c.config.Retry.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, core.NewProviderError(c.config.ProviderName, 0, "request cancelled: "+ctx.Err().Error(), ctx.Err())
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
			return nil, core.NewProviderError(c.config.ProviderName, http.StatusServiceUnavailable,
				"circuit breaker is open - provider temporarily unavailable", nil)
		}

		stream, retry, err := c.attempt(ctx, req, body)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// attempt performs a single request. retry reports whether the failure is worth another try.
func (c *Client) attempt(ctx context.Context, req Request, body []byte) (stream io.ReadCloser, retry bool, err error) {
	httpReq, err := c.buildRequest(ctx, req, body)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.recordFailure()
		c.observe(req, 0, start, err)
		return nil, true, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close()

		gwErr := core.ParseProviderError(c.config.ProviderName, resp.StatusCode, respBody, nil)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.recordFailure()
		}
		c.observe(req, resp.StatusCode, start, gwErr)
		return nil, isRetryable(resp.StatusCode), gwErr
	}

	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
	c.observe(req, resp.StatusCode, start, nil)
	return resp.Body, false, nil
}

func (c *Client) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

func (c *Client) observe(req Request, status int, start time.Time, err error) {
	if c.config.Hooks.OnRequestEnd == nil {
		return
	}
	c.config.Hooks.OnRequestEnd(RequestInfo{
		Provider:   c.config.ProviderName,
		Endpoint:   req.Endpoint,
		StatusCode: status,
		Duration:   time.Since(start),
		Err:        err,
	})
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}
	return data, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	r := c.config.Retry
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	backoff := float64(r.InitialBackoff) * math.Pow(factor, float64(attempt-1))
	if r.MaxBackoff > 0 && backoff > float64(r.MaxBackoff) {
		backoff = float64(r.MaxBackoff)
	}
	return time.Duration(backoff)
}

// isRetryable returns true if the status code indicates a retryable error
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusGatewayTimeout
}

// circuitBreaker implements a simple circuit breaker pattern
type circuitBreaker struct {
	mu               sync.Mutex
	state            circuitState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	lastFailure      time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func newCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
	}
}

// Allow checks if a request should be allowed through the circuit breaker
func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen {
		if time.Since(cb.lastFailure) > cb.timeout {
			cb.state = circuitHalfOpen
			cb.successes = 0
			return true
		}
		return false
	}
	return true
}

// RecordSuccess records a successful request
func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = circuitClosed
			cb.failures = 0
		}
	case circuitClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed request
func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case circuitClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = circuitOpen
		}
	case circuitHalfOpen:
		cb.state = circuitOpen
		cb.successes = 0
	}
}

// State returns the current circuit state (for testing/monitoring)
func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// WrapTransport reports every round trip made through base to the hooks.
// SDK-backed providers that bypass Client use it to stay observable.
func (h Hooks) WrapTransport(provider string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if h.OnRequestEnd == nil {
		return base
	}
	return &observedTransport{base: base, provider: provider, hooks: h}
}

type observedTransport struct {
	base     http.RoundTripper
	provider string
	hooks    Hooks
}

func (t *observedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	info := RequestInfo{
		Provider: t.provider,
		Endpoint: req.URL.Path,
		Duration: time.Since(start),
		Err:      err,
	}
	if resp != nil {
		info.StatusCode = resp.StatusCode
	}
	t.hooks.OnRequestEnd(info)
	return resp, err
}
