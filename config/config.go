// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when no path is given on the command line or in STREAMGATE_CONFIG.
	DefaultConfigPath = "config.yaml"
	// DefaultAddr matches the historical listener address of the gateway.
	DefaultAddr = "localhost:9999"
	// DefaultReadTimeout bounds the command + transcript read phase of a connection.
	DefaultReadTimeout = 60 * time.Second
	// DefaultReloadDebounce coalesces bursts of file events into one reload.
	DefaultReloadDebounce = 250 * time.Millisecond
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LogConfig        `yaml:"logging"`
	Reload     ReloadConfig     `yaml:"reload"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Providers  ProviderList     `yaml:"providers"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	// Addr is the TCP address of the transcript listener
	Addr string `yaml:"addr"`
	// AdminAddr is the HTTP address for health, metrics and model listing; empty disables it
	AdminAddr string `yaml:"admin_addr"`
	// ReadTimeout bounds reading the command line and transcript body
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// MaxTranscriptBytes rejects larger transcripts; 0 means unlimited
	MaxTranscriptBytes int64 `yaml:"max_transcript_bytes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, json, pretty
}

// ReloadConfig controls hot reload of the model registry when the config file changes
type ReloadConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// IsEnabled reports whether hot reload is on. It defaults to true.
func (r ReloadConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// UpstreamConfig tunes the HTTP transport shared by all providers.
// Zero values fall back to the httpclient defaults.
type UpstreamConfig struct {
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	// Timeout bounds a whole upstream call including the streamed body.
	// Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// ResilienceConfig groups transport resilience settings shared by all providers
type ResilienceConfig struct {
	Retry          RetryConfig           `yaml:"retry"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig controls retries of a streaming call before any output was received
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int `yaml:"failure_threshold"`
	// SuccessThreshold is the number of successes needed to close an open circuit
	SuccessThreshold int `yaml:"success_threshold"`
	// Timeout is how long to wait before attempting to close an open circuit
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultRetryConfig returns the retry defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// DefaultCircuitBreakerConfig returns the circuit breaker defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ProviderConfig is one configured backend and the models it serves
type ProviderConfig struct {
	// Name is the mapping key in the providers section
	Name    string    `yaml:"-"`
	Type    string    `yaml:"type"`
	APIKey  string    `yaml:"api_key"`
	BaseURL string    `yaml:"base_url"`
	Models  ModelList `yaml:"models"`
}

// ModelConfig holds per-model settings
type ModelConfig struct {
	// Name is the mapping key in the models section and the name clients request
	Name string `yaml:"-"`
	// Model overrides the upstream model id; defaults to Name
	Model            string          `yaml:"model"`
	SystemPrompt     string          `yaml:"system_prompt"`
	APIKey           string          `yaml:"api_key"` // overrides the provider credential
	Temperature      *float64        `yaml:"temperature"`
	MaxTokens        *int            `yaml:"max_tokens"`
	TopP             *float64        `yaml:"top_p"`
	IncludeReasoning *bool           `yaml:"include_reasoning"`
	Thinking         *ThinkingConfig `yaml:"thinking"`
	SkipLeadingLine  *bool           `yaml:"skip_leading_line"`
	Continuation     *bool           `yaml:"continuation"`
	// Extra is merged into the request body of providers that speak raw JSON
	Extra map[string]any `yaml:"extra"`
}

// ThinkingConfig enables extended reasoning on providers that support it
type ThinkingConfig struct {
	BudgetTokens int `yaml:"budget_tokens"`
}

// ProviderList keeps providers in document order.
type ProviderList []ProviderConfig

// UnmarshalYAML decodes a providers mapping while preserving key order.
func (l *ProviderList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: providers must be a mapping", node.Line)
	}
	out := make(ProviderList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var p ProviderConfig
		if err := node.Content[i+1].Decode(&p); err != nil {
			return fmt.Errorf("provider %q: %w", node.Content[i].Value, err)
		}
		p.Name = node.Content[i].Value
		out = append(out, p)
	}
	*l = out
	return nil
}

// ModelList keeps models in document order.
type ModelList []ModelConfig

// UnmarshalYAML decodes a models mapping while preserving key order.
// A model with no settings ("gpt-4o:" or "gpt-4o: {}") is allowed.
func (l *ModelList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: models must be a mapping", node.Line)
	}
	out := make(ModelList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var m ModelConfig
		value := node.Content[i+1]
		if !(value.Kind == yaml.ScalarNode && value.ShortTag() == "!!null") {
			if err := value.Decode(&m); err != nil {
				return fmt.Errorf("model %q: %w", node.Content[i].Value, err)
			}
		}
		m.Name = node.Content[i].Value
		out = append(out, m)
	}
	*l = out
	return nil
}

// ResolvePath picks the config file path: explicit argument, then STREAMGATE_CONFIG, then the default.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("STREAMGATE_CONFIG"); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads a .env file if present, then the YAML config at path.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config bytes, expands ${VAR} placeholders from the environment,
// applies well-known provider env overrides and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &Config{}
	if len(root.Content) > 0 {
		expandNode(&root)
		if err := root.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	applyProviderEnvVars(cfg.Providers)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "auto"
	}
	if cfg.Reload.Debounce == 0 {
		cfg.Reload.Debounce = DefaultReloadDebounce
	}

	retryDefaults := DefaultRetryConfig()
	r := &cfg.Resilience.Retry
	if r.InitialBackoff == 0 {
		r.InitialBackoff = retryDefaults.InitialBackoff
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = retryDefaults.MaxBackoff
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = retryDefaults.BackoffFactor
	}
	if cfg.Resilience.CircuitBreaker == nil {
		cfg.Resilience.CircuitBreaker = DefaultCircuitBreakerConfig()
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Type == "" {
			p.Type = p.Name
		}
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	}
}

// Validate reports configuration errors that would make the gateway unusable.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Logging.Format) {
	case "auto", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if c.Server.MaxTranscriptBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_transcript_bytes must not be negative"))
	}
	if c.Upstream.Timeout < 0 || c.Upstream.ResponseHeaderTimeout < 0 || c.Upstream.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("upstream timeouts must not be negative"))
	}
	if c.Resilience.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("resilience.retry.max_retries must not be negative"))
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("provider %q is defined twice", p.Name))
		}
		seen[p.Name] = true
	}
	return errors.Join(errs...)
}

