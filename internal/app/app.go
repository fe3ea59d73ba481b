// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"streamgate/config"
	"streamgate/internal/core"
	"streamgate/internal/httpclient"
	"streamgate/internal/observability"
	"streamgate/internal/providers"
	"streamgate/internal/providers/anthropic"
	"streamgate/internal/providers/gemini"
	"streamgate/internal/providers/groq"
	"streamgate/internal/providers/ollama"
	"streamgate/internal/providers/openai"
	"streamgate/internal/providers/openrouter"
	"streamgate/internal/providers/xai"
	"streamgate/internal/server"
)

// DefaultShutdownTimeout bounds Run's graceful shutdown once its context is cancelled.
const DefaultShutdownTimeout = 30 * time.Second

// Registrations lists every built-in adapter.
var Registrations = []providers.Registration{
	openai.Registration,
	groq.Registration,
	xai.Registration,
	ollama.Registration,
	anthropic.Registration,
	gemini.Registration,
	openrouter.Registration,
}

// NewFactory returns a factory with every built-in adapter registered.
// Upstream calls go through httpClient (nil uses the shared default) and are
// reported to metrics when it is non-nil.
func NewFactory(metrics *observability.Metrics, httpClient *http.Client) *providers.ProviderFactory {
	factory := providers.NewProviderFactory(providers.ProviderOptions{
		Hooks:      metrics.Hooks(),
		HTTPClient: httpClient,
	})
	for _, reg := range Registrations {
		factory.Register(reg)
	}
	return factory
}

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
	metrics    *observability.Metrics
	store      *providers.Store
	server     *server.Server
	admin      *server.Admin

	reloadMu sync.Mutex

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the configuration produced by config.Load.
	AppConfig *config.Config

	// ConfigPath is the file AppConfig was loaded from. It is re-read on
	// reload; empty disables hot reload.
	ConfigPath string

	// Factory builds adapters. Nil uses NewFactory with a client built from
	// the upstream config section.
	Factory *providers.ProviderFactory

	// Metrics may be nil, which disables metrics and the /metrics endpoint.
	Metrics *observability.Metrics

	Logger *slog.Logger
}

// New creates a new App with all dependencies initialized.
func New(cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := cfg.Factory
	if factory == nil {
		factory = NewFactory(cfg.Metrics, httpclient.New(cfg.AppConfig.Upstream))
	}

	appCfg := cfg.AppConfig
	a := &App{
		config:     appCfg,
		configPath: cfg.ConfigPath,
		logger:     logger,
		metrics:    cfg.Metrics,
		store:      providers.Init(appCfg, factory),
	}

	a.server = server.New(server.Config{
		Addr:               appCfg.Server.Addr,
		ReadTimeout:        appCfg.Server.ReadTimeout,
		MaxTranscriptBytes: appCfg.Server.MaxTranscriptBytes,
	}, a.store.Current, cfg.Metrics, logger)

	if appCfg.Server.AdminAddr != "" {
		a.admin = server.NewAdmin(func() []core.ModelEntry {
			return a.store.Registry().Entries()
		}, cfg.Metrics)
	}

	a.logStartupInfo(factory)
	return a, nil
}

// Store returns the registry store.
func (a *App) Store() *providers.Store {
	return a.store
}

// Addr returns the transcript listener address once Run has started listening.
func (a *App) Addr() net.Addr {
	return a.server.Addr()
}

// Run serves until ctx is cancelled or a listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Server.Addr, err)
	}

	errc := make(chan error, 2)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
			errc <- fmt.Errorf("transcript server: %w", err)
		}
	}()

	if a.admin != nil {
		addr := a.config.Server.AdminAddr
		go func() {
			a.logger.Info("admin server started", "addr", addr)
			if err := a.admin.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	var watchDone chan struct{}
	if a.configPath != "" && a.config.Reload.IsEnabled() {
		watchDone = make(chan struct{})
		if err := a.startWatcher(watchCtx, watchDone); err != nil {
			a.logger.Warn("config hot reload disabled", "error", err)
			watchDone = nil
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		a.logger.Error("server failed", "error", runErr)
	}

	stopWatch()
	if watchDone != nil {
		<-watchDone
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

func (a *App) startWatcher(ctx context.Context, done chan struct{}) error {
	w, err := config.NewWatcher(a.configPath, a.config.Reload.Debounce, a.logger)
	if err != nil {
		return err
	}
	go func() {
		defer close(done)
		if err := w.Run(ctx, a.Reload); err != nil {
			a.logger.Error("config watcher stopped", "error", err)
		}
	}()
	a.logger.Info("config hot reload enabled", "path", a.configPath)
	return nil
}

// Reload re-reads the config file and swaps in a new registry. On failure the
// current registry stays in place. Listener settings are not reloaded.
func (a *App) Reload() error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.metrics.ObserveReload(err)
		return fmt.Errorf("keeping current registry: %w", err)
	}
	a.store.Reload(cfg)
	a.metrics.ObserveReload(nil)
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the transcript listener and its in-flight connections first, then the
// admin server.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown error", "error", err)
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if a.admin != nil {
		if err := a.admin.Shutdown(ctx); err != nil {
			a.logger.Error("admin shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) logStartupInfo(factory *providers.ProviderFactory) {
	registry := a.store.Registry()
	a.logger.Info("gateway configured",
		"addr", a.config.Server.Addr,
		"admin_addr", a.config.Server.AdminAddr,
		"models", registry.ModelCount(),
		"providers", registry.ProviderCount(),
		"adapters", factory.RegisteredTypes(),
	)
	if registry.ModelCount() == 0 {
		a.logger.Warn("no models configured; every request will fail resolution")
	}
	if a.config.Server.MaxTranscriptBytes > 0 {
		a.logger.Info("transcript size limited", "max_bytes", a.config.Server.MaxTranscriptBytes)
	}
}
