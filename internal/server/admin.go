package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"streamgate/internal/core"
	"streamgate/internal/observability"
	"streamgate/internal/version"
)

// EntrySource returns the models of the current registry snapshot.
type EntrySource func() []core.ModelEntry

// Admin wraps the Echo server exposing health, metrics and the model list.
type Admin struct {
	echo    *echo.Echo
	entries EntrySource
}

// ModelInfo is one entry of the /v1/models listing.
type ModelInfo struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	OwnedBy      string `json:"owned_by"`
	ProviderType string `json:"provider_type"`
}

// ModelsResponse is the /v1/models body.
type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// NewAdmin creates the admin HTTP server. metrics may be nil, in which case
// /metrics is not registered.
func NewAdmin(entries EntrySource, metrics *observability.Metrics) *Admin {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("admin request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	a := &Admin{echo: e, entries: entries}

	e.GET("/health", a.health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	e.GET("/v1/models", a.listModels)

	return a
}

func (a *Admin) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// listModels reports every configured entry, including shadowed duplicates,
// in load order.
func (a *Admin) listModels(c echo.Context) error {
	entries := a.entries()
	resp := ModelsResponse{Object: "list", Data: make([]ModelInfo, 0, len(entries))}
	for _, e := range entries {
		resp.Data = append(resp.Data, ModelInfo{
			ID:           e.Name,
			Object:       "model",
			OwnedBy:      e.Provider,
			ProviderType: e.ProviderType,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server on the given address
func (a *Admin) Start(addr string) error {
	return a.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (a *Admin) Shutdown(ctx context.Context) error {
	return a.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Admin to be used with httptest
func (a *Admin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.echo.ServeHTTP(w, r)
}
