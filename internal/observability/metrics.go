// Package observability exposes Prometheus metrics for the gateway.
//
// Metrics:
//   - streamgate_connections_active: connections currently being served
//   - streamgate_connections_total: accepted connections
//   - streamgate_requests_total: finished requests by model, provider and outcome
//   - streamgate_request_duration_seconds: time from first byte read to connection close
//   - streamgate_tokens_total: tokens written by provider and kind (content, reasoning, error)
//   - streamgate_upstream_requests_total: upstream HTTP attempts by provider and status
//   - streamgate_upstream_duration_seconds: upstream time to response headers
//   - streamgate_config_reloads_total: registry reloads by result
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamgate/internal/pkg/llmclient"
)

const namespace = "streamgate"

// Request outcomes used as the outcome label.
const (
	OutcomeOK         = "ok"
	OutcomeListModels = "list_models"
	OutcomeProtocol   = "protocol_error"
	OutcomeResolution = "resolution_error"
	OutcomeUpstream   = "upstream_error"
	OutcomeStreamErr  = "stream_error"
	OutcomeClientGone = "client_gone"
	OutcomePanic      = "panic"
)

// Metrics holds every collector on its own registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	tokens            *prometheus.CounterVec
	upstreamRequests  *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	reloads           *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of client connections currently being served",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of finished requests",
		}, []string{"model", "provider", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent serving a request",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total number of tokens written to clients",
		}, []string{"provider", "kind"}),
		upstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream HTTP attempts",
		}, []string{"provider", "status"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream latency until response headers",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Total number of model registry reloads",
		}, []string{"result"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns llmclient hooks that record upstream traffic.
func (m *Metrics) Hooks() llmclient.Hooks {
	if m == nil {
		return llmclient.Hooks{}
	}
	return llmclient.Hooks{OnRequestEnd: m.observeUpstream}
}

func (m *Metrics) observeUpstream(info llmclient.RequestInfo) {
	status := "error"
	if info.StatusCode > 0 {
		status = strconv.Itoa(info.StatusCode)
	}
	m.upstreamRequests.WithLabelValues(info.Provider, status).Inc()
	m.upstreamDuration.WithLabelValues(info.Provider).Observe(info.Duration.Seconds())
}

// ConnectionOpened records an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

// ConnectionClosed records a finished connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// ObserveRequest records a finished request.
func (m *Metrics) ObserveRequest(model, provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(model, provider, outcome).Inc()
	m.requestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveTokens records the tokens written for one request.
func (m *Metrics) ObserveTokens(provider string, content, reasoning, errors int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(provider, "content").Add(float64(content))
	m.tokens.WithLabelValues(provider, "reasoning").Add(float64(reasoning))
	m.tokens.WithLabelValues(provider, "error").Add(float64(errors))
}

// ObserveReload records a registry reload attempt.
func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}
