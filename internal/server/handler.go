package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"streamgate/internal/core"
	"streamgate/internal/observability"
	"streamgate/internal/stream"
)

// ListModelsCommand asks for the configured model names instead of a completion.
const ListModelsCommand = "list-models"

var errTranscriptTooLarge = core.NewProtocolError("Message too large")

// connHandler serves exactly one connection:
// AwaitCommand -> (ListModels | AwaitTranscript) -> Generating -> Done.
type connHandler struct {
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	cfg     Config
	lookup  core.ModelLookup
	metrics *observability.Metrics
	logger  *slog.Logger

	start    time.Time
	model    string
	provider string
}

func newConnHandler(conn net.Conn, cfg Config, lookup core.ModelLookup, metrics *observability.Metrics, logger *slog.Logger) *connHandler {
	return &connHandler{
		conn:    conn,
		r:       bufio.NewReader(conn),
		w:       bufio.NewWriter(conn),
		cfg:     cfg,
		lookup:  lookup,
		metrics: metrics,
		logger:  logger,
		start:   time.Now(),
	}
}

// serve runs the state machine and records the outcome. A panic anywhere in
// the request is reported to the client as a server error.
func (h *connHandler) serve(ctx context.Context) {
	outcome := observability.OutcomePanic
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while serving connection",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			h.writeError(fmt.Errorf("%v", r))
		}
		if err := h.w.Flush(); err != nil {
			h.logger.Debug("final flush failed", "error", err)
		}
		h.metrics.ObserveRequest(h.model, h.provider, outcome, time.Since(h.start))
		h.logger.Info("connection finished",
			"model", h.model,
			"provider", h.provider,
			"outcome", outcome,
			"duration", time.Since(h.start),
		)
	}()
	outcome = h.handle(ctx)
}

func (h *connHandler) handle(ctx context.Context) string {
	h.setReadDeadline()

	line, err := h.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to read command", "error", err)
		h.writeError(fmt.Errorf("read command: %w", err))
		return observability.OutcomeProtocol
	}
	command := strings.TrimSpace(line)

	if command == ListModelsCommand {
		names := h.lookup.ListModels()
		h.writeString(strings.Join(names, "\n") + "\n")
		return observability.OutcomeListModels
	}
	if command == "" {
		h.writeError(core.NewProtocolError("No model specified"))
		return observability.OutcomeProtocol
	}
	h.model = command

	entry, ok := h.lookup.Resolve(command)
	if !ok {
		h.logger.Info("unknown model requested", "model", command)
		h.writeError(core.NewModelNotFoundError(command))
		return observability.OutcomeResolution
	}
	h.provider = entry.Provider

	p, err := h.lookup.Provider(entry)
	if err != nil {
		h.logger.Warn("model has no adapter", "model", command, "provider", entry.Provider, "error", err)
		h.writeError(err)
		return observability.OutcomeResolution
	}

	body, err := h.readTranscript()
	if err != nil {
		if errors.Is(err, errTranscriptTooLarge) {
			h.writeError(err)
			return observability.OutcomeProtocol
		}
		h.logger.Warn("failed to read transcript", "error", err)
		h.writeError(fmt.Errorf("read transcript: %w", err))
		return observability.OutcomeProtocol
	}
	if ctx.Err() != nil {
		return observability.OutcomeClientGone
	}
	// Generation may legitimately outlast the read timeout.
	_ = h.conn.SetReadDeadline(time.Time{})

	transcript := strings.TrimSpace(body)
	if transcript == "" {
		h.writeError(core.NewProtocolError("No message provided"))
		return observability.OutcomeProtocol
	}

	conv := core.ParseFor(p, entry, transcript)
	h.logger.Debug("transcript parsed",
		"model", command,
		"provider", entry.Provider,
		"provider_type", entry.ProviderType,
		"turns", len(conv),
	)

	ts, err := p.Stream(ctx, entry.RequestParams(), conv)
	if err != nil {
		h.logger.Warn("upstream request failed", "model", command, "provider", entry.Provider, "error", err)
		h.writeError(err)
		return observability.OutcomeUpstream
	}

	stats, err := stream.Pump(h.w, ts)
	h.metrics.ObserveTokens(entry.Provider, stats.ContentTokens, stats.ReasoningTokens, stats.ErrorTokens)
	switch {
	case errors.Is(err, stream.ErrClientGone):
		h.logger.Info("client went away mid-stream", "model", command, "bytes", stats.Bytes)
		return observability.OutcomeClientGone
	case err != nil:
		h.logger.Warn("stream failed", "model", command, "error", err)
		return observability.OutcomeStreamErr
	case stats.ErrorTokens > 0:
		return observability.OutcomeStreamErr
	}
	return observability.OutcomeOK
}

// readTranscript reads the rest of the input up to the client's half-close.
func (h *connHandler) readTranscript() (string, error) {
	var src io.Reader = h.r
	limit := h.cfg.MaxTranscriptBytes
	if limit > 0 {
		src = io.LimitReader(h.r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", errTranscriptTooLarge
	}
	return string(data), nil
}

func (h *connHandler) setReadDeadline() {
	if h.cfg.ReadTimeout > 0 {
		_ = h.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	}
}

func (h *connHandler) writeError(err error) {
	h.writeString(core.ErrorLine(err))
}

func (h *connHandler) writeString(s string) {
	if _, err := h.w.WriteString(s); err != nil {
		h.logger.Debug("write failed", "error", err)
		return
	}
	if err := h.w.Flush(); err != nil {
		h.logger.Debug("flush failed", "error", err)
	}
}
