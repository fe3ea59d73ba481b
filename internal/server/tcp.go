// Package server provides the TCP transcript listener and the admin HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamgate/internal/core"
	"streamgate/internal/observability"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Config holds TCP listener options
type Config struct {
	Addr string
	// ReadTimeout bounds reading the command line and transcript. Zero disables it.
	ReadTimeout time.Duration
	// MaxTranscriptBytes rejects larger transcripts. Zero means unlimited.
	MaxTranscriptBytes int64
}

// LookupSource returns the registry snapshot a new connection should use.
type LookupSource func() core.ModelLookup

// Server accepts transcript connections and serves each on its own goroutine.
type Server struct {
	cfg     Config
	lookup  LookupSource
	metrics *observability.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// New creates a server. metrics may be nil.
func New(cfg Config, lookup LookupSource, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		lookup:  lookup,
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ListenAndServe listens on the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a non-nil
// error; after Shutdown that error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("transcript listener started", "addr", ln.Addr().String())

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = nextDelay(tempDelay)
				s.logger.Warn("accept failed, retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown stops accepting, cancels every in-flight connection and waits for
// the handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(core.WithConnectionID(s.ctx, connID))
	defer cancel()

	// Cancellation unblocks any pending read or write on the socket.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	logger := s.logger.With("conn_id", connID, "remote_addr", conn.RemoteAddr().String())
	logger.Debug("connection accepted")

	h := newConnHandler(conn, s.cfg, s.lookup(), s.metrics, logger)
	h.serve(ctx)

	closeConn(conn, logger)
}

// Unread input left in the socket when it is closed makes the kernel send a
// reset, which can destroy the reply before the client reads it.
const (
	lingerTimeout  = 500 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// closeConn half-closes TCP connections first so the client reads EOF after
// the last byte, then discards any unread input before closing.
func closeConn(conn net.Conn, logger *slog.Logger) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Debug("close write failed", "error", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
		_, _ = io.CopyN(io.Discard, conn, maxLingerBytes)
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("close failed", "error", err)
	}
}
