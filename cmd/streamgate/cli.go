package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"streamgate/config"
	"streamgate/internal/app"
	"streamgate/internal/logging"
	"streamgate/internal/observability"
	"streamgate/internal/server"
	"streamgate/internal/version"
)

// CLI is the root command structure for streamgate.
type CLI struct {
	Version kong.VersionFlag `help:"Print version information and exit"`

	Serve  ServeCmd  `cmd:"" help:"Run the gateway"`
	Models ModelsCmd `cmd:"" help:"List the models a running gateway serves"`
	Send   SendCmd   `cmd:"" help:"Send a transcript from stdin and stream the reply to stdout"`
}

// ServeCmd runs the gateway until interrupted.
type ServeCmd struct {
	Config string `short:"c" help:"Path to config file (default: config.yaml)" env:"STREAMGATE_CONFIG" type:"path"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(ctx context.Context) error {
	path := config.ResolvePath(c.Config)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting streamgate",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
		"config", path,
	)

	a, err := app.New(app.Config{
		AppConfig:  cfg,
		ConfigPath: path,
		Metrics:    observability.New(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	return a.Run(ctx)
}

// ClientFlags are shared by the commands that talk to a running gateway.
type ClientFlags struct {
	Addr    string        `short:"a" help:"Gateway address" default:"localhost:9999" env:"STREAMGATE_ADDR"`
	Timeout time.Duration `help:"Dial timeout" default:"10s"`
}

// ModelsCmd prints the model list of a running gateway.
type ModelsCmd struct {
	ClientFlags `embed:""`
}

// Run executes the models command.
func (c *ModelsCmd) Run(ctx context.Context) error {
	return exchange(ctx, c.Addr, c.Timeout, server.ListModelsCommand, strings.NewReader(""), os.Stdout)
}

// SendCmd streams a completion for the transcript read from stdin.
type SendCmd struct {
	ClientFlags `embed:""`
	Model       string `short:"m" required:"" help:"Model name as configured on the gateway"`
}

// Run executes the send command.
func (c *SendCmd) Run(ctx context.Context) error {
	return exchange(ctx, c.Addr, c.Timeout, c.Model, os.Stdin, os.Stdout)
}

// exchange performs one gateway request: command line, transcript, half-close,
// then copies the reply to out until the gateway closes the connection.
func exchange(ctx context.Context, addr string, timeout time.Duration, command string, transcript io.Reader, out io.Writer) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := io.WriteString(conn, command+"\n"); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	if _, err := io.Copy(conn, transcript); err != nil {
		return fmt.Errorf("send transcript: %w", err)
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return fmt.Errorf("close write: %w", err)
		}
	}

	if _, err := io.Copy(out, conn); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read reply: %w", err)
	}
	return nil
}
