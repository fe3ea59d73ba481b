// Package logging builds the process-wide slog logger.
//
// Terminals get colorized, human-readable lines from tint; everything else
// (containers, files, pipes) gets one JSON object per line.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"streamgate/config"
)

// New returns a logger writing to w according to cfg.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	return slog.New(NewHandler(cfg, w))
}

// NewHandler picks the handler for cfg.Format: "json", "pretty", or "auto",
// which is pretty on a terminal and JSON otherwise.
func NewHandler(cfg config.LogConfig, w io.Writer) slog.Handler {
	level := ParseLevel(cfg.Level)
	tty := isTerminal(w)

	switch strings.ToLower(cfg.Format) {
	case "pretty":
		return newPrettyHandler(w, level, !tty)
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		if tty {
			return newPrettyHandler(w, level, false)
		}
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
}

func newPrettyHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})
}

// ParseLevel maps debug, info, warn and error to slog levels. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
