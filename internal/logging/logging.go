// Package logging builds the process-wide *slog.Logger.
//
// Logs go to stderr because stdout carries the MCP stdio transport. An
// optional log file receives the same records as JSON.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Format is text or json for the stderr handler. Empty means text.
	Format string

	// File, when set, also appends JSON records to this path.
	File string

	// Output overrides stderr. Tests use it.
	Output io.Writer
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New builds a logger from cfg. The returned close func releases the log
// file, if any, and is never nil.
func New(cfg Config) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, noop, err
	}
	opts := &slog.HandlerOptions{Level: level}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var primary slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", FormatText:
		primary = slog.NewTextHandler(out, opts)
	case FormatJSON:
		primary = slog.NewJSONHandler(out, opts)
	default:
		return nil, noop, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	if cfg.File == "" {
		return slog.New(primary), noop, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
		return nil, noop, fmt.Errorf("logging: creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, noop, fmt.Errorf("logging: opening log file: %w", err)
	}

	handler := &multiHandler{handlers: []slog.Handler{primary, slog.NewJSONHandler(f, opts)}}
	return slog.New(handler), f.Close, nil
}

// multiHandler fans records out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}
