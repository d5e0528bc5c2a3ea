// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the structured logger shared by every stage.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/pdiddy/alignoa/pkg/types"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// RunID is attached to every record; empty generates one.
	RunID string
}

// New constructs a slog logger. An empty format picks "text" when the
// output is a terminal and "json" otherwise.
func New(opts Options) (*slog.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "json"
		if isTerminal(out) {
			format = "text"
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text", "console":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return slog.New(handler).With("run_id", runID), nil
}

// NewFromConfig creates a logger from the log section of the pipeline
// configuration.
func NewFromConfig(cfg types.LogConfig) (*slog.Logger, error) {
	return New(Options{Level: cfg.Level, Format: cfg.Format})
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
