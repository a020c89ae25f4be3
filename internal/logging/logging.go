package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LevelEnv names the environment variable holding the log level
const LevelEnv = "NUZE_LOG"

const (
	JSONFile = "nuze.log.json"
	TextFile = "nuze.log"
)

// Options describes where and what to log
type Options struct {
	Dir   string
	Level string
}

// Logs is an installed process logger and the files it writes
type Logs struct {
	Logger *slog.Logger
	Dir    string

	files []*os.File
}

// OptionsFromEnv returns options with the level taken from NUZE_LOG
func OptionsFromEnv() Options {
	return Options{Level: os.Getenv(LevelEnv)}
}

// Setup opens the log files and returns a logger writing to both. Without a
// directory a fresh one is created under the system temp directory.
func Setup(opts Options) (*Logs, error) {
	if opts.Dir == "" {
		dir, err := os.MkdirTemp("", "nuze-")
		if err != nil {
			return nil, fmt.Errorf("logging: create directory: %w", err)
		}
		opts.Dir = dir
	} else if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure directory: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	handlerOpts := &slog.HandlerOptions{Level: level}

	l := &Logs{Dir: opts.Dir}
	jsonFile, err := l.open(JSONFile)
	if err != nil {
		return nil, err
	}
	textFile, err := l.open(TextFile)
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	l.Logger = slog.New(newFanoutHandler(
		slog.NewJSONHandler(jsonFile, handlerOpts),
		slog.NewTextHandler(textFile, handlerOpts),
	))
	return l, nil
}

func (l *Logs) open(name string) (*os.File, error) {
	path := filepath.Join(l.Dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	l.files = append(l.files, f)
	return f, nil
}

// Close closes the log files
func (l *Logs) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
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

type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
