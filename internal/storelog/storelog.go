// Package storelog implements the store's structured logging: a Logger
// interface satisfied by both a no-op sink and an Adapter over a slog.Logger
// whose custom slog.Handler tags every line with a correlation ID.
package storelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Logger provides structured logging for the store and its callers. Args
// follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// OpCounter hands out short correlation identifiers for a store's own
// internal operations (the Store tags its Open and Close log lines with
// one), as distinct from
// the caller-supplied opID an outer CLI invocation carries for its whole
// lifetime. Safe for concurrent use.
type OpCounter struct {
	n int64
}

// Next returns the next identifier in the sequence, starting at "op-1".
func (c *OpCounter) Next() string {
	return fmt.Sprintf("op-%d", atomic.AddInt64(&c.n, 1))
}

// storeHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<group.key=value ...>
//
// attrs fixed by WithAttrs carry the group prefix active at the time they
// were attached; attrs on the record itself carry the handler's current
// group.
type storeHandler struct {
	w        io.Writer
	opID     string
	minLevel slog.Level
	attrs    []string
	groups   []string
}

func (h *storeHandler) groupPrefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *storeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *storeHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	level := r.Level.String()

	if _, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, level, h.opID, r.Message); err != nil {
		return err
	}

	for _, kv := range h.attrs {
		if _, err := fmt.Fprintf(h.w, "\t%s", kv); err != nil {
			return err
		}
	}

	prefix := h.groupPrefix()
	var attrErr error
	r.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.w, "\t%s%s=%v", prefix, a.Key, a.Value); err != nil {
			attrErr = err
			return false
		}
		return true
	})
	if attrErr != nil {
		return attrErr
	}

	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *storeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.groupPrefix()
	next := append([]string{}, h.attrs...)
	for _, a := range attrs {
		next = append(next, fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value))
	}
	return &storeHandler{
		w:        h.w,
		opID:     h.opID,
		minLevel: h.minLevel,
		attrs:    next,
		groups:   append([]string{}, h.groups...),
	}
}

func (h *storeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &storeHandler{
		w:        h.w,
		opID:     h.opID,
		minLevel: h.minLevel,
		attrs:    append([]string{}, h.attrs...),
		groups:   append(append([]string{}, h.groups...), name),
	}
}

// New creates a structured logger tagged with opID, writing to both
// logDir/blobshard.log and stderr. Every level, Debug included, is enabled.
// It returns the slog.Logger, the open log file (for cleanup), and
// any error.
func New(logDir, opID string) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "blobshard.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, os.Stderr)
	handler := &storeHandler{w: w, opID: opID, minLevel: slog.LevelDebug}
	return slog.New(handler), f, nil
}

// WithOp returns a logger derived from l that tags its records with a fresh
// opID, sharing l's writer, level, and attrs, so a caller can give an
// internal operation its own correlation ID distinct from the one an outer
// CLI invocation set at construction (see OpCounter). If l was
// not built by New, it is returned unchanged.
func WithOp(l *slog.Logger, opID string) *slog.Logger {
	h, ok := l.Handler().(*storeHandler)
	if !ok {
		return l
	}
	return slog.New(&storeHandler{
		w:        h.w,
		opID:     opID,
		minLevel: h.minLevel,
		attrs:    append([]string{}, h.attrs...),
		groups:   append([]string{}, h.groups...),
	})
}

// Adapter wraps a *slog.Logger to satisfy Logger.
type Adapter struct {
	L *slog.Logger
}

func (a *Adapter) Debug(msg string, args ...any) { a.L.Debug(msg, args...) }
func (a *Adapter) Info(msg string, args ...any)  { a.L.Info(msg, args...) }
func (a *Adapter) Warn(msg string, args ...any)  { a.L.Warn(msg, args...) }
func (a *Adapter) Error(msg string, args ...any) { a.L.Error(msg, args...) }
