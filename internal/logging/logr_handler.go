package logging

import (
	"context"
	"log"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// logrHandler adapts a logr.Logger into an slog.Handler, so it can
// hang off the same multiHandler chain SetupLogger builds. It exists
// for collaborators embedding recordb as a library that already
// standardized on logr (the convention of choice for controller-
// runtime-style tooling) rather than slog.
type logrHandler struct {
	sink logr.Logger
	grp  string
	kv   []any
}

// NewLogrHandler wraps l as an slog.Handler. Records at slog.LevelError
// or above call l.Error; everything else calls l.Info (logr has no
// intermediate severities to map onto slog's Debug/Info/Warn split).
func NewLogrHandler(l logr.Logger) slog.Handler {
	return &logrHandler{sink: l}
}

// StdrLogger returns a logr.Logger backed by the standard library's
// log package, for callers that want logr semantics without pulling in
// a heavier logr implementation.
func StdrLogger() logr.Logger {
	return stdr.New(log.Default())
}

func (h *logrHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *logrHandler) Handle(_ context.Context, r slog.Record) error {
	kv := append([]any(nil), h.kv...)
	r.Attrs(func(a slog.Attr) bool {
		kv = append(kv, a.Key, a.Value.Any())
		return true
	})
	logger := h.sink
	if h.grp != "" {
		logger = logger.WithName(h.grp)
	}
	if r.Level >= slog.LevelError {
		logger.Error(nil, r.Message, kv...)
	} else {
		logger.Info(r.Message, kv...)
	}
	return nil
}

func (h *logrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	kv := append([]any(nil), h.kv...)
	for _, a := range attrs {
		kv = append(kv, a.Key, a.Value.Any())
	}
	return &logrHandler{sink: h.sink, grp: h.grp, kv: kv}
}

func (h *logrHandler) WithGroup(name string) slog.Handler {
	return &logrHandler{sink: h.sink, grp: name, kv: h.kv}
}
