// Package logging builds recordb's default structured logger: a text
// handler to stdout, an optional Seq sink for queryable ingest/query
// telemetry, and an optional logr bridge for host applications that
// standardized on logr rather than slog.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-logr/logr"
	slogseq "github.com/sokkalf/slog-seq"
)

// multiHandler forwards log records to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Enable if any handler is enabled for this level
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Options configures SetupLogger.
type Options struct {
	// SeqEndpoint overrides the default local Seq instance
	// (http://localhost:5341); "-" disables the Seq handler outright.
	SeqEndpoint string
	// Logr, when non-nil, is bridged in as an additional handler via
	// NewLogrHandler, so library-mode callers see the same events
	// through their own logr sink.
	Logr *logr.Logger
}

// SetupLogger builds the logger (it does not install it as slog's
// default) and returns a cleanup function that must be called to
// flush and close the Seq handler.
func SetupLogger(opts Options) (*slog.Logger, func()) {
	handlerOpts := &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true}
	consoleHandler := slog.NewTextHandler(os.Stdout, handlerOpts)
	handlers := []slog.Handler{consoleHandler}

	endpoint := opts.SeqEndpoint
	if endpoint == "" {
		endpoint = "http://localhost:5341"
	}
	closeFn := func() {}
	if opts.SeqEndpoint != "-" {
		_, seqHandler := slogseq.NewLogger(
			endpoint,
			slogseq.WithBatchSize(1),
			slogseq.WithFlushInterval(500*time.Millisecond),
			slogseq.WithHandlerOptions(handlerOpts),
		)
		if seqHandler != nil {
			handlers = append(handlers, seqHandler)
			closeFn = func() { seqHandler.Close() }
		}
	}

	if opts.Logr != nil {
		handlers = append(handlers, NewLogrHandler(*opts.Logr))
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn
	}
	return slog.New(&multiHandler{handlers: handlers}), closeFn
}
