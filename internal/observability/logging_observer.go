package observability

import "log/slog"

// LoggingObserver logs every event with structured fields. Ingest and
// query lifecycle events log at Debug; tombstone marks log at Debug
// as well since they are routine, not exceptional.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver creates a logging observer writing through
// logger, or slog.Default() if logger is nil.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

func (lo *LoggingObserver) OnEvent(event Event) {
	lo.logger.Debug("recordb_lifecycle",
		"event", event.Type,
		"table", event.Table,
		"timestamp", event.Timestamp,
		"data", event.Data,
	)
}
