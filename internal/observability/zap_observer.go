package observability

import "go.uber.org/zap"

// ZapObserver is an alternative to LoggingObserver for host
// applications already standardized on zap rather than slog, wired in
// through the same WithObserver option either one uses.
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver creates an observer writing through logger, or a
// production zap.Logger if logger is nil.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &ZapObserver{logger: logger}
}

func (zo *ZapObserver) OnEvent(event Event) {
	zo.logger.Debug("recordb_lifecycle",
		zap.String("event", string(event.Type)),
		zap.String("table", event.Table),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("data", event.Data),
	)
}
