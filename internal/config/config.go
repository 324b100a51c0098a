// Package config is a small flag-parsed settings bundle shared by the
// recordb CLI and anything else that wants the same defaults without
// hand-rolling flag.Bool/flag.Int calls. It introduces no external
// config file format; flags and defaults only.
package config

import "flag"

// Settings controls the knobs NewDatabase's options expose.
type Settings struct {
	// LogBufferCapacity sizes the record log's initial backing buffer.
	LogBufferCapacity int
	// StatementCacheSize bounds the prepared-statement cache.
	StatementCacheSize int
	// SeqEndpoint is passed through to logging.Options.SeqEndpoint.
	SeqEndpoint string
	// DurabilityLogPath, when non-empty, enables WithDurabilityLog.
	DurabilityLogPath string
	// MetricsEnabled toggles WithMetrics.
	MetricsEnabled bool
}

// Default returns the settings recordb uses when a caller specifies
// nothing.
func Default() Settings {
	return Settings{
		LogBufferCapacity:  4096,
		StatementCacheSize: 100,
		SeqEndpoint:        "",
	}
}

// RegisterFlags binds fs's flags to s's fields, returning s for
// chaining after fs.Parse.
func RegisterFlags(fs *flag.FlagSet, s *Settings) *Settings {
	fs.IntVar(&s.LogBufferCapacity, "log-buffer-capacity", s.LogBufferCapacity, "initial record log buffer capacity in bytes")
	fs.IntVar(&s.StatementCacheSize, "statement-cache-size", s.StatementCacheSize, "prepared statement cache size")
	fs.StringVar(&s.SeqEndpoint, "seq-endpoint", s.SeqEndpoint, `Seq logging endpoint ("-" disables it)`)
	fs.StringVar(&s.DurabilityLogPath, "durability-log", s.DurabilityLogPath, "path to the durability log (disabled if empty)")
	fs.BoolVar(&s.MetricsEnabled, "metrics", s.MetricsEnabled, "register a Prometheus metrics collector")
	return s
}
