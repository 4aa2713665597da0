package logger

import "log/slog"

// LoggingConfigSpec defines the logging configuration for the Configure function.
// This mirrors config.LoggingConfigSpec to avoid import cycles.
type LoggingConfigSpec struct {
	DefaultLevel string
	Format       string // "json" or "text"
	CommonFields map[string]string
}

// Log format constants
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Configure applies a LoggingConfigSpec to the global logger.
func Configure(cfg *LoggingConfigSpec) {
	if cfg == nil {
		return
	}

	level := slog.LevelInfo
	if cfg.DefaultLevel != "" {
		level = ParseLevel(cfg.DefaultLevel)
	}

	commonFields := make([]slog.Attr, 0, len(cfg.CommonFields))
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	mu.Lock()
	defer mu.Unlock()
	DefaultLogger = slog.New(NewContextHandler(newBaseHandler(level, cfg.Format == FormatJSON), commonFields...))
	slog.SetDefault(DefaultLogger)
}
