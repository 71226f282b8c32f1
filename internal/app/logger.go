package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger based on configuration.
// Production defaults to JSON output; LOG_FORMAT overrides either way.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	format := "pretty"
	if cfg != nil {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			opts.Level = level
		}
		format = cfg.LogFormat
		if format == "" && cfg.IsProduction() {
			format = "json"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
