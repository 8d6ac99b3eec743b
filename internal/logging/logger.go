package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"climate-api/internal/config"
)

// New builds the process logger. Development builds get colored tint output
// with source locations; release builds emit JSON. CLI commands that print
// results on stdout pass stderr as w so the two streams never mix.
func New(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"db_driver", cfg.Driver,
	)
}
