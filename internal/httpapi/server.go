package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"climate-api/internal/config"
)

func NewServer(cfg config.Config, logger *slog.Logger, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
		// Leave headroom above the store timeout so 504s still get written.
		WriteTimeout: cfg.QueryTimeout + 5*time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
