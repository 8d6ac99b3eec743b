package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"climate-api/internal/climate"
	"climate-api/internal/climate/repository"
	"climate-api/internal/climate/service"
	climateviews "climate-api/internal/climate/views"
	"climate-api/internal/config"
	"climate-api/internal/db"
	"climate-api/internal/httpapi"
	"climate-api/internal/mqtt"
)

const (
	mqttConnectTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// Run serves the climate API until ctx is canceled. A store that cannot be
// reached at startup is fatal; an unreachable MQTT broker is not.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"queryTimeout", cfg.QueryTimeout,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttStatusTopic", cfg.MQTTStatusTopic,
	)

	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(logger, dbConn)
	logger.Info("database connection successful")

	if err := climateviews.LoadTemplates(); err != nil {
		return err
	}
	mux := httpapi.NewMux(dbConn, cfg.QueryTimeout)
	climateService := climate.RegisterFeature(mux, dbConn, cfg.QueryTimeout)

	var announcer *mqtt.Announcer
	if cfg.MQTTBroker != "" {
		announcer = startAnnouncer(ctx, cfg, logger, version, climateService)
	}

	srv := httpapi.NewServer(cfg, logger, mux)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if announcer != nil {
			announcer.Disconnect()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if announcer != nil {
		logger.Info("mqtt disconnecting")
		announcer.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

func startAnnouncer(ctx context.Context, cfg config.Config, logger *slog.Logger, version string, svc *service.Service) *mqtt.Announcer {
	announcer, err := mqtt.NewAnnouncer(cfg, version, logger)
	if err != nil {
		logger.Warn("mqtt announcer disabled", "error", err)
		return nil
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
	err = announcer.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		return announcer
	}

	info, err := svc.DatasetInfo(ctx)
	if err != nil {
		logger.Warn("dataset info unavailable for status", "error", err)
	}
	if err := announcer.Announce(info); err != nil {
		logger.Warn("mqtt status announce failed", "error", err)
	}
	return announcer
}

// WithService opens the store read-only and hands fn a service backed by it.
// The CLI uses it to answer the same questions as the HTTP routes.
func WithService(ctx context.Context, cfg config.Config, logger *slog.Logger, fn func(*service.Service) error) error {
	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(logger, dbConn)

	return fn(service.NewService(repository.NewRepository(dbConn), cfg.QueryTimeout))
}

func closeDB(logger *slog.Logger, dbConn *sql.DB) {
	if err := db.Close(dbConn); err != nil {
		logger.Error("db close", "error", err)
	}
}
