package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-sql-driver/mysql"
	sqlite3 "github.com/mattn/go-sqlite3"

	"climate-api/internal/config"
)

const pingTimeout = 5 * time.Second

// Open connects to the climate store and verifies it answers. The ping is
// retried cfg.ConnectAttempts times; if the store still does not respond the
// error is returned and the caller is expected to abort startup.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.LogQueries {
		connector, err := NewLoggingConnector(driverFor(cfg.Driver), dsn, logger)
		if err != nil {
			return nil, err
		}
		db = sql.OpenDB(connector)
	} else {
		db, err = sql.Open(cfg.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			return db.PingContext(pingCtx)
		},
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("db ping failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}

func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func driverFor(name string) driver.Driver {
	if name == "mysql" {
		return &mysql.MySQLDriver{}
	}
	return &sqlite3.SQLiteDriver{}
}

func buildDSN(cfg config.Config) (string, error) {
	switch cfg.Driver {
	case "mysql":
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("DB_DSN: %w", err)
		}
		// Dates are compared and returned as YYYY-MM-DD strings.
		mc.ParseTime = false
		return mc.FormatDSN(), nil
	case "sqlite3", "":
	default:
		return "", fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	// The store is populated out of band and must already exist; never let
	// sqlite create an empty file in its place.
	path := strings.TrimPrefix(cfg.Path, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("sqlite store %q: %w", path, err)
	}

	params := []string{
		"mode=ro",
		"_busy_timeout=5000",
		"_foreign_keys=on",
	}

	if strings.HasPrefix(cfg.Path, "file:") {
		sep := "?"
		if strings.Contains(cfg.Path, "?") {
			sep = "&"
		}
		return cfg.Path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", cfg.Path, strings.Join(params, "&")), nil
}

// OpenWritable opens the sqlite file at path for the dataset tooling,
// creating it when missing. The server never uses it.
func OpenWritable(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}
