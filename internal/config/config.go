package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// Driver is the database/sql driver name: "sqlite3" or "mysql".
	Driver string
	// DSN overrides the connection string built from Path. Required for mysql.
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts uint
	LogQueries      bool

	// QueryTimeout bounds every store session opened for a request.
	QueryTimeout time.Duration

	// MQTTBroker empty disables the status announcer.
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTStatusTopic string
}

// fileConfig mirrors the YAML layout accepted via CONFIG_FILE. Every value is
// optional and only used when the matching environment variable is unset.
type fileConfig struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
	DB       struct {
		Driver          string `yaml:"driver"`
		DSN             string `yaml:"dsn"`
		SQLitePath      string `yaml:"sqlite_path"`
		MaxOpenConns    string `yaml:"max_open_conns"`
		MaxIdleConns    string `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		ConnectAttempts string `yaml:"connect_attempts"`
		LogQueries      string `yaml:"log_queries"`
		QueryTimeout    string `yaml:"query_timeout"`
	} `yaml:"db"`
	MQTT struct {
		Broker      string `yaml:"broker"`
		Port        string `yaml:"port"`
		ClientID    string `yaml:"client_id"`
		StatusTopic string `yaml:"status_topic"`
	} `yaml:"mqtt"`
}

// LoadFromEnv reads the configuration from the process environment. A .env
// file in the working directory is loaded first when present, and CONFIG_FILE
// may point at a YAML file providing fallbacks for unset variables.
func LoadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var file fileConfig
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("CONFIG_FILE %q: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &file); err != nil {
			return Config{}, fmt.Errorf("parse CONFIG_FILE %q: %w", path, err)
		}
	}

	appEnv := setting("APP_ENV", file.AppEnv, "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(setting("LOG_LEVEL", file.LogLevel, "info"))
	if err != nil {
		return Config{}, err
	}

	httpAddr := setting("HTTP_ADDR", file.HTTPAddr, ":8080")

	driver := setting("DB_DRIVER", file.DB.Driver, "sqlite3")
	switch driver {
	case "sqlite3", "mysql":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, mysql)", driver)
	}
	dsn := setting("DB_DSN", file.DB.DSN, "")
	if driver == "mysql" && dsn == "" {
		return Config{}, errors.New("DB_DSN is required when DB_DRIVER=mysql")
	}
	path := setting("SQLITE_PATH", file.DB.SQLitePath, "hawaii.sqlite")

	maxOpenConns, err := intSetting("DB_MAX_OPEN_CONNS", file.DB.MaxOpenConns, "4")
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intSetting("DB_MAX_IDLE_CONNS", file.DB.MaxIdleConns, "4")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := durationSetting("DB_CONN_MAX_LIFETIME", file.DB.ConnMaxLifetime, "0s")
	if err != nil {
		return Config{}, err
	}
	attempts, err := intSetting("DB_CONNECT_ATTEMPTS", file.DB.ConnectAttempts, "3")
	if err != nil {
		return Config{}, err
	}
	if attempts < 1 {
		return Config{}, fmt.Errorf("invalid DB_CONNECT_ATTEMPTS %d: must be >= 1", attempts)
	}
	logQueriesStr := setting("DB_LOG_QUERIES", file.DB.LogQueries, "false")
	logQueries, err := strconv.ParseBool(logQueriesStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_LOG_QUERIES %q: %w", logQueriesStr, err)
	}
	queryTimeout, err := durationSetting("QUERY_TIMEOUT", file.DB.QueryTimeout, "5s")
	if err != nil {
		return Config{}, err
	}
	if queryTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid QUERY_TIMEOUT %s: must be > 0", queryTimeout)
	}

	mqttPort, err := intSetting("MQTT_PORT", file.MQTT.Port, "1883")
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        httpAddr,
		Driver:          driver,
		DSN:             dsn,
		Path:            path,
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		ConnectAttempts: uint(attempts),
		LogQueries:      logQueries,
		QueryTimeout:    queryTimeout,
		MQTTBroker:      setting("MQTT_BROKER", file.MQTT.Broker, ""),
		MQTTPort:        mqttPort,
		MQTTClientID:    setting("MQTT_CLIENT_ID", file.MQTT.ClientID, "climate-api"),
		MQTTStatusTopic: setting("MQTT_STATUS_TOPIC", file.MQTT.StatusTopic, "climate-api/status"),
	}, nil
}

// setting resolves a value: environment first, then the config file, then def.
func setting(key, fromFile, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fromFile); v != "" {
		return v
	}
	return def
}

func intSetting(key, fromFile, def string) (int, error) {
	s := setting(key, fromFile, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func durationSetting(key, fromFile, def string) (time.Duration, error) {
	s := setting(key, fromFile, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
