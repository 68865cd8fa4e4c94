// Package config provides centralized configuration management for the application.
// Values come from an optional YAML file, then environment variables, then
// struct-tag defaults, and are validated on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Import  ImportConfig  `yaml:"import"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `yaml:"port" env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request, body included (default: 60s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is 0 so a long import can still write its result (default: 0s)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining imports (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every route except import (default: 60s)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StorageConfig selects and tunes the record store.
type StorageConfig struct {
	// Backend is one of postgres, sqlite, memory (default: postgres)
	Backend string `yaml:"backend" env:"STORAGE_BACKEND" default:"postgres"`

	// URL is the Postgres connection string or the SQLite file path.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `yaml:"max_conns" env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `yaml:"min_conns" env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// ChunkSize is the default number of rows per transaction (default: 1000)
	ChunkSize int `yaml:"chunk_size" env:"IMPORT_CHUNK_SIZE" default:"1000"`

	// MaxErrors is the default error budget per run (default: 100)
	MaxErrors int `yaml:"max_errors" env:"IMPORT_MAX_ERRORS" default:"100"`

	// MaxFileSize is the maximum accepted upload in bytes (default: 100MB)
	MaxFileSize int64 `yaml:"max_file_size" env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the number of imports allowed to run at once (default: 4)
	MaxConcurrent int `yaml:"max_concurrent" env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a caller waits for an import slot (default: 30s)
	MaxWaitTime time.Duration `yaml:"max_wait_time" env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single import run (default: 10m)
	Timeout time.Duration `yaml:"timeout" env:"IMPORT_TIMEOUT" default:"10m"`
}

// RedisConfig configures the optional progress store.
type RedisConfig struct {
	// URL enables progress snapshots when set, e.g. redis://localhost:6379/0
	URL string `yaml:"url" env:"REDIS_URL"`

	// ProgressTTL is how long a snapshot outlives its last update (default: 24h)
	ProgressTTL time.Duration `yaml:"progress_ttl" env:"PROGRESS_TTL" default:"24h"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// ProgressEnabled reports whether a Redis URL was configured.
func (c *RedisConfig) ProgressEnabled() bool {
	return c.URL != ""
}
