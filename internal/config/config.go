// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, runs may be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-import requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL connection settings. When URL is empty the
// SQLite sink is used instead.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SQLiteConfig holds the embedded database settings.
type SQLiteConfig struct {
	// Path is the database file (default: sheetimport.db)
	Path string `env:"SQLITE_PATH" default:"sheetimport.db"`
}

// ImportConfig holds file handling and run settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel runs (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single run (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// SpoolDir holds uploads between preview and run (default: OS temp dir)
	SpoolDir string `env:"IMPORT_SPOOL_DIR"`

	// SpoolMaxAge is how long an unused upload is kept (default: 24h)
	SpoolMaxAge time.Duration `env:"IMPORT_SPOOL_MAX_AGE" default:"24h"`

	// CSVDelimiter is the CSV field separator, a single character or "tab" (default: ,)
	CSVDelimiter string `env:"IMPORT_CSV_DELIMITER" default:","`

	// CSVEncoding is the charset of CSV files (default: utf-8)
	CSVEncoding string `env:"IMPORT_CSV_ENCODING" default:"utf-8"`

	// XLSCharset is the charset of legacy .xls workbooks (default: cp1252)
	XLSCharset string `env:"IMPORT_XLS_CHARSET" default:"cp1252"`

	// SampleRows is the number of rows shown by preview (default: 5)
	SampleRows int `env:"IMPORT_SAMPLE_ROWS" default:"5"`

	// DefinitionsFile is a YAML file declaring additional importers
	DefinitionsFile string `env:"IMPORT_DEFINITIONS_FILE"`

	// DisableBuiltins skips the built-in importers (default: false)
	DisableBuiltins bool `env:"IMPORT_DISABLE_BUILTINS" default:"false"`

	// AuditTable receives one row per run; "-" disables auditing (default: import_audit)
	AuditTable string `env:"IMPORT_AUDIT_TABLE" default:"import_audit"`

	// HandleErrors reports failed runs as handled once logged (default: false)
	HandleErrors bool `env:"IMPORT_HANDLE_ERRORS" default:"false"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload and run endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of identity:key pairs
	APIKeys []string `env:"API_KEYS"`

	// IdentityHeader names the header a trusted proxy uses to pass the
	// caller's identity when API keys are not required (default: X-Remote-User)
	IdentityHeader string `env:"IDENTITY_HEADER" default:"X-Remote-User"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// UsePostgres reports whether a PostgreSQL URL is configured.
func (c *Config) UsePostgres() bool {
	return c.Database.URL != ""
}

// Delimiter returns the CSV delimiter as a rune, 0 for the reader default.
func (c *ImportConfig) Delimiter() rune {
	switch c.CSVDelimiter {
	case "", ",":
		return 0
	case "tab", `\t`:
		return '\t'
	}
	return []rune(c.CSVDelimiter)[0]
}

// AuditEnabled reports whether runs are audited.
func (c *ImportConfig) AuditEnabled() bool {
	return c.AuditTable != "" && c.AuditTable != "-"
}
