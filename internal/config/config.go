// Package config provides centralized configuration management for the service.
// Settings come from built-in defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing order of precedence.
// Everything is validated on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Transfer TransferConfig  `yaml:"transfer"`
	Export   ExportConfig    `yaml:"export"`
	Storage  StorageConfig   `yaml:"storage"`
	Rate     RateLimitConfig `yaml:"rate"`
	Security SecurityConfig  `yaml:"security"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0" yaml:"host"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the request, body
	// included. Uploads can be large, so keep it generous (default: 10m)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"10m" yaml:"readTimeout"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, bounded by transfer timeouts)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s" yaml:"writeTimeout"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s" yaml:"idleTimeout"`

	// ShutdownTimeout bounds graceful shutdown, transfer drain included (default: 60s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"60s" yaml:"shutdownTimeout"`

	// RequestTimeout is the middleware timeout for non-transfer requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s" yaml:"requestTimeout"`
}

// DatabaseConfig holds settings shared by every target database connection.
// Credentials are never configured here; they arrive with each request.
type DatabaseConfig struct {
	// DefaultEngine is used when a request names no engine (default: clickhouse)
	DefaultEngine string `env:"DB_DEFAULT_ENGINE" default:"clickhouse" yaml:"defaultEngine"`

	// ConnectTimeout bounds dial and ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s" yaml:"connectTimeout"`

	// QueryTimeout bounds metadata and preview queries (default: 30s)
	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" default:"30s" yaml:"queryTimeout"`

	// PostgresSSLMode is the sslmode for postgres connections (default: prefer)
	PostgresSSLMode string `env:"DB_POSTGRES_SSLMODE" default:"prefer" yaml:"postgresSSLMode"`

	// SQLiteDir enables the sqlite engine; clients name database files
	// inside it. Empty leaves the engine unregistered (default: "")
	SQLiteDir string `env:"DB_SQLITE_DIR" yaml:"sqliteDir"`
}

// SQLiteEnabled reports whether the sqlite engine is registered.
func (d DatabaseConfig) SQLiteEnabled() bool {
	return strings.TrimSpace(d.SQLiteDir) != ""
}

// TransferConfig holds import and export settings.
type TransferConfig struct {
	// BatchSize is the number of rows per insert batch (default: 1000)
	BatchSize int `env:"TRANSFER_BATCH_SIZE" default:"1000" yaml:"batchSize"`

	// PreviewLimit caps preview responses (default: 100)
	PreviewLimit int `env:"TRANSFER_PREVIEW_LIMIT" default:"100" yaml:"previewLimit"`

	// MaxFileSize is the maximum accepted upload in bytes (default: 100MB)
	MaxFileSize int64 `env:"TRANSFER_MAX_FILE_SIZE" default:"104857600" yaml:"maxFileSize"`

	// MaxConcurrent is the number of transfers allowed at once (default: 5)
	MaxConcurrent int `env:"TRANSFER_MAX_CONCURRENT" default:"5" yaml:"maxConcurrent"`

	// MaxWait is how long to wait for a transfer slot (default: 30s)
	MaxWait time.Duration `env:"TRANSFER_MAX_WAIT" default:"30s" yaml:"maxWait"`

	// Timeout bounds a single import or export (default: 30m)
	Timeout time.Duration `env:"TRANSFER_TIMEOUT" default:"30m" yaml:"timeout"`
}

// ExportConfig selects where exported files go.
type ExportConfig struct {
	// Sink is "local" or "minio" (default: local)
	Sink string `env:"EXPORT_SINK" default:"local" yaml:"sink"`

	// Dir is the output directory of the local sink (default: ./exports)
	Dir string `env:"EXPORT_DIR" default:"./exports" yaml:"dir"`

	// Prefix starts every export file name (default: export)
	Prefix string `env:"EXPORT_PREFIX" default:"export" yaml:"prefix"`
}

// StorageConfig holds the S3-compatible object store used by the minio sink.
type StorageConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" yaml:"endpoint"`
	AccessKey string `env:"MINIO_ACCESS_KEY" yaml:"accessKey"`
	SecretKey string `env:"MINIO_SECRET_KEY" yaml:"secretKey"`
	Bucket    string `env:"MINIO_BUCKET" default:"exports" yaml:"bucket"`
	Prefix    string `env:"MINIO_PREFIX" yaml:"prefix"`
	Region    string `env:"MINIO_REGION" yaml:"region"`
	UseSSL    bool   `env:"MINIO_USE_SSL" default:"true" yaml:"useSSL"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100" yaml:"requestsPerMinute"`

	// TransferLimit is requests per minute for import and export endpoints (default: 10)
	TransferLimit int `env:"RATE_LIMIT_TRANSFER" default:"10" yaml:"transferLimit"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" yaml:"trustedProxies"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true" yaml:"enableCSP"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false" yaml:"requireAPIKey"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS" yaml:"apiKeys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" yaml:"level"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" yaml:"format"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
