package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any), and environment variables, then validates it.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()

	if err := walk(root, applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		if err := overlayYAML(cfg, path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := walk(root, applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// overlayYAML decodes the file onto cfg. Keys absent from the file keep
// their current value; unknown keys are an error.
func overlayYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type fieldFunc func(field reflect.StructField, v reflect.Value) error

// walk calls fn for every leaf field carrying an env tag.
func walk(v reflect.Value, fn fieldFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walk(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("env") == "" {
			continue
		}
		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

func applyDefault(field reflect.StructField, v reflect.Value) error {
	def := field.Tag.Get("default")
	if def == "" {
		return nil
	}
	if err := setField(v, def); err != nil {
		return fmt.Errorf("invalid default for %s=%q: %w", field.Tag.Get("env"), def, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, v reflect.Value) error {
	name := field.Tag.Get("env")
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil
	}
	if err := setField(v, value); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var knownEngines = map[string]bool{
	"clickhouse": true, "postgres": true, "mysql": true, "sqlite": true, "sqlserver": true,
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var problems []string

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		problems = append(problems, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Database
	if !knownEngines[strings.ToLower(c.Database.DefaultEngine)] {
		problems = append(problems, fmt.Sprintf("DB_DEFAULT_ENGINE (%q) is not a supported engine", c.Database.DefaultEngine))
	}
	if strings.EqualFold(c.Database.DefaultEngine, "sqlite") && !c.Database.SQLiteEnabled() {
		problems = append(problems, "DB_DEFAULT_ENGINE is sqlite but DB_SQLITE_DIR is not set")
	}
	if c.Database.ConnectTimeout <= 0 {
		problems = append(problems, "DB_CONNECT_TIMEOUT must be positive")
	}
	if c.Database.QueryTimeout <= 0 {
		problems = append(problems, "DB_QUERY_TIMEOUT must be positive")
	}

	// Transfer
	if c.Transfer.BatchSize <= 0 {
		problems = append(problems, "TRANSFER_BATCH_SIZE must be positive")
	}
	if c.Transfer.PreviewLimit <= 0 {
		problems = append(problems, "TRANSFER_PREVIEW_LIMIT must be positive")
	}
	if c.Transfer.MaxFileSize <= 0 {
		problems = append(problems, "TRANSFER_MAX_FILE_SIZE must be positive")
	}
	if c.Transfer.MaxConcurrent <= 0 {
		problems = append(problems, "TRANSFER_MAX_CONCURRENT must be positive")
	}
	if c.Transfer.MaxWait <= 0 {
		problems = append(problems, "TRANSFER_MAX_WAIT must be positive")
	}
	if c.Transfer.Timeout <= 0 {
		problems = append(problems, "TRANSFER_TIMEOUT must be positive")
	}

	// Export
	switch strings.ToLower(c.Export.Sink) {
	case "local":
		if c.Export.Dir == "" {
			problems = append(problems, "EXPORT_DIR is required for the local sink")
		}
	case "minio":
		if c.Storage.Endpoint == "" {
			problems = append(problems, "MINIO_ENDPOINT is required for the minio sink")
		}
		if c.Storage.Bucket == "" {
			problems = append(problems, "MINIO_BUCKET is required for the minio sink")
		}
	default:
		problems = append(problems, fmt.Sprintf("EXPORT_SINK (%q) must be one of: local, minio", c.Export.Sink))
	}
	if c.Export.Prefix == "" || strings.ContainsAny(c.Export.Prefix, `/\`) {
		problems = append(problems, "EXPORT_PREFIX must be non-empty and contain no path separators")
	}

	// Rate limit
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		problems = append(problems, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.TransferLimit <= 0 {
		problems = append(problems, "RATE_LIMIT_TRANSFER must be positive when rate limiting is enabled")
	}

	// Security
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		problems = append(problems, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Storage secrets and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Database: {DefaultEngine: %q, ConnectTimeout: %s, QueryTimeout: %s, SQLiteDir: %q}, ",
		c.Database.DefaultEngine, c.Database.ConnectTimeout, c.Database.QueryTimeout, c.Database.SQLiteDir)
	fmt.Fprintf(&b, "Transfer: {BatchSize: %d, MaxFileSize: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Transfer.BatchSize, c.Transfer.MaxFileSize, c.Transfer.MaxConcurrent, c.Transfer.Timeout)
	fmt.Fprintf(&b, "Export: {Sink: %q, Dir: %q, Prefix: %q}, ", c.Export.Sink, c.Export.Dir, c.Export.Prefix)
	if c.Storage.Endpoint != "" {
		fmt.Fprintf(&b, "Storage: {Endpoint: %q, Bucket: %q, SecretKey: [MASKED]}, ", c.Storage.Endpoint, c.Storage.Bucket)
	}
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d configured}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
