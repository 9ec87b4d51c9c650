package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Database.DefaultEngine != "clickhouse" {
		t.Errorf("Database.DefaultEngine = %q, want clickhouse", cfg.Database.DefaultEngine)
	}
	if cfg.Database.SQLiteEnabled() {
		t.Errorf("Database.SQLiteDir = %q, want sqlite disabled by default", cfg.Database.SQLiteDir)
	}
	if cfg.Transfer.BatchSize != 1000 {
		t.Errorf("Transfer.BatchSize = %d, want 1000", cfg.Transfer.BatchSize)
	}
	if cfg.Transfer.PreviewLimit != 100 {
		t.Errorf("Transfer.PreviewLimit = %d, want 100", cfg.Transfer.PreviewLimit)
	}
	if cfg.Transfer.MaxFileSize != 100<<20 {
		t.Errorf("Transfer.MaxFileSize = %d, want %d", cfg.Transfer.MaxFileSize, 100<<20)
	}
	if cfg.Transfer.Timeout != 30*time.Minute {
		t.Errorf("Transfer.Timeout = %v, want 30m", cfg.Transfer.Timeout)
	}
	if cfg.Export.Sink != "local" {
		t.Errorf("Export.Sink = %q, want local", cfg.Export.Sink)
	}
	if !cfg.Storage.UseSSL {
		t.Error("Storage.UseSSL should default to true")
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TRANSFER_MAX_CONCURRENT", "10")
	t.Setenv("DB_CONNECT_TIMEOUT", "1m30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Transfer.MaxConcurrent != 10 {
		t.Errorf("Transfer.MaxConcurrent = %d, want %d", cfg.Transfer.MaxConcurrent, 10)
	}
	if cfg.Database.ConnectTimeout != 90*time.Second {
		t.Errorf("Database.ConnectTimeout = %v, want %v", cfg.Database.ConnectTimeout, 90*time.Second)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := writeYAML(t, `
server:
  port: 7000
database:
  defaultEngine: postgres
  queryTimeout: 45s
transfer:
  batchSize: 500
export:
  sink: minio
  prefix: nightly
storage:
  endpoint: minio.local:9000
  bucket: dumps
security:
  apiKeys: [a, b]
`)
	t.Setenv("SERVER_PORT", "7100")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 7100 {
		t.Errorf("env should win over file: Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Database.DefaultEngine != "postgres" {
		t.Errorf("Database.DefaultEngine = %q", cfg.Database.DefaultEngine)
	}
	if cfg.Database.QueryTimeout != 45*time.Second {
		t.Errorf("Database.QueryTimeout = %v", cfg.Database.QueryTimeout)
	}
	if cfg.Transfer.BatchSize != 500 {
		t.Errorf("Transfer.BatchSize = %d", cfg.Transfer.BatchSize)
	}
	if cfg.Transfer.MaxConcurrent != 5 {
		t.Errorf("keys absent from the file keep defaults: MaxConcurrent = %d", cfg.Transfer.MaxConcurrent)
	}
	if cfg.Export.Sink != "minio" || cfg.Storage.Bucket != "dumps" || cfg.Export.Prefix != "nightly" {
		t.Errorf("unexpected export/storage: %+v %+v", cfg.Export, cfg.Storage)
	}
	if len(cfg.Security.APIKeys) != 2 {
		t.Errorf("Security.APIKeys = %v", cfg.Security.APIKeys)
	}
}

func TestLoad_YAMLUnknownKey(t *testing.T) {
	path := writeYAML(t, "server:\n  prot: 1\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("TRANSFER_TIMEOUT", "soon")
	_, err := LoadFile("")
	if err == nil || !strings.Contains(err.Error(), "TRANSFER_TIMEOUT") {
		t.Fatalf("expected error naming TRANSFER_TIMEOUT, got %v", err)
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(expected) {
		t.Fatalf("TrustedProxies length = %d, want %d", len(cfg.Security.TrustedProxies), len(expected))
	}
	for i, v := range expected {
		if cfg.Security.TrustedProxies[i] != v {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], v)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"unknown engine", func(c *Config) { c.Database.DefaultEngine = "oracle" }, "DB_DEFAULT_ENGINE"},
		{"sqlite default without dir", func(c *Config) { c.Database.DefaultEngine = "sqlite" }, "DB_SQLITE_DIR"},
		{"zero batch size", func(c *Config) { c.Transfer.BatchSize = 0 }, "TRANSFER_BATCH_SIZE"},
		{"zero concurrency", func(c *Config) { c.Transfer.MaxConcurrent = 0 }, "TRANSFER_MAX_CONCURRENT"},
		{"unknown sink", func(c *Config) { c.Export.Sink = "ftp" }, "EXPORT_SINK"},
		{"minio without endpoint", func(c *Config) { c.Export.Sink = "minio" }, "MINIO_ENDPOINT"},
		{"prefix with slash", func(c *Config) { c.Export.Prefix = "a/b" }, "EXPORT_PREFIX"},
		{"api key required but none", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %s: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Port = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"SERVER_PORT", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"::1", 443, "[::1]:443"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigString_MasksSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Endpoint = "minio.local:9000"
	cfg.Storage.SecretKey = "supersecret"
	cfg.Security.APIKeys = []string{"key-123"}

	str := cfg.String()
	if strings.Contains(str, "supersecret") || strings.Contains(str, "key-123") {
		t.Errorf("String() leaks secrets: %s", str)
	}
	if !strings.Contains(str, "MASKED") {
		t.Error("String() should contain MASKED placeholder")
	}
}
