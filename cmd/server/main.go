package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/ingest/internal/config"
	"github.com/JonMunkholm/ingest/internal/core"
	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/engine/clickhouse"
	"github.com/JonMunkholm/ingest/internal/engine/mssql"
	"github.com/JonMunkholm/ingest/internal/engine/mysql"
	"github.com/JonMunkholm/ingest/internal/engine/postgres"
	"github.com/JonMunkholm/ingest/internal/engine/sqlite"
	"github.com/JonMunkholm/ingest/internal/logging"
	"github.com/JonMunkholm/ingest/internal/sink"
	"github.com/JonMunkholm/ingest/internal/web"
)

func main() {
	// A missing .env is normal in containers.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	out, err := buildSink(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up export sink", "sink", cfg.Export.Sink, "error", err)
		os.Exit(1)
	}

	factories := []engine.Factory{
		clickhouse.New(),
		postgres.Factory{SSLMode: cfg.Database.PostgresSSLMode},
		mysql.New(),
		mssql.New(),
	}
	if cfg.Database.SQLiteEnabled() {
		if err := os.MkdirAll(cfg.Database.SQLiteDir, 0o750); err != nil {
			slog.Error("failed to create sqlite directory", "dir", cfg.Database.SQLiteDir, "error", err)
			os.Exit(1)
		}
		factories = append(factories, sqlite.New(cfg.Database.SQLiteDir))
	}

	engines := engine.NewRegistry(cfg.Database.DefaultEngine, cfg.Database.ConnectTimeout, factories...)
	slog.Info("engines registered", "engines", engines.Names(), "default", engines.Default())

	limiter := core.NewTransferLimiter(cfg.Transfer.MaxConcurrent, cfg.Transfer.MaxWait)
	service := core.NewService(engines, out, limiter, core.Options{
		BatchSize:       cfg.Transfer.BatchSize,
		PreviewLimit:    cfg.Transfer.PreviewLimit,
		MaxFileSize:     cfg.Transfer.MaxFileSize,
		QueryTimeout:    cfg.Database.QueryTimeout,
		TransferTimeout: cfg.Transfer.Timeout,
		ExportPrefix:    cfg.Export.Prefix,
	})

	server := web.NewServer(service, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func buildSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	switch strings.ToLower(cfg.Export.Sink) {
	case "minio":
		return sink.NewMinIO(ctx, sink.MinIOConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
	default:
		return sink.NewLocal(cfg.Export.Dir)
	}
}
