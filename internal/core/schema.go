package core

import (
	"context"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/logging"
)

// TestConnection opens and pings a connection.
func (s *Service) TestConnection(ctx context.Context, cfg engine.ConnConfig) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	conn, resolved, err := s.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	logging.FromContext(ctx).Debug("connection ok", "target", resolved.URL())
	return nil
}

// ListTables returns the tables of the configured database, ordered by name.
func (s *Service) ListTables(ctx context.Context, cfg engine.ConnConfig) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	conn, _, err := s.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tables, err := conn.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

// ListColumns returns the columns of cfg.Table in ordinal order.
func (s *Service) ListColumns(ctx context.Context, cfg engine.ConnConfig) ([]string, error) {
	if err := cfg.RequireTable(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	conn, _, err := s.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.ListColumns(ctx, cfg.Table)
}
