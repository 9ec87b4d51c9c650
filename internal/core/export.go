package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/logging"
	"github.com/JonMunkholm/ingest/internal/sink"
)

// flushEvery bounds how many rows the CSV writer buffers before errors from
// the sink are checked.
const flushEvery = 1000

// Outcome describes a finished transfer.
type Outcome struct {
	TransferID  string `json:"transferId"`
	RecordCount int64  `json:"recordCount"`
	OutputFile  string `json:"outputFile,omitempty"`
	Location    string `json:"location,omitempty"`
}

// ExportName is the file name for export transferID started at t. The id
// keeps concurrent exports in the same millisecond apart.
func ExportName(prefix string, t time.Time, transferID string) string {
	return fmt.Sprintf("%s_%d_%s.csv", prefix, t.UnixMilli(), transferID)
}

// ExportToFile streams the selected columns of cfg.Table into a new sink
// object. The record count excludes the header line.
func (s *Service) ExportToFile(ctx context.Context, cfg engine.ConnConfig, columns []string, delimiter rune) (Outcome, error) {
	if s.sink == nil {
		return Outcome{}, errs.New(errs.KindValidation, "exports are not enabled")
	}
	if err := checkSelection(columns); err != nil {
		return Outcome{}, err
	}
	if err := cfg.RequireTable(); err != nil {
		return Outcome{}, err
	}
	if delimiter == 0 {
		delimiter = ','
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.opts.TransferTimeout)
	defer cancel()

	out := Outcome{TransferID: uuid.NewString()}
	start := time.Now()

	conn, resolved, err := s.connect(ctx, cfg)
	if err != nil {
		return Outcome{}, err
	}
	defer conn.Close()

	logger := logging.WithTransfer(ctx, out.TransferID, resolved.Engine, resolved.Table).
		With(ClientFromContext(ctx).logAttrs()...)
	logger.Info("export started", "columns", len(columns))

	rows, err := conn.Select(ctx, engine.Query{Table: cfg.Table, Columns: columns})
	if err != nil {
		return Outcome{}, err
	}
	defer rows.Close()

	name := ExportName(s.opts.ExportPrefix, s.opts.Now(), out.TransferID)
	obj, err := s.sink.Create(ctx, name)
	if err != nil {
		return Outcome{}, err
	}

	n, err := writeRows(obj, rows, delimiter)
	if err != nil {
		_ = obj.Abort()
		logger.Warn("export aborted", "rows_written", n, "error", err)
		return Outcome{}, err
	}
	if err := obj.Commit(); err != nil {
		return Outcome{}, err
	}

	out.RecordCount = n
	out.OutputFile = name
	out.Location = obj.Location()

	logger.Info("export complete",
		"rows", n,
		"file", name,
		"location", out.Location,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

func writeRows(obj sink.Object, rows engine.Rows, delimiter rune) (int64, error) {
	w := csv.NewWriter(obj)
	w.Comma = delimiter

	if err := w.Write(rows.Columns()); err != nil {
		return 0, errs.Wrap(errs.KindIO, "failed to write header", err)
	}

	var n int64
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return n, err
		}
		if err := w.Write(row.Strings()); err != nil {
			return n, errs.Wrap(errs.KindIO, "failed to write row", err)
		}
		n++
		if n%flushEvery == 0 {
			w.Flush()
			if err := w.Error(); err != nil {
				return n, errs.Wrap(errs.KindIO, "failed to write export", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return n, errs.Wrap(errs.KindIO, "failed to write export", err)
	}
	return n, nil
}
