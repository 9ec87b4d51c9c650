package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/flatfile"
	"github.com/JonMunkholm/ingest/internal/logging"
	"github.com/JonMunkholm/ingest/internal/record"
)

// ImportOptions shape the auto-created table.
type ImportOptions struct {
	// Types maps selected column names to logical types. Unlisted columns
	// are text.
	Types map[string]record.ColumnType
	// OrderBy is the sorting key for engines that need one. Key cells of a
	// typed column may not be empty.
	OrderBy []string
}

// tableSpec checks opts against the selection and builds the DDL input.
func (o ImportOptions) tableSpec(table string, columns []string) (engine.TableSpec, error) {
	selected := make(map[string]bool, len(columns))
	for _, c := range columns {
		selected[c] = true
	}
	for name := range o.Types {
		if !selected[name] {
			return engine.TableSpec{}, errs.Newf(errs.KindValidation, "type given for unselected column %q", name)
		}
	}
	for _, name := range o.OrderBy {
		if !selected[name] {
			return engine.TableSpec{}, errs.Newf(errs.KindValidation, "ordering key %q is not a selected column", name)
		}
	}

	spec := engine.TableSpec{Name: table, Columns: make([]record.Column, len(columns)), OrderBy: o.OrderBy}
	for i, c := range columns {
		t := o.Types[c]
		if t == "" {
			t = record.TypeText
		}
		spec.Columns[i] = record.Column{Name: c, Type: t}
	}
	return spec, nil
}

// ImportFromFile streams an upload into cfg.Table, creating the table when
// absent. Every selected column must be in the header. The returned count is
// the number of data lines inserted.
func (s *Service) ImportFromFile(ctx context.Context, cfg engine.ConnConfig, u Upload, delimiter rune, columns []string, opts ImportOptions) (Outcome, error) {
	if err := s.checkUpload(u); err != nil {
		return Outcome{}, err
	}
	if err := checkSelection(columns); err != nil {
		return Outcome{}, err
	}
	if err := cfg.RequireTable(); err != nil {
		return Outcome{}, err
	}
	spec, err := opts.tableSpec(cfg.Table, columns)
	if err != nil {
		return Outcome{}, err
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

	counter := flatfile.NewCountingReader(u.Body)
	reader, err := flatfile.NewReader(counter, flatfile.Options{Delimiter: delimiter, Charset: u.Charset})
	if err != nil {
		return Outcome{}, err
	}
	proj, err := reader.Project(columns)
	if err != nil {
		return Outcome{}, err
	}

	conn, resolved, err := s.connect(ctx, cfg)
	if err != nil {
		return Outcome{}, err
	}
	defer conn.Close()

	logger := logging.WithTransfer(ctx, out.TransferID, resolved.Engine, resolved.Table).
		With(ClientFromContext(ctx).logAttrs()...)
	logger.Info("import started", "file", u.Name, "size", u.Size, "columns", len(columns))

	if err := conn.CreateTable(ctx, spec); err != nil {
		return Outcome{}, err
	}

	key := make([]bool, len(spec.Columns))
	for i, col := range spec.Columns {
		key[i] = slices.Contains(spec.OrderBy, col.Name)
	}

	batch := make([][]record.Value, 0, s.opts.BatchSize)
	batches := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := conn.InsertBatch(ctx, cfg.Table, columns, batch); err != nil {
			return err
		}
		out.RecordCount += int64(len(batch))
		batches++
		batch = batch[:0]
		logger.Debug("batch inserted", "batch", batches, "rows", out.RecordCount)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return importFailed(logger, out, errs.Wrap(errs.KindTimeout, "import cancelled", err))
		}

		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return importFailed(logger, out, err)
		}

		line := reader.Line()
		cells, err := proj.Cells(rec, line)
		if err != nil {
			return importFailed(logger, out, err)
		}
		values, err := parseCells(cells, spec.Columns, key, line)
		if err != nil {
			return importFailed(logger, out, err)
		}

		batch = append(batch, values)
		if len(batch) >= s.opts.BatchSize {
			if err := flush(); err != nil {
				return importFailed(logger, out, err)
			}
		}
	}
	if err := flush(); err != nil {
		return importFailed(logger, out, err)
	}

	logger.Info("import complete",
		"rows", out.RecordCount,
		"batches", batches,
		"bytes", counter.BytesRead(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

// importFailed logs how far the import got; committed batches are not rolled back.
func importFailed(logger *slog.Logger, out Outcome, err error) (Outcome, error) {
	logger.Warn("import aborted", "rows_committed", out.RecordCount, "error", err)
	return Outcome{}, err
}

func parseCells(cells []string, cols []record.Column, key []bool, line int) ([]record.Value, error) {
	values := make([]record.Value, len(cells))
	for i, cell := range cells {
		v, err := record.Parse(cell, cols[i].Type)
		if err != nil {
			return nil, errs.Newf(errs.KindValidation, "line %d, column %q: %v", line, cols[i].Name, err)
		}
		if key[i] && v.IsNull() {
			return nil, errs.Newf(errs.KindValidation, "line %d, column %q: ordering key cell is empty", line, cols[i].Name)
		}
		values[i] = v
	}
	return values, nil
}
