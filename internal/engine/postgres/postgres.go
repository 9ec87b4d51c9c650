// Package postgres implements engine.Conn on top of pgx.
package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/record"
)

const Name = "postgres"

const closeTimeout = 5 * time.Second

// Factory opens PostgreSQL connections.
type Factory struct {
	SSLMode string // defaults to "prefer"
}

// New returns the PostgreSQL factory.
func New() Factory { return Factory{} }

func (Factory) Name() string { return Name }

// DSN builds the connection URL. Credentials are escaped by net/url.
func (f Factory) DSN(cfg engine.ConnConfig) string {
	sslMode := f.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Token),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func (f Factory) Open(ctx context.Context, cfg engine.ConnConfig) (engine.Conn, error) {
	conn, err := pgx.Connect(ctx, f.DSN(cfg))
	if err != nil {
		return nil, mapError(err, "failed to connect to postgres", errs.KindConnection)
	}
	return &Conn{conn: conn}, nil
}

// Conn is a single PostgreSQL connection.
type Conn struct {
	conn *pgx.Conn
}

func quote(name string) string { return pgx.Identifier{name}.Sanitize() }

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed", errs.KindConnection)
	}
	return nil
}

func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}

func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	return c.names(ctx, "failed to list tables", `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
}

func (c *Conn) ListColumns(ctx context.Context, table string) ([]string, error) {
	cols, err := c.names(ctx, "failed to list columns", `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errs.Newf(errs.KindSchema, "table %q not found", table)
	}
	return cols, nil
}

func (c *Conn) names(ctx context.Context, msg, query string, args ...any) ([]string, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, msg, errs.KindSchema)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err, msg, errs.KindSchema)
	}
	return out, nil
}

// SelectSQL renders the projection query.
func SelectSQL(q engine.Query) string {
	s := fmt.Sprintf("SELECT %s FROM %s", engine.JoinQuoted(q.Columns, quote), quote(q.Table))
	if q.Limit > 0 {
		s += " LIMIT " + strconv.Itoa(q.Limit)
	}
	return s
}

func (c *Conn) Select(ctx context.Context, q engine.Query) (engine.Rows, error) {
	rows, err := c.conn.Query(ctx, SelectSQL(q))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("failed to query table %q", q.Table), errs.KindQuery)
	}

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}
	return &resultRows{rows: rows, names: names}, nil
}

type resultRows struct {
	rows  pgx.Rows
	names []string
}

func (r *resultRows) Columns() []string { return r.names }
func (r *resultRows) Next() bool        { return r.rows.Next() }

func (r *resultRows) Close() error {
	r.rows.Close()
	return nil
}

func (r *resultRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "failed reading result", errs.KindQuery)
	}
	return nil
}

func (r *resultRows) Row() (record.Row, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, mapError(err, "failed to decode row", errs.KindQuery)
	}
	row := make(record.Row, len(vals))
	for i, v := range vals {
		row[i] = record.Field{Name: r.names[i], Value: toValue(v)}
	}
	return row, nil
}

// toValue handles the pgtype values that have no direct record form.
func toValue(v any) record.Value {
	switch t := v.(type) {
	case [16]byte:
		return record.Text(uuid.UUID(t).String())
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return record.Text(fmt.Sprint(v))
		}
		return record.FromAny(dv)
	}
	return record.FromAny(v)
}

// ColumnDDL maps a logical column type to a PostgreSQL type.
func ColumnDDL(t record.ColumnType) string {
	switch t {
	case record.TypeInteger:
		return "BIGINT"
	case record.TypeFloat:
		return "DOUBLE PRECISION"
	case record.TypeBoolean:
		return "BOOLEAN"
	case record.TypeDate:
		return "DATE"
	case record.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// CreateTableSQL renders the DDL for spec. OrderBy has no PostgreSQL meaning
// and is ignored.
func CreateTableSQL(spec engine.TableSpec) string {
	defs := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		defs[i] = quote(col.Name) + " " + ColumnDDL(col.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(spec.Name), strings.Join(defs, ", "))
}

func (c *Conn) CreateTable(ctx context.Context, spec engine.TableSpec) error {
	if _, err := c.conn.Exec(ctx, CreateTableSQL(spec)); err != nil {
		return mapError(err, fmt.Sprintf("failed to create table %q", spec.Name), errs.KindSchema)
	}
	return nil
}

// InsertBatch uses the COPY protocol for one batch.
func (c *Conn) InsertBatch(ctx context.Context, table string, columns []string, rows [][]record.Value) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	src := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v.Native()
		}
		src[i] = vals
	}

	n, err := c.conn.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(src))
	if err != nil {
		return n, mapError(err, fmt.Sprintf("failed to insert batch into %q", table), errs.KindQuery)
	}
	return n, nil
}
