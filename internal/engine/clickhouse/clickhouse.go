// Package clickhouse implements engine.Conn over the ClickHouse native protocol.
package clickhouse

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/record"
)

const Name = "clickhouse"

// Factory opens ClickHouse connections.
type Factory struct{}

// New returns the ClickHouse factory.
func New() Factory { return Factory{} }

func (Factory) Name() string { return Name }

// Open creates a single-connection client. The first round trip happens in
// Ping, so Open itself does not block on the network.
func (Factory) Open(ctx context.Context, cfg engine.ConnConfig) (engine.Conn, error) {
	opts := &ch.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Token,
		},
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.DialTimeout = timeUntil(deadline)
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, mapError(err, "failed to open clickhouse connection", errs.KindConnection)
	}
	return &Conn{conn: conn}, nil
}

// Conn is a ClickHouse connection.
type Conn struct {
	conn driver.Conn
}

func quote(name string) string { return engine.QuoteWith(name, '`', '`') }

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed", errs.KindConnection)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	return c.names(ctx, "failed to list tables",
		"SELECT name FROM system.tables WHERE database = currentDatabase() ORDER BY name")
}

func (c *Conn) ListColumns(ctx context.Context, table string) ([]string, error) {
	cols, err := c.names(ctx, "failed to list columns",
		"SELECT name FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position", table)
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
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, msg, errs.KindSchema)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, msg, errs.KindSchema)
	}
	return out, nil
}

// SelectSQL renders the projection query.
func SelectSQL(q engine.Query) string {
	s := fmt.Sprintf("SELECT %s FROM %s", engine.JoinQuoted(q.Columns, quote), quote(q.Table))
	if q.Limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return s
}

func (c *Conn) Select(ctx context.Context, q engine.Query) (engine.Rows, error) {
	rows, err := c.conn.Query(ctx, SelectSQL(q))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("failed to query table %q", q.Table), errs.KindQuery)
	}

	types := rows.ColumnTypes()
	scanTypes := make([]reflect.Type, len(types))
	for i, ct := range types {
		scanTypes[i] = ct.ScanType()
	}
	return &resultRows{rows: rows, names: rows.Columns(), scanTypes: scanTypes}, nil
}

type resultRows struct {
	rows      driver.Rows
	names     []string
	scanTypes []reflect.Type
}

func (r *resultRows) Columns() []string { return r.names }
func (r *resultRows) Next() bool        { return r.rows.Next() }
func (r *resultRows) Close() error      { return r.rows.Close() }

func (r *resultRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "failed reading result", errs.KindQuery)
	}
	return nil
}

// Row scans into freshly allocated values of each column's scan type, so
// Nullable columns arrive as nil pointers and become record.Null.
func (r *resultRows) Row() (record.Row, error) {
	dest := make([]any, len(r.scanTypes))
	for i, t := range r.scanTypes {
		dest[i] = reflect.New(t).Interface()
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, mapError(err, "failed to scan row", errs.KindQuery)
	}

	row := make(record.Row, len(dest))
	for i, d := range dest {
		row[i] = record.Field{Name: r.names[i], Value: record.FromAny(d)}
	}
	return row, nil
}

// ColumnDDL maps a logical column type to a ClickHouse type. Text columns are
// plain String so empty cells stay empty strings; every other type is
// Nullable so empty cells can be stored as NULL.
func ColumnDDL(t record.ColumnType) string {
	base := baseType(t)
	if base == "String" {
		return base
	}
	return "Nullable(" + base + ")"
}

// KeyColumnDDL is the type of a sorting key column. MergeTree rejects
// Nullable key columns, so key cells must never be empty.
func KeyColumnDDL(t record.ColumnType) string {
	return baseType(t)
}

func baseType(t record.ColumnType) string {
	switch t {
	case record.TypeInteger:
		return "Int64"
	case record.TypeFloat:
		return "Float64"
	case record.TypeBoolean:
		return "Bool"
	case record.TypeDate:
		return "Date32"
	case record.TypeTimestamp:
		return "DateTime64(3)"
	default:
		return "String"
	}
}

// CreateTableSQL renders the DDL for spec. The sorting key defaults to
// tuple() so MergeTree accepts tables without one.
func CreateTableSQL(spec engine.TableSpec) string {
	key := make(map[string]bool, len(spec.OrderBy))
	for _, name := range spec.OrderBy {
		key[name] = true
	}

	defs := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		if key[col.Name] {
			defs[i] = quote(col.Name) + " " + KeyColumnDDL(col.Type)
		} else {
			defs[i] = quote(col.Name) + " " + ColumnDDL(col.Type)
		}
	}

	orderBy := "tuple()"
	if len(spec.OrderBy) > 0 {
		orderBy = "(" + engine.JoinQuoted(spec.OrderBy, quote) + ")"
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY %s",
		quote(spec.Name), strings.Join(defs, ", "), orderBy)
}

func (c *Conn) CreateTable(ctx context.Context, spec engine.TableSpec) error {
	if err := c.conn.Exec(ctx, CreateTableSQL(spec)); err != nil {
		return mapError(err, fmt.Sprintf("failed to create table %q", spec.Name), errs.KindSchema)
	}
	return nil
}

// InsertBatch sends rows as one native block.
func (c *Conn) InsertBatch(ctx context.Context, table string, columns []string, rows [][]record.Value) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s)", quote(table), engine.JoinQuoted(columns, quote))
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("failed to prepare insert into %q", table), errs.KindQuery)
	}

	args := make([]any, len(columns))
	for _, row := range rows {
		for i, v := range row {
			args[i] = v.Native()
		}
		if err := batch.Append(args...); err != nil {
			_ = batch.Abort()
			return 0, mapError(err, fmt.Sprintf("failed to append row for %q", table), errs.KindQuery)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, mapError(err, fmt.Sprintf("failed to insert batch into %q", table), errs.KindQuery)
	}
	return int64(len(rows)), nil
}
