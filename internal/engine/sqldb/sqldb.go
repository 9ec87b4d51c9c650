// Package sqldb implements engine.Conn for any database/sql driver. Engine
// packages supply a Dialect describing quoting, placeholders, metadata
// queries, types and error classification.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/record"
)

// Dialect describes one database/sql backend.
type Dialect struct {
	Name       string
	DriverName string
	DSN        func(engine.ConnConfig) string
	Quote      func(string) string
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder func(n int) string
	// TablesQuery lists user tables ordered by name.
	TablesQuery string
	// ColumnsQuery lists a table's columns in ordinal order; it binds the
	// table name as its only argument.
	ColumnsQuery string
	TypeName     func(record.ColumnType) string
	// CreateTable renders DDL from quoted column definitions. Nil means
	// CREATE TABLE IF NOT EXISTS.
	CreateTable func(d *Dialect, table string, defs []string) (string, []any)
	// TopLimit selects SELECT TOP (n) instead of a trailing LIMIT n.
	TopLimit bool
	// MaxParams bounds the bind arguments of one statement.
	MaxParams int
	// Classify maps a driver error to a kind. ok=false leaves the
	// operation's fallback kind in place.
	Classify func(error) (kind errs.Kind, ok bool)
	// Validate overrides the network checks of engine.ConnConfig.
	Validate func(engine.ConnConfig) error
}

// Question is the "?" placeholder style.
func Question(int) string { return "?" }

// SelectSQL renders the projection query.
func (d *Dialect) SelectSQL(q engine.Query) string {
	cols := engine.JoinQuoted(q.Columns, d.Quote)
	switch {
	case q.Limit > 0 && d.TopLimit:
		return fmt.Sprintf("SELECT TOP (%d) %s FROM %s", q.Limit, cols, d.Quote(q.Table))
	case q.Limit > 0:
		return fmt.Sprintf("SELECT %s FROM %s LIMIT %d", cols, d.Quote(q.Table), q.Limit)
	default:
		return fmt.Sprintf("SELECT %s FROM %s", cols, d.Quote(q.Table))
	}
}

// CreateTableSQL renders the DDL for spec.
func (d *Dialect) CreateTableSQL(spec engine.TableSpec) (string, []any) {
	defs := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		defs[i] = d.Quote(col.Name) + " " + d.TypeName(col.Type)
	}
	if d.CreateTable != nil {
		return d.CreateTable(d, spec.Name, defs)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(spec.Name), strings.Join(defs, ", ")), nil
}

// RowsPerStatement is how many rows of width cols fit in one INSERT.
func (d *Dialect) RowsPerStatement(cols int) int {
	if cols <= 0 || d.MaxParams <= 0 {
		return 1
	}
	n := d.MaxParams / cols
	if n < 1 {
		n = 1
	}
	return n
}

// InsertSQL renders a multi-row INSERT for rows×cols bind arguments.
func (d *Dialect) InsertSQL(table string, columns []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	b.WriteString(engine.JoinQuoted(columns, d.Quote))
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (d *Dialect) mapError(err error, msg string, fallback errs.Kind) error {
	if err == nil {
		return nil
	}
	kind := fallback
	if d.Classify != nil {
		if k, ok := d.Classify(err); ok {
			kind = k
		}
	}
	return errs.Wrap(kind, msg, err)
}

// Factory opens connections for a Dialect.
type Factory struct {
	Dialect *Dialect
}

func (f Factory) Name() string { return f.Dialect.Name }

func (f Factory) Validate(cfg engine.ConnConfig) error {
	if f.Dialect.Validate != nil {
		return f.Dialect.Validate(cfg)
	}
	return cfg.Validate()
}

// Open creates a pool limited to one connection; the first round trip is
// the registry's Ping.
func (f Factory) Open(_ context.Context, cfg engine.ConnConfig) (engine.Conn, error) {
	db, err := sql.Open(f.Dialect.DriverName, f.Dialect.DSN(cfg))
	if err != nil {
		return nil, f.Dialect.mapError(err, fmt.Sprintf("failed to open %s", f.Dialect.Name), errs.KindConnection)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Conn{db: db, d: f.Dialect}, nil
}

// Conn is a database/sql backed engine.Conn.
type Conn struct {
	db *sql.DB
	d  *Dialect
}

// NewConn wraps an existing *sql.DB.
func NewConn(db *sql.DB, d *Dialect) *Conn {
	return &Conn{db: db, d: d}
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return c.d.mapError(err, "ping failed", errs.KindConnection)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.db.Close()
}

func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	return c.names(ctx, "failed to list tables", c.d.TablesQuery)
}

func (c *Conn) ListColumns(ctx context.Context, table string) ([]string, error) {
	cols, err := c.names(ctx, "failed to list columns", c.d.ColumnsQuery, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errs.Newf(errs.KindSchema, "table %q not found", table)
	}
	return cols, nil
}

func (c *Conn) names(ctx context.Context, msg, query string, args ...any) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.d.mapError(err, msg, errs.KindSchema)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, c.d.mapError(err, msg, errs.KindSchema)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, c.d.mapError(err, msg, errs.KindSchema)
	}
	return out, nil
}

func (c *Conn) Select(ctx context.Context, q engine.Query) (engine.Rows, error) {
	rows, err := c.db.QueryContext(ctx, c.d.SelectSQL(q))
	if err != nil {
		return nil, c.d.mapError(err, fmt.Sprintf("failed to query table %q", q.Table), errs.KindQuery)
	}
	names, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, c.d.mapError(err, "failed to read result columns", errs.KindQuery)
	}
	return &resultRows{rows: rows, names: names, d: c.d}, nil
}

type resultRows struct {
	rows  *sql.Rows
	names []string
	d     *Dialect
}

func (r *resultRows) Columns() []string { return r.names }
func (r *resultRows) Next() bool        { return r.rows.Next() }
func (r *resultRows) Close() error      { return r.rows.Close() }

func (r *resultRows) Err() error {
	return r.d.mapError(r.rows.Err(), "failed reading result", errs.KindQuery)
}

func (r *resultRows) Row() (record.Row, error) {
	vals := make([]any, len(r.names))
	ptrs := make([]any, len(r.names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, r.d.mapError(err, "failed to scan row", errs.KindQuery)
	}

	row := make(record.Row, len(vals))
	for i, v := range vals {
		row[i] = record.Field{Name: r.names[i], Value: record.FromAny(v)}
	}
	return row, nil
}

func (c *Conn) CreateTable(ctx context.Context, spec engine.TableSpec) error {
	query, args := c.d.CreateTableSQL(spec)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return c.d.mapError(err, fmt.Sprintf("failed to create table %q", spec.Name), errs.KindSchema)
	}
	return nil
}

// InsertBatch writes rows in one transaction, split into as few multi-row
// INSERT statements as the dialect's parameter limit allows.
func (c *Conn) InsertBatch(ctx context.Context, table string, columns []string, rows [][]record.Value) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	msg := fmt.Sprintf("failed to insert batch into %q", table)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, c.d.mapError(err, msg, errs.KindQuery)
	}
	defer func() { _ = tx.Rollback() }()

	per := c.d.RowsPerStatement(len(columns))
	stmts := make(map[int]string)

	var written int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		chunk := rows[start:end]

		query, ok := stmts[len(chunk)]
		if !ok {
			query = c.d.InsertSQL(table, columns, len(chunk))
			stmts[len(chunk)] = query
		}

		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			for _, v := range row {
				args = append(args, v.Native())
			}
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, c.d.mapError(err, msg, errs.KindQuery)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += n
		} else {
			written += int64(len(chunk))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, c.d.mapError(err, msg, errs.KindQuery)
	}
	return written, nil
}

// Numbered returns a placeholder func producing prefix1, prefix2, ...
func Numbered(prefix string) func(int) string {
	return func(n int) string { return prefix + strconv.Itoa(n) }
}
