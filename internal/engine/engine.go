// Package engine defines the contract every database backend implements and
// the Registry the service uses to open connections.
//
// Nothing above this package imports a concrete driver. Backends are
// registered explicitly when the server is wired:
//
//	reg := engine.NewRegistry("clickhouse", 10*time.Second,
//		clickhouse.New(), mysql.New(), sqlite.New("/var/lib/ingest"))
//	conn, err := reg.Open(ctx, cfg)
//	if err != nil { ... }
//	defer conn.Close()
package engine

import (
	"context"

	"github.com/JonMunkholm/ingest/internal/record"
)

// Conn is a single request-scoped connection to a database.
// Callers must Close it on every exit path.
type Conn interface {
	// Ping verifies the connection is usable.
	Ping(ctx context.Context) error

	// ListTables returns user table names ordered by name.
	ListTables(ctx context.Context) ([]string, error)

	// ListColumns returns the column names of table in ordinal order.
	// An absent table is reported as errs.KindSchema.
	ListColumns(ctx context.Context, table string) ([]string, error)

	// Select streams the projected columns of a table.
	Select(ctx context.Context, q Query) (Rows, error)

	// CreateTable creates the table when it does not exist yet.
	CreateTable(ctx context.Context, spec TableSpec) error

	// InsertBatch writes rows in a single round trip and returns the number
	// of rows written. Each row has one value per column.
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]record.Value) (int64, error)

	Close() error
}

// Rows is a streaming result set. Close must always be called.
type Rows interface {
	// Columns returns the names reported by the database, in projection order.
	Columns() []string
	Next() bool
	// Row returns the current row keyed by Columns.
	Row() (record.Row, error)
	Err() error
	Close() error
}

// Query describes a projection over one table.
type Query struct {
	Table   string
	Columns []string
	Limit   int // 0 means unbounded
}

// TableSpec describes a table to create.
type TableSpec struct {
	Name    string
	Columns []record.Column
	// OrderBy is the sorting key for engines that require one.
	// Engines without a sorting key ignore it.
	OrderBy []string
}

// Factory opens connections for one engine.
type Factory interface {
	Name() string
	Open(ctx context.Context, cfg ConnConfig) (Conn, error)
}

// Validator is implemented by factories whose connection requirements differ
// from the network defaults checked by ConnConfig.Validate.
type Validator interface {
	Validate(cfg ConnConfig) error
}
