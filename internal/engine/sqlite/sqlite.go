// Package sqlite registers the embedded SQLite dialect of the database/sql
// engine. The database field of the connection configuration is a plain file
// name inside the directory the factory was created for; host, port and
// credentials are ignored.
package sqlite

import (
	"errors"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/engine/sqldb"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/record"
)

const Name = "sqlite"

// Primary SQLite result codes.
// Full list: https://www.sqlite.org/rescode.html
const (
	codeError    = 1
	codePerm     = 3
	codeReadOnly = 8
	codeCantOpen = 14
	codeAuth     = 23
	codeNotADB   = 26
)

// Dialect is the SQLite dialect.
var Dialect = &sqldb.Dialect{
	Name:        Name,
	DriverName:  "sqlite",
	DSN:         DSN,
	Quote:       func(s string) string { return engine.QuoteWith(s, '"', '"') },
	Placeholder: sqldb.Question,
	TablesQuery: `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`,
	ColumnsQuery: `SELECT name FROM pragma_table_info(?) ORDER BY cid`,
	TypeName:     typeName,
	MaxParams:    999,
	Classify:     classify,
}

// New returns a factory confined to dir. Databases are created there on
// first use.
func New(dir string) sqldb.Factory {
	d := *Dialect
	d.Validate = func(cfg engine.ConnConfig) error {
		_, err := Resolve(dir, cfg.Database)
		return err
	}
	d.DSN = func(cfg engine.ConnConfig) string {
		path, _ := Resolve(dir, cfg.Database)
		return DSN(engine.ConnConfig{Database: path})
	}
	return sqldb.Factory{Dialect: &d}
}

// DSN turns a resolved path into a file: URI with a busy timeout.
func DSN(cfg engine.ConnConfig) string {
	return "file:" + cfg.Database + "?_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Resolve maps a client-supplied database name to a path inside dir. Only
// plain names made of letters, digits, '.', '_' and '-' are accepted, so a
// name can neither leave dir nor carry URI parameters.
func Resolve(dir, name string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errs.New(errs.KindValidation, "the sqlite engine has no database directory configured")
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func checkName(name string) error {
	if name == "" {
		return errs.New(errs.KindValidation, "invalid connection configuration: missing or invalid database")
	}
	if len(name) > 255 || strings.HasPrefix(name, ".") {
		return errs.Newf(errs.KindValidation, "invalid sqlite database name %q", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return errs.Newf(errs.KindValidation, "invalid sqlite database name %q: use a plain file name", name)
		}
	}
	return nil
}

func typeName(t record.ColumnType) string {
	switch t {
	case record.TypeInteger:
		return "INTEGER"
	case record.TypeFloat:
		return "REAL"
	case record.TypeBoolean:
		return "BOOLEAN"
	case record.TypeDate:
		return "DATE"
	case record.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func classify(err error) (errs.Kind, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0, false
	}
	switch sqliteErr.Code() & 0xff {
	case codeCantOpen, codeNotADB, codeAuth:
		return errs.KindConnection, true
	case codePerm, codeReadOnly:
		return errs.KindSchema, true
	case codeError:
		return errs.KindQuery, true
	}
	return 0, false
}
