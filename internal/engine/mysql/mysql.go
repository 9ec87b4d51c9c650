// Package mysql registers the MySQL dialect of the database/sql engine.
package mysql

import (
	"errors"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/engine/sqldb"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/record"
)

const Name = "mysql"

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	errNoSuchTable     = 1146
	errBadFieldError   = 1054
	errParseError      = 1064
	errTruncatedValue  = 1292
	errIncorrectValue  = 1366
	errTableAccess     = 1142
	errConnRefused     = 2003
)

// Dialect is the MySQL dialect.
var Dialect = &sqldb.Dialect{
	Name:        Name,
	DriverName:  "mysql",
	DSN:         DSN,
	Quote:       func(s string) string { return engine.QuoteWith(s, '`', '`') },
	Placeholder: sqldb.Question,
	TablesQuery: `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`,
	ColumnsQuery: `SELECT column_name FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`,
	TypeName:  typeName,
	MaxParams: 65535,
	Classify:  classify,
}

// New returns the MySQL factory.
func New() sqldb.Factory { return sqldb.Factory{Dialect: Dialect} }

// DSN builds a go-sql-driver DSN with time parsing enabled.
func DSN(cfg engine.ConnConfig) string {
	c := gomysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Token
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	return c.FormatDSN()
}

func typeName(t record.ColumnType) string {
	switch t {
	case record.TypeInteger:
		return "BIGINT"
	case record.TypeFloat:
		return "DOUBLE"
	case record.TypeBoolean:
		return "BOOLEAN"
	case record.TypeDate:
		return "DATE"
	case record.TypeTimestamp:
		return "DATETIME(3)"
	default:
		return "TEXT"
	}
}

func classify(err error) (errs.Kind, bool) {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errAccessDenied, errUnknownDatabase, errConnRefused:
			return errs.KindConnection, true
		case errNoSuchTable, errBadFieldError, errParseError, errTruncatedValue, errIncorrectValue:
			return errs.KindQuery, true
		case errTableAccess:
			return errs.KindSchema, true
		}
		return 0, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.KindConnection, true
	}
	return 0, false
}
