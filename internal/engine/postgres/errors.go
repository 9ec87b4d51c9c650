package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInvalidAuthorization = "28000"
	pgErrInvalidPassword      = "28P01"
	pgErrInvalidCatalogName   = "3D000"
	pgErrSyntaxError          = "42601"
	pgErrInsufficientPriv     = "42501"
	pgErrUndefinedTable       = "42P01"
	pgErrUndefinedColumn      = "42703"
	pgErrInvalidTextRep       = "22P02"
	pgErrBadCopyFormat        = "22P04"
)

// mapError converts a pgx error into an *errs.Error.
func mapError(err error, msg string, fallback errs.Kind) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		detail := fmt.Sprintf("%s: %s", msg, pgErr.Message)
		switch {
		case pgErr.Code == pgErrInvalidPassword,
			pgErr.Code == pgErrInvalidAuthorization,
			pgErr.Code == pgErrInvalidCatalogName,
			strings.HasPrefix(pgErr.Code, "08"):
			return errs.Wrap(errs.KindConnection, detail, err)
		case pgErr.Code == pgErrSyntaxError,
			pgErr.Code == pgErrUndefinedTable,
			pgErr.Code == pgErrUndefinedColumn,
			pgErr.Code == pgErrInvalidTextRep,
			pgErr.Code == pgErrBadCopyFormat:
			return errs.Wrap(errs.KindQuery, detail, err)
		case pgErr.Code == pgErrInsufficientPriv:
			return errs.Wrap(fallback, msg+": permission denied", err)
		}
		return errs.Wrap(fallback, detail, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.KindConnection, msg, err)
	}

	return errs.Wrap(fallback, msg, err)
}
