package clickhouse

import (
	"errors"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// ClickHouse server exception codes.
// Full list: https://github.com/ClickHouse/ClickHouse/blob/master/src/Common/ErrorCodes.cpp
const (
	codeNoSuchColumnInTable  = 16
	codeUnknownIdentifier    = 47
	codeUnknownTable         = 60
	codeSyntaxError          = 62
	codeUnknownDatabase      = 81
	codeUnknownUser          = 192
	codeRequiredPassword     = 194
	codeAccessDenied         = 497
	codeAuthenticationFailed = 516
)

// mapError converts a clickhouse-go error into an *errs.Error. Server
// exceptions with a known code override fallback.
func mapError(err error, msg string, fallback errs.Kind) error {
	if err == nil {
		return nil
	}

	var ex *ch.Exception
	if errors.As(err, &ex) {
		switch ex.Code {
		case codeAuthenticationFailed, codeUnknownUser, codeRequiredPassword, codeUnknownDatabase:
			return errs.Wrap(errs.KindConnection, fmt.Sprintf("%s: %s", msg, ex.Message), err)
		case codeUnknownTable, codeUnknownIdentifier, codeNoSuchColumnInTable, codeSyntaxError:
			return errs.Wrap(errs.KindQuery, fmt.Sprintf("%s: %s", msg, ex.Message), err)
		case codeAccessDenied:
			return errs.Wrap(fallback, fmt.Sprintf("%s: access denied", msg), err)
		}
		return errs.Wrap(fallback, fmt.Sprintf("%s: %s", msg, ex.Message), err)
	}

	return errs.Wrap(fallback, msg, err)
}

func timeUntil(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
