package core

// error_messages.go turns errors into user-facing messages with a code that
// can be quoted to support.
//
// Codes by kind:
//
//	CONN001   - Unable to connect to the database             (400)
//	SCHEMA001 - Table metadata unavailable                     (400)
//	QRY001    - The database rejected the query                (400)
//	COL001    - Requested column not found                     (400)
//	VAL001    - Invalid request                                (400)
//	IO001     - File could not be read or written              (400)
//	TIME001   - Operation timed out                            (408)
//	BUSY001   - Too many transfers in progress                 (429)
//	NF001     - File not found                                 (404)
//	ERR000    - Unexpected error, see logs with the request id (400)
//
// Every failure is reported with a client error status. For every kind except
// unknown, the detailed message of the error itself is shown to the user. Errors without a kind are matched against a few message
// patterns from drivers and the network stack; anything else only shows the
// generic message.

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// UserMessage is what a client sees for an error.
type UserMessage struct {
	Kind    errs.Kind
	Code    string // reference for support
	Message string // what happened
	Action  string // what to do about it
	Status  int    // HTTP status
}

var kindMessages = map[errs.Kind]UserMessage{
	errs.KindConnection: {
		Code:    "CONN001",
		Message: "Unable to connect to the database",
		Action:  "Check host, port, database, user and token",
		Status:  http.StatusBadRequest,
	},
	errs.KindSchema: {
		Code:    "SCHEMA001",
		Message: "Table metadata is unavailable",
		Action:  "Check the table name and that the user may read it",
		Status:  http.StatusBadRequest,
	},
	errs.KindQuery: {
		Code:    "QRY001",
		Message: "The database rejected the query",
		Action:  "Check the table and column names",
		Status:  http.StatusBadRequest,
	},
	errs.KindColumn: {
		Code:    "COL001",
		Message: "Requested column not found",
		Action:  "Pick columns from the file header",
		Status:  http.StatusBadRequest,
	},
	errs.KindValidation: {
		Code:    "VAL001",
		Message: "The request is invalid",
		Action:  "Correct the input and try again",
		Status:  http.StatusBadRequest,
	},
	errs.KindIO: {
		Code:    "IO001",
		Message: "The file could not be read or written",
		Action:  "Check the file and try again",
		Status:  http.StatusBadRequest,
	},
	errs.KindTimeout: {
		Code:    "TIME001",
		Message: "The operation timed out",
		Action:  "Try a smaller file or try again later",
		Status:  http.StatusRequestTimeout,
	},
	errs.KindBusy: {
		Code:    "BUSY001",
		Message: "Too many transfers in progress",
		Action:  "Please wait a moment and try again",
		Status:  http.StatusTooManyRequests,
	},
	errs.KindNotFound: {
		Code:    "NF001",
		Message: "File not found",
		Action:  "Check the file name returned by the export",
		Status:  http.StatusNotFound,
	},
}

var defaultMessage = UserMessage{
	Kind:    errs.KindUnknown,
	Code:    "ERR000",
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Status:  http.StatusBadRequest,
}

// unkindedPatterns classifies plain errors that escaped wrapping.
var unkindedPatterns = []struct {
	pattern string
	kind    errs.Kind
}{
	{"connection refused", errs.KindConnection},
	{"no such host", errs.KindConnection},
	{"i/o timeout", errs.KindTimeout},
	{"request body too large", errs.KindValidation},
	{"unexpected eof", errs.KindIO},
}

// MapError returns the user message for err. A nil error maps to the zero
// UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	kind := errs.KindOf(err)
	if kind == errs.KindUnknown {
		lower := strings.ToLower(err.Error())
		for _, p := range unkindedPatterns {
			if strings.Contains(lower, p.pattern) {
				msg := kindMessages[p.kind]
				msg.Kind = p.kind
				return msg
			}
		}
		return defaultMessage
	}

	msg := kindMessages[kind]
	msg.Kind = kind
	if detail := errs.Message(err); detail != "" {
		msg.Message = detail
	}
	return msg
}
