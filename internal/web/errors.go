package web

// errors.go turns service errors into JSON responses.
//
// Every failed request:
//  1. is mapped through core.MapError to a code, status and user message
//  2. is logged server-side with the full error and the request id
//  3. gets an ErrorResponse body; unknown errors never leak their detail

import (
	"net/http"

	"github.com/JonMunkholm/ingest/internal/core"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Code   string `json:"code"`
	Action string `json:"action,omitempty"`
}

// respondError logs err and writes the mapped response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"kind", msg.Kind.String(),
		"code", msg.Code,
		"error", err.Error(),
	}
	// Unknown errors still get a client status but are logged as bugs.
	if msg.Kind == errs.KindUnknown {
		logger.Error("request failed", attrs...)
	} else {
		logger.Warn("request failed", attrs...)
	}

	writeError(w, msg.Status, ErrorResponse{
		Error:  msg.Message,
		Kind:   msg.Kind.String(),
		Code:   msg.Code,
		Action: msg.Action,
	})
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}
