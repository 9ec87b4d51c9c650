package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/logging"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		logLevel  string
		hidesText string
	}{
		{"unkinded error is a client error", errors.New("nil map write in handler"), http.StatusBadRequest, "ERR000", `"level":"ERROR"`, "nil map write"},
		{"validation error", errs.New(errs.KindValidation, "bad input"), http.StatusBadRequest, "VAL001", `"level":"WARN"`, ""},
		{"busy", errs.New(errs.KindBusy, "full"), http.StatusTooManyRequests, "BUSY001", `"level":"WARN"`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(logging.New(&buf, "info", "json"))
			defer slog.SetDefault(prev)

			rec := httptest.NewRecorder()
			respondError(rec, httptest.NewRequest(http.MethodPost, "/api/x", nil), tt.err)

			require.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Contains(t, buf.String(), tt.logLevel)
			if tt.hidesText != "" {
				assert.NotContains(t, body.Error, tt.hidesText)
			}
		})
	}
}
