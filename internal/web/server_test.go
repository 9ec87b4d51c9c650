package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/ingest/internal/config"
	"github.com/JonMunkholm/ingest/internal/core"
	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/engine/sqlite"
	"github.com/JonMunkholm/ingest/internal/sink"
)

type testEnv struct {
	server *Server
	dbName string
	dir    string
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeout: 30 * time.Second, ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{DefaultEngine: "sqlite"},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	dir := t.TempDir()
	out, err := sink.NewLocal(filepath.Join(dir, "exports"))
	require.NoError(t, err)

	reg := engine.NewRegistry("sqlite", time.Second, sqlite.New(dir))
	svc := core.NewService(reg, out, core.NewTransferLimiter(2, time.Second), core.Options{})
	s := NewServer(svc, cfg)
	t.Cleanup(func() {
		for _, rl := range s.limiters {
			rl.stop()
		}
	})
	return &testEnv{server: s, dbName: "test.db", dir: dir}
}

func (e *testEnv) connJSON(table string) string {
	b, _ := json.Marshal(map[string]string{"engine": "sqlite", "database": e.dbName, "table": table})
	return string(b)
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

// multipartRequest builds a form with a CSV file part and plain fields.
func multipartRequest(t *testing.T, path, csvBody string, fields map[string][]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="data.csv"`)
	h.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = io.WriteString(part, csvBody)
	require.NoError(t, err)

	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(name, v))
		}
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthAndEngines(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","transfers":{"active":0,"available":2,"maxConcurrent":2}}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/engines", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["sqlite"]`, rec.Body.String())
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `<option value="sqlite" selected>sqlite</option>`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/ingest/file-to-clickhouse")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestTestConnection(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.postJSON("/api/clickhouse/test", env.connJSON(""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Connection successful"}`, rec.Body.String())

	rec = env.postJSON("/api/clickhouse/test", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL001", decodeError(t, rec).Code)

	rec = env.postJSON("/api/clickhouse/test", ``)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postJSON("/api/clickhouse/test", `{"engine":"oracle","host":"h","port":"1521","database":"d","user":"u","jwtToken":"t"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "validation_error", body.Kind)
	assert.Contains(t, body.Error, "oracle")
}

func TestImportExportRoundTrip(t *testing.T) {
	env := newTestEnv(t, testConfig())
	csvBody := "id,name,score\n1,alpha,1.5\n2,beta,\n3,\"gamma, delta\",3\n"

	req := multipartRequest(t, "/api/ingest/file-to-clickhouse", csvBody, map[string][]string{
		"config":  {env.connJSON("people")},
		"columns": {"id,name", "score"},
		"types":   {`{"id":"integer","score":"float"}`},
	})
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var imported transferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	assert.Equal(t, int64(3), imported.RecordCount)
	assert.Equal(t, "Import successful", imported.Message)
	assert.NotEmpty(t, imported.TransferID)

	rec = env.postJSON("/api/clickhouse/tables", env.connJSON(""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["people"]`, rec.Body.String())

	rec = env.postJSON("/api/clickhouse/columns", env.connJSON("people"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["id","name","score"]`, rec.Body.String())

	rec = env.postJSON("/api/clickhouse/preview?columns=name&columns=id", env.connJSON("people"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"name":"alpha","id":1},{"name":"beta","id":2},{"name":"gamma, delta","id":3}]`, rec.Body.String())

	rec = env.postJSON("/api/ingest/clickhouse-to-file?columns=id,name", env.connJSON("people"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exported transferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Equal(t, int64(3), exported.RecordCount)
	assert.Regexp(t, `^export_\d+_[0-9a-f-]{36}\.csv$`, exported.OutputFile)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/exports/"+exported.OutputFile, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id,name\n1,alpha\n2,beta\n3,\"gamma, delta\"\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), exported.OutputFile)
}

func TestImportFlatConfigFields(t *testing.T) {
	env := newTestEnv(t, testConfig())
	req := multipartRequest(t, "/api/ingest/file-to-clickhouse", "a;b\n1;2\n", map[string][]string{
		"engine":    {"sqlite"},
		"database":  {env.dbName},
		"table":     {"flat"},
		"delimiter": {";"},
		"columns":   {"b"},
	})
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"recordCount":1`)
}

func TestImportErrors(t *testing.T) {
	env := newTestEnv(t, testConfig())

	tests := []struct {
		name     string
		csv      string
		fields   map[string][]string
		wantCode string
	}{
		{"missing column", "a,b\n1,2\n", map[string][]string{"config": {env.connJSON("t")}, "columns": {"c"}}, "COL001"},
		{"no table", "a\n1\n", map[string][]string{"config": {env.connJSON("")}, "columns": {"a"}}, "SCHEMA001"},
		{"bad types json", "a\n1\n", map[string][]string{"config": {env.connJSON("t")}, "columns": {"a"}, "types": {"[1]"}}, "VAL001"},
		{"unknown type", "a\n1\n", map[string][]string{"config": {env.connJSON("t")}, "columns": {"a"}, "types": {`{"a":"blob"}`}}, "VAL001"},
		{"bad delimiter", "a\n1\n", map[string][]string{"config": {env.connJSON("t")}, "columns": {"a"}, "delimiter": {"ab"}}, "VAL001"},
		{"unparsable integer", "a\nx\n", map[string][]string{"config": {env.connJSON("t")}, "columns": {"a"}, "types": {`{"a":"integer"}`}}, "VAL001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(multipartRequest(t, "/api/ingest/file-to-clickhouse", tt.csv, tt.fields))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestImportSQLitePathOutsideDir(t *testing.T) {
	env := newTestEnv(t, testConfig())
	outside := filepath.Join(t.TempDir(), "anywhere.db")

	for _, database := range []string{outside, "../anywhere.db", "file:" + outside + "?mode=rwc"} {
		conn, _ := json.Marshal(map[string]string{"engine": "sqlite", "database": database, "table": "t"})
		rec := env.do(multipartRequest(t, "/api/ingest/file-to-clickhouse", "a\n1\n", map[string][]string{
			"config":  {string(conn)},
			"columns": {"a"},
		}))
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, "VAL001", decodeError(t, rec).Code)
	}
	assert.NoFileExists(t, outside)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(env.dir), "anywhere.db"))
}

func TestSQLiteNotRegisteredByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.Database.DefaultEngine = "clickhouse"
	env := newTestEnv(t, cfg)
	env.server.service = core.NewService(engine.NewRegistry("clickhouse", time.Second), nil, nil, core.Options{})

	rec := env.postJSON("/api/clickhouse/tables", `{"engine":"sqlite","database":"x.db"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "unsupported engine")
}

func TestImportWithoutFile(t *testing.T) {
	env := newTestEnv(t, testConfig())
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("columns", "a"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/file-to-clickhouse", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no file provided", decodeError(t, rec).Error)
}

func TestFileEndpoints(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(multipartRequest(t, "/api/file/columns", "\ufeffx\ty\tz\n1\t2\t3\n", map[string][]string{"delimiter": {"tab"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `["x","y","z"]`, rec.Body.String())

	rec = env.do(multipartRequest(t, "/api/file/preview", "a,b,c\n1,2,3\n4,5,6\n", map[string][]string{"columns": {"c", "a"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"c":"3","a":"1"},{"c":"6","a":"4"}]`, rec.Body.String())

	rec = env.do(multipartRequest(t, "/api/file/preview", "a,b\n1,2\n", map[string][]string{"columns": {"zz"}}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "column_error", body.Kind)
	assert.Equal(t, "COL001", body.Code)
}

func TestFileTooLarge(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.server.service = core.NewService(engine.NewRegistry("sqlite", time.Second, sqlite.New(env.dir)), nil, nil,
		core.Options{MaxFileSize: 16})

	big := "a\n" + strings.Repeat("1\n", formOverhead)
	rec := env.do(multipartRequest(t, "/api/file/columns", big, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "file too large")
}

func TestDownloadExportErrors(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/exports/missing.csv", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NF001", decodeError(t, rec).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/exports/..hidden", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewUnknownTable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.postJSON("/api/clickhouse/preview?columns=a", env.connJSON("absent"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query_error", decodeError(t, rec).Kind)

	rec = env.postJSON("/api/clickhouse/preview", env.connJSON("absent"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no columns selected", decodeError(t, rec).Error)
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	env := newTestEnv(t, cfg)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/engines", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/engines", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 3, TransferLimit: 1}
	env := newTestEnv(t, cfg)

	for i := 0; i < 3; i++ {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("request %d", i))
	}
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestWithRequestMetadata(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"198.51.100.7", "198.51.100.7"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = tt.remote
		req.Header.Set("User-Agent", "curl/8.4")

		c := core.ClientFromContext(WithRequestMetadata(req.Context(), req))
		assert.Equal(t, tt.want, c.IP, tt.remote)
		assert.Equal(t, "curl/8.4", c.UserAgent)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", " c ", ""}))
	assert.Nil(t, splitList(nil))
}

func TestConnRequestPort(t *testing.T) {
	for _, body := range []string{`{"port":9000}`, `{"port":"9000"}`} {
		cfg, err := parseConnJSON([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
	}
	_, err := parseConnJSON([]byte(`{"port":"abc"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be a number")
}
