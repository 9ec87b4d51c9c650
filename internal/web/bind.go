package web

// bind.go decodes request inputs: connection configurations, column
// selections, delimiters and multipart uploads.

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/ingest/internal/core"
	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/flatfile"
	"github.com/JonMunkholm/ingest/internal/record"
)

const (
	// maxConfigBody caps JSON connection configurations.
	maxConfigBody = 64 << 10
	// multipartMemory is held in memory before form files spill to disk.
	multipartMemory = 8 << 20
	// formOverhead is allowed on top of the file size for the other fields.
	formOverhead = 1 << 20
)

// connRequest is the wire form of a connection configuration. Clients send
// the credential as token or jwtToken.
type connRequest struct {
	Engine   string   `json:"engine"`
	Host     string   `json:"host"`
	Port     flexPort `json:"port"`
	Database string   `json:"database"`
	User     string   `json:"user"`
	Token    string   `json:"token"`
	JWTToken string   `json:"jwtToken"`
	Table    string   `json:"table"`
}

func (c connRequest) config() engine.ConnConfig {
	token := c.Token
	if token == "" {
		token = c.JWTToken
	}
	return engine.ConnConfig{
		Engine:   strings.TrimSpace(c.Engine),
		Host:     strings.TrimSpace(c.Host),
		Port:     int(c.Port),
		Database: strings.TrimSpace(c.Database),
		User:     strings.TrimSpace(c.User),
		Token:    token,
		Table:    strings.TrimSpace(c.Table),
	}
}

// flexPort accepts a JSON number or a numeric string.
type flexPort int

func (p *flexPort) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return p.parse(s)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = flexPort(n)
	return nil
}

func (p *flexPort) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errs.Newf(errs.KindValidation, "port must be a number, got %q", s)
	}
	*p = flexPort(n)
	return nil
}

func parseConnJSON(data []byte) (engine.ConnConfig, error) {
	var req connRequest
	if err := json.Unmarshal(data, &req); err != nil {
		if errs.KindOf(err) != errs.KindUnknown {
			return engine.ConnConfig{}, err
		}
		return engine.ConnConfig{}, errs.Wrap(errs.KindValidation, "invalid connection configuration", err)
	}
	return req.config(), nil
}

// decodeConnConfig reads a JSON connection configuration from the body.
func decodeConnConfig(r *http.Request) (engine.ConnConfig, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody+1))
	if err != nil {
		return engine.ConnConfig{}, errs.Wrap(errs.KindIO, "failed to read request body", err)
	}
	if len(data) > maxConfigBody {
		return engine.ConnConfig{}, errs.New(errs.KindValidation, "connection configuration too large")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return engine.ConnConfig{}, errs.New(errs.KindValidation, "missing connection configuration")
	}
	return parseConnJSON(data)
}

// formConnConfig reads the configuration of a multipart request, either as a
// JSON "config" field or as flat fields.
func formConnConfig(r *http.Request) (engine.ConnConfig, error) {
	if raw := r.FormValue("config"); strings.TrimSpace(raw) != "" {
		return parseConnJSON([]byte(raw))
	}
	req := connRequest{
		Engine:   r.FormValue("engine"),
		Host:     r.FormValue("host"),
		Database: r.FormValue("database"),
		User:     r.FormValue("user"),
		Token:    r.FormValue("token"),
		JWTToken: r.FormValue("jwtToken"),
		Table:    r.FormValue("table"),
	}
	if err := req.Port.parse(r.FormValue("port")); err != nil {
		return engine.ConnConfig{}, err
	}
	return req.config(), nil
}

// splitList flattens repeated and comma-separated values, dropping blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// queryColumns returns the columns query parameter.
func queryColumns(r *http.Request) []string {
	return splitList(r.URL.Query()["columns"])
}

// formList returns a list field from a parsed form; query values count too.
func formList(r *http.Request, name string) []string {
	return splitList(r.Form[name])
}

// formTypes decodes the "types" field: a JSON object of column to type name.
func formTypes(r *http.Request) (map[string]record.ColumnType, error) {
	raw := strings.TrimSpace(r.FormValue("types"))
	if raw == "" {
		return nil, nil
	}
	var names map[string]string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, errs.Wrap(errs.KindValidation, "types must be a JSON object of column names to types", err)
	}
	types := make(map[string]record.ColumnType, len(names))
	for col, name := range names {
		t, err := record.ParseColumnType(name)
		if err != nil {
			return nil, errs.Newf(errs.KindValidation, "column %q: %v", col, err)
		}
		types[col] = t
	}
	return types, nil
}

// upload is a parsed multipart request.
type upload struct {
	core.Upload
	Delimiter rune
	cleanup   func()
}

func (u *upload) Close() {
	if u.cleanup != nil {
		u.cleanup()
	}
}

// parseUpload reads a multipart form holding "file", "delimiter" and
// "charset". The caller must Close the result.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize()+formOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return nil, errs.Newf(errs.KindValidation, "file too large: the limit is %d bytes", s.service.MaxFileSize())
		}
		return nil, errs.Wrap(errs.KindValidation, "invalid multipart form", err)
	}

	delimiter, err := flatfile.ParseDelimiter(r.FormValue("delimiter"))
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, errs.New(errs.KindValidation, "no file provided")
	}

	return &upload{
		Upload: core.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
			Charset:     r.FormValue("charset"),
		},
		Delimiter: delimiter,
		cleanup: func() {
			file.Close()
			_ = r.MultipartForm.RemoveAll()
		},
	}, nil
}

// queryDelimiter reads the optional delimiter query parameter of exports.
func queryDelimiter(r *http.Request) (rune, error) {
	return flatfile.ParseDelimiter(r.URL.Query().Get("delimiter"))
}
