package flatfile

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/record"
)

// DefaultDelimiter separates fields when the caller gives none.
const DefaultDelimiter = ','

// ParseDelimiter accepts a single character, or "\t" / "tab" for a tab.
// Empty input means DefaultDelimiter.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultDelimiter, nil
	case `\t`, "tab", "\t":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, errs.Newf(errs.KindValidation, "delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, errs.Newf(errs.KindValidation, "invalid delimiter %q", s)
	}
	return r, nil
}

// Options control how an upload is read.
type Options struct {
	Delimiter rune   // 0 means DefaultDelimiter
	Charset   string // empty means UTF-8
}

// Reader streams records from a delimited file whose first line is the
// header.
type Reader struct {
	csv    *csv.Reader
	header []string
}

// NewReader decodes r and reads the header line. A file without a header
// line is a validation error.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	decoded, err := Decode(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(decoded)
	cr.Comma = opts.Delimiter
	if cr.Comma == 0 {
		cr.Comma = DefaultDelimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errs.New(errs.KindValidation, "file has no header line")
	}
	if err != nil {
		return nil, readError(err)
	}

	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}
	return &Reader{csv: cr, header: names}, nil
}

// Header returns the header fields in file order.
func (r *Reader) Header() []string { return r.header }

// Line returns the input line of the most recently read record.
func (r *Reader) Line() int {
	line, _ := r.csv.FieldPos(0)
	return line
}

// Next returns the next data record. The slice is reused between calls.
// It returns io.EOF after the last record.
func (r *Reader) Next() ([]string, error) {
	rec, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, readError(err)
	}
	return rec, nil
}

// Projection maps selected column names to header positions.
type Projection struct {
	Names   []string
	indices []int
	minLen  int
}

// Project resolves columns against the header. Every column must exist.
func (r *Reader) Project(columns []string) (*Projection, error) {
	if len(columns) == 0 {
		return nil, errs.New(errs.KindValidation, "no columns selected")
	}

	pos := make(map[string]int, len(r.header))
	for i, h := range r.header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	p := &Projection{Names: columns, indices: make([]int, len(columns))}
	var missing []string
	for i, c := range columns {
		idx, ok := pos[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		p.indices[i] = idx
		p.minLen = max(p.minLen, idx+1)
	}
	if len(missing) > 0 {
		return nil, errs.Newf(errs.KindColumn, "column(s) not found in file: %s", strings.Join(missing, ", "))
	}
	return p, nil
}

// Cells extracts the projected cells of rec in selection order.
func (p *Projection) Cells(rec []string, line int) ([]string, error) {
	if len(rec) < p.minLen {
		return nil, errs.Newf(errs.KindValidation, "line %d: expected at least %d fields, found %d", line, p.minLen, len(rec))
	}
	out := make([]string, len(p.indices))
	for i, idx := range p.indices {
		out[i] = rec[idx]
	}
	return out, nil
}

// Row builds a text-valued record.Row from rec.
func (p *Projection) Row(rec []string, line int) (record.Row, error) {
	cells, err := p.Cells(rec, line)
	if err != nil {
		return nil, err
	}
	row := make(record.Row, len(cells))
	for i, c := range cells {
		row[i] = record.Field{Name: p.Names[i], Value: record.Text(c)}
	}
	return row, nil
}

func readError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return errs.Wrap(errs.KindValidation, "malformed file", err)
	}
	return errs.Wrap(errs.KindIO, "failed to read file", err)
}
