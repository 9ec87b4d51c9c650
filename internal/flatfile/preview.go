package flatfile

import (
	"errors"
	"io"

	"github.com/JonMunkholm/ingest/internal/record"
)

// DefaultPreviewLimit bounds preview results.
const DefaultPreviewLimit = 100

// Columns returns the header fields of r in file order.
func Columns(r io.Reader, opts Options) ([]string, error) {
	fr, err := NewReader(r, opts)
	if err != nil {
		return nil, err
	}
	return fr.Header(), nil
}

// Preview projects columns from at most limit data lines of r. Values are
// always text. limit <= 0 means DefaultPreviewLimit.
func Preview(r io.Reader, opts Options, columns []string, limit int) ([]record.Row, error) {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}

	fr, err := NewReader(r, opts)
	if err != nil {
		return nil, err
	}
	proj, err := fr.Project(columns)
	if err != nil {
		return nil, err
	}

	rows := make([]record.Row, 0, min(limit, 16))
	for len(rows) < limit {
		rec, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := proj.Row(rec, fr.Line())
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
