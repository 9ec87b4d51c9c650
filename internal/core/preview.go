package core

import (
	"context"
	"io"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/flatfile"
	"github.com/JonMunkholm/ingest/internal/record"
)

// Upload is a file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
	Charset     string // empty means UTF-8
}

func (u Upload) info() flatfile.FileInfo {
	return flatfile.FileInfo{Name: u.Name, Size: u.Size, ContentType: u.ContentType}
}

func (s *Service) checkUpload(u Upload) error {
	if u.Body == nil {
		return errs.New(errs.KindValidation, "no file provided")
	}
	return s.validator.Validate(u.info())
}

// PreviewTable returns at most PreviewLimit rows of the selected columns.
func (s *Service) PreviewTable(ctx context.Context, cfg engine.ConnConfig, columns []string) ([]record.Row, error) {
	if err := checkSelection(columns); err != nil {
		return nil, err
	}
	if err := cfg.RequireTable(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	conn, _, err := s.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.Select(ctx, engine.Query{Table: cfg.Table, Columns: columns, Limit: s.opts.PreviewLimit})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]record.Row, 0, s.opts.PreviewLimit)
	for len(out) < s.opts.PreviewLimit && rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FileColumns returns the header fields of an upload in file order.
func (s *Service) FileColumns(_ context.Context, u Upload, delimiter rune) ([]string, error) {
	if err := s.checkUpload(u); err != nil {
		return nil, err
	}
	return flatfile.Columns(u.Body, flatfile.Options{Delimiter: delimiter, Charset: u.Charset})
}

// PreviewFile projects the selected columns from the first PreviewLimit data
// lines of an upload. Values are text.
func (s *Service) PreviewFile(_ context.Context, u Upload, delimiter rune, columns []string) ([]record.Row, error) {
	if err := s.checkUpload(u); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errs.New(errs.KindValidation, "no columns selected")
	}
	return flatfile.Preview(u.Body, flatfile.Options{Delimiter: delimiter, Charset: u.Charset}, columns, s.opts.PreviewLimit)
}
