// Package flatfile reads delimited text uploads: validation, charset
// decoding, header inspection, column projection and preview.
package flatfile

import (
	"fmt"
	"mime"
	"strings"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// DefaultMaxSize is the upload ceiling when none is configured.
const DefaultMaxSize int64 = 100 << 20

// Accepted content types. Browsers on Windows report CSV as the Excel type.
var allowedContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
}

// FileInfo is what the validator needs to know about an upload.
type FileInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// Validator checks uploads before any byte is parsed.
type Validator struct {
	MaxSize int64
}

// NewValidator returns a validator with the given ceiling; <= 0 means
// DefaultMaxSize.
func NewValidator(maxSize int64) Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return Validator{MaxSize: maxSize}
}

// Validate rejects empty files, unexpected content types and oversized files.
// An absent content type is accepted; MIME parameters such as charset are
// ignored.
func (v Validator) Validate(f FileInfo) error {
	if f.Size <= 0 {
		return errs.New(errs.KindValidation, "file is empty")
	}

	if ct := strings.TrimSpace(f.ContentType); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
		}
		if !allowedContentTypes[mediaType] {
			return errs.Newf(errs.KindValidation, "unsupported file type %q: upload a CSV file", mediaType)
		}
	}

	limit := v.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	if f.Size > limit {
		return errs.Newf(errs.KindValidation, "file too large: %s exceeds the %s limit", formatSize(f.Size), formatSize(limit))
	}
	return nil
}

func formatSize(n int64) string {
	const mib = 1 << 20
	if n >= mib {
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
