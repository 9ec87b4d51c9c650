package flatfile

import (
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// Decode returns a reader producing valid UTF-8 from r.
//
// A leading BOM selects UTF-8 or UTF-16 and is removed. Otherwise the input is
// decoded with charset (any WHATWG label), defaulting to UTF-8. Invalid
// sequences become U+FFFD.
func Decode(r io.Reader, charset string) (io.Reader, error) {
	fallback := unicode.UTF8.NewDecoder()
	if label := strings.TrimSpace(charset); label != "" {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "unsupported charset "+label, err)
		}
		fallback = enc.NewDecoder()
	}
	return transform.NewReader(r, unicode.BOMOverride(fallback)), nil
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	r io.Reader
	n int64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (c *CountingReader) BytesRead() int64 { return c.n }
