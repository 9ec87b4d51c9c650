package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// MaxIdentifierLen is the longest identifier accepted, in bytes.
const MaxIdentifierLen = 255

// CheckIdentifier rejects table and column names that cannot be quoted
// safely by every engine. Quoting is still applied by each dialect.
func CheckIdentifier(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errs.New(errs.KindValidation, "identifier must not be empty")
	case len(name) > MaxIdentifierLen:
		return errs.Newf(errs.KindValidation, "identifier %.32q... exceeds %d bytes", name, MaxIdentifierLen)
	case !utf8.ValidString(name):
		return errs.Newf(errs.KindValidation, "identifier %q is not valid UTF-8", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errs.Newf(errs.KindValidation, "identifier %q contains control characters", name)
		}
	}
	return nil
}

// CheckIdentifiers applies CheckIdentifier to every name.
func CheckIdentifiers(names ...string) error {
	for _, n := range names {
		if err := CheckIdentifier(n); err != nil {
			return err
		}
	}
	return nil
}

// QuoteWith wraps name in open/close, doubling any embedded close rune.
func QuoteWith(name string, open, close rune) string {
	var b strings.Builder
	b.Grow(len(name) + 2)
	b.WriteRune(open)
	for _, r := range name {
		if r == close {
			b.WriteRune(close)
		}
		b.WriteRune(r)
	}
	b.WriteRune(close)
	return b.String()
}

// JoinQuoted quotes each name and joins them with ", ".
func JoinQuoted(names []string, quote func(string) string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}
