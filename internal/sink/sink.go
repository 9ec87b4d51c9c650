// Package sink stores exported files. The export pipeline writes through an
// Object and either commits it, making the file visible under its name, or
// aborts it, leaving nothing behind.
package sink

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// Sink is a destination for exported files.
type Sink interface {
	// Kind names the backend ("local", "minio").
	Kind() string

	// Create starts a new object called name.
	Create(ctx context.Context, name string) (Object, error)

	// Open streams a committed object. A missing object is errs.KindNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Object is an in-progress export. Exactly one of Commit or Abort must be
// called.
type Object interface {
	io.Writer
	Commit() error
	Abort() error
	// Location is where the committed object lives (a path or URL).
	Location() string
}

// CheckName accepts plain file names only, so a name can never address
// anything outside the sink.
func CheckName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errs.Newf(errs.KindValidation, "invalid file name %q", name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return errs.Newf(errs.KindValidation, "invalid file name %q", name)
	case strings.HasPrefix(name, "."):
		return errs.Newf(errs.KindValidation, "invalid file name %q", name)
	case path.Base(name) != name:
		return errs.Newf(errs.KindValidation, "invalid file name %q", name)
	}
	return nil
}
