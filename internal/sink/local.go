package sink

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// Local writes exports into a directory. Files are written to a hidden temp
// file and renamed into place on Commit.
type Local struct {
	dir string
}

// NewLocal creates dir if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "invalid export directory", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindIO, "failed to create export directory", err)
	}
	return &Local{dir: abs}, nil
}

func (l *Local) Kind() string { return "local" }

// Dir returns the absolute export directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Create(_ context.Context, name string) (Object, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(l.dir, "."+name+".tmp-*")
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "failed to create export file", err)
	}
	return &localObject{f: f, final: filepath.Join(l.dir, name)}, nil
}

func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Newf(errs.KindNotFound, "export %q not found", name)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "failed to open export", err)
	}
	return f, nil
}

type localObject struct {
	f     *os.File
	final string
	done  bool
}

func (o *localObject) Write(p []byte) (int, error) {
	n, err := o.f.Write(p)
	if err != nil {
		return n, errs.Wrap(errs.KindIO, "failed to write export", err)
	}
	return n, nil
}

func (o *localObject) Location() string { return o.final }

func (o *localObject) Commit() error {
	if o.done {
		return errs.New(errs.KindIO, "export already finished")
	}
	o.done = true

	if err := o.f.Sync(); err != nil {
		o.discard()
		return errs.Wrap(errs.KindIO, "failed to flush export", err)
	}
	if err := o.f.Close(); err != nil {
		_ = os.Remove(o.f.Name())
		return errs.Wrap(errs.KindIO, "failed to close export", err)
	}
	if err := os.Rename(o.f.Name(), o.final); err != nil {
		_ = os.Remove(o.f.Name())
		return errs.Wrap(errs.KindIO, "failed to publish export", err)
	}
	return nil
}

func (o *localObject) Abort() error {
	if o.done {
		return nil
	}
	o.done = true
	o.discard()
	return nil
}

func (o *localObject) discard() {
	_ = o.f.Close()
	_ = os.Remove(o.f.Name())
}
