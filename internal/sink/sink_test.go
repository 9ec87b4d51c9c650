package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/ingest/internal/errs"
)

func TestCheckName(t *testing.T) {
	for _, ok := range []string{"export_1700000000000.csv", "a b.csv", "data"} {
		assert.NoError(t, CheckName(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", "../etc/passwd", `..\x.csv`, "dir/file.csv", ".hidden", "a\x00b"} {
		assert.Equal(t, errs.KindValidation, errs.KindOf(CheckName(bad)), bad)
	}
}

func TestLocal_CommitPublishesFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)

	obj, err := s.Create(ctx, "out.csv")
	require.NoError(t, err)
	_, err = io.WriteString(obj, "a,b\n1,2\n")
	require.NoError(t, err)

	// Not visible before commit.
	_, err = os.Stat(filepath.Join(dir, "out.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, obj.Commit())
	assert.Equal(t, filepath.Join(s.Dir(), "out.csv"), obj.Location())

	rc, err := s.Open(ctx, "out.csv")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed, not copied")
}

func TestLocal_AbortLeavesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)

	obj, err := s.Create(ctx, "partial.csv")
	require.NoError(t, err)
	_, err = io.WriteString(obj, "a,b\n")
	require.NoError(t, err)
	require.NoError(t, obj.Abort())
	require.NoError(t, obj.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Open(ctx, "partial.csv")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestLocal_RejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "../secret")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	_, err = s.Create(context.Background(), "../secret")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestMapMinIOError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey"}, errs.KindNotFound},
		{"404 status", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, errs.KindNotFound},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied"}, errs.KindConnection},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown"}, errs.KindTimeout},
		{"other", errors.New("reset"), errs.KindIO},
		{"deadline", context.DeadlineExceeded, errs.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errs.KindOf(mapMinIOError(tt.err, "op")))
		})
	}
}

func TestMinIO_Key(t *testing.T) {
	assert.Equal(t, "a.csv", (&MinIO{}).key("a.csv"))
	assert.Equal(t, "exports/a.csv", (&MinIO{prefix: "exports/"}).key("a.csv"))
}
