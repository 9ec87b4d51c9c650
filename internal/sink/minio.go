package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// MinIOConfig configures an S3-compatible sink.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // key prefix, e.g. "exports/"
	Region    string
	UseSSL    bool
}

var errAborted = errors.New("export aborted")

// MinIO streams exports into a bucket. Objects use multipart upload, so an
// aborted export never becomes visible.
type MinIO struct {
	client *miniogo.Client
	bucket string
	prefix string
}

// NewMinIO connects and makes sure the bucket exists.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "failed to create minio client", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, mapMinIOError(err, "failed to check bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, mapMinIOError(err, "failed to create bucket")
		}
	}

	return &MinIO{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *MinIO) Kind() string { return "minio" }

func (m *MinIO) key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Create starts a streaming upload fed through a pipe.
func (m *MinIO) Create(ctx context.Context, name string) (Object, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	obj := &minioObject{
		pw:       pw,
		cancel:   cancel,
		done:     make(chan error, 1),
		location: fmt.Sprintf("s3://%s/%s", m.bucket, m.key(name)),
	}

	go func() {
		_, err := m.client.PutObject(ctx, m.bucket, m.key(name), pr, -1, miniogo.PutObjectOptions{
			ContentType: "text/csv",
		})
		_ = pr.CloseWithError(err)
		obj.done <- err
	}()
	return obj, nil
}

func (m *MinIO) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, m.key(name), miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapMinIOError(err, "failed to get export")
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinIOError(err, fmt.Sprintf("export %q not found", name))
	}
	return obj, nil
}

type minioObject struct {
	pw       *io.PipeWriter
	cancel   context.CancelFunc
	done     chan error
	location string
	finished bool
}

func (o *minioObject) Write(p []byte) (int, error) {
	n, err := o.pw.Write(p)
	if err != nil {
		return n, errs.Wrap(errs.KindIO, "failed to stream export", err)
	}
	return n, nil
}

func (o *minioObject) Location() string { return o.location }

func (o *minioObject) Commit() error {
	if o.finished {
		return errs.New(errs.KindIO, "export already finished")
	}
	o.finished = true
	defer o.cancel()

	_ = o.pw.Close()
	if err := <-o.done; err != nil {
		return mapMinIOError(err, "failed to upload export")
	}
	return nil
}

func (o *minioObject) Abort() error {
	if o.finished {
		return nil
	}
	o.finished = true

	_ = o.pw.CloseWithError(errAborted)
	o.cancel()
	<-o.done
	return nil
}

// mapMinIOError translates a MinIO SDK error into an *errs.Error.
func mapMinIOError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return errs.Wrap(errs.KindNotFound, msg, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errs.Wrap(errs.KindConnection, msg, err)
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.KindTimeout, msg, err)
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.Wrap(errs.KindNotFound, msg, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return errs.Wrap(errs.KindConnection, msg, err)
		}
	}

	return errs.Wrap(errs.KindIO, msg, err)
}
