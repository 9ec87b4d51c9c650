package core

import (
	"context"
	"io"
	"time"

	"github.com/JonMunkholm/ingest/internal/engine"
	"github.com/JonMunkholm/ingest/internal/errs"
	"github.com/JonMunkholm/ingest/internal/flatfile"
	"github.com/JonMunkholm/ingest/internal/sink"
)

const (
	DefaultBatchSize       = 1000
	DefaultPreviewLimit    = flatfile.DefaultPreviewLimit
	DefaultQueryTimeout    = 30 * time.Second
	DefaultTransferTimeout = 30 * time.Minute
	DefaultExportPrefix    = "export"
)

// Options tune the service. Zero values select the defaults above.
type Options struct {
	BatchSize       int
	PreviewLimit    int
	MaxFileSize     int64
	QueryTimeout    time.Duration
	TransferTimeout time.Duration
	ExportPrefix    string

	// Now is the clock used for export names.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PreviewLimit <= 0 {
		o.PreviewLimit = DefaultPreviewLimit
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = flatfile.DefaultMaxSize
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.TransferTimeout <= 0 {
		o.TransferTimeout = DefaultTransferTimeout
	}
	if o.ExportPrefix == "" {
		o.ExportPrefix = DefaultExportPrefix
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service implements every data operation. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	engines   *engine.Registry
	sink      sink.Sink
	limiter   *TransferLimiter
	validator flatfile.Validator
	opts      Options
}

// NewService wires a service. limiter may be nil for an unbounded service.
func NewService(engines *engine.Registry, out sink.Sink, limiter *TransferLimiter, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		engines:   engines,
		sink:      out,
		limiter:   limiter,
		validator: flatfile.NewValidator(opts.MaxFileSize),
		opts:      opts,
	}
}

// Engines returns the names of the available database engines.
func (s *Service) Engines() []string {
	return s.engines.Names()
}

// MaxFileSize is the largest accepted upload in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.opts.MaxFileSize
}

// ExportSink names where exports are written, or "" when exports are off.
func (s *Service) ExportSink() string {
	if s.sink == nil {
		return ""
	}
	return s.sink.Kind()
}

// Limiter returns the transfer limiter, or nil.
func (s *Service) Limiter() *TransferLimiter {
	return s.limiter
}

// OpenExport streams a previously exported file.
func (s *Service) OpenExport(ctx context.Context, name string) (io.ReadCloser, error) {
	if s.sink == nil {
		return nil, errs.New(errs.KindNotFound, "exports are not enabled")
	}
	return s.sink.Open(ctx, name)
}

// connect resolves cfg and opens a connection. The returned config has the
// engine filled in for logging.
func (s *Service) connect(ctx context.Context, cfg engine.ConnConfig) (engine.Conn, engine.ConnConfig, error) {
	resolved, _, err := s.engines.Resolve(cfg)
	if err != nil {
		return nil, cfg, err
	}
	conn, err := s.engines.Open(ctx, resolved)
	if err != nil {
		return nil, resolved, err
	}
	return conn, resolved, nil
}

func (s *Service) acquire(ctx context.Context) (release func(), err error) {
	if s.limiter == nil {
		return func() {}, nil
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return s.limiter.Release, nil
}

func checkSelection(columns []string) error {
	if len(columns) == 0 {
		return errs.New(errs.KindValidation, "no columns selected")
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if err := engine.CheckIdentifier(c); err != nil {
			return err
		}
		if seen[c] {
			return errs.Newf(errs.KindValidation, "column %q selected more than once", c)
		}
		seen[c] = true
	}
	return nil
}
