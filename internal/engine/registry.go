package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// Registry maps engine names to factories. It is built once at startup
// and is read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	factories      map[string]Factory
	defaultEngine  string
	connectTimeout time.Duration
}

// NewRegistry creates a registry. Requests without an engine use
// defaultEngine; connectTimeout bounds dial plus ping (0 disables it).
func NewRegistry(defaultEngine string, connectTimeout time.Duration, factories ...Factory) *Registry {
	r := &Registry{
		factories:      make(map[string]Factory, len(factories)),
		defaultEngine:  strings.ToLower(defaultEngine),
		connectTimeout: connectTimeout,
	}
	for _, f := range factories {
		r.factories[strings.ToLower(f.Name())] = f
	}
	return r
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the engine used when a request names none.
func (r *Registry) Default() string {
	return r.defaultEngine
}

// Resolve fills in the default engine and validates cfg against the
// factory's requirements.
func (r *Registry) Resolve(cfg ConnConfig) (ConnConfig, Factory, error) {
	cfg.Engine = strings.ToLower(strings.TrimSpace(cfg.Engine))
	if cfg.Engine == "" {
		cfg.Engine = r.defaultEngine
	}

	f, ok := r.factories[cfg.Engine]
	if !ok {
		return cfg, nil, errs.Newf(errs.KindValidation, "unsupported engine %q (available: %s)",
			cfg.Engine, strings.Join(r.Names(), ", "))
	}

	var err error
	if v, ok := f.(Validator); ok {
		err = v.Validate(cfg)
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return cfg, nil, err
	}
	if cfg.Table != "" {
		if err := CheckIdentifier(cfg.Table); err != nil {
			return cfg, nil, err
		}
	}
	return cfg, f, nil
}

// Open resolves the engine, connects and pings. Any failure that the engine
// did not classify itself is reported as errs.KindConnection.
func (r *Registry) Open(ctx context.Context, cfg ConnConfig) (Conn, error) {
	cfg, f, err := r.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if r.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, r.connectTimeout)
		defer cancel()
	}

	conn, err := f.Open(dialCtx, cfg)
	if err != nil {
		return nil, connectError(cfg, err)
	}
	if err := conn.Ping(dialCtx); err != nil {
		_ = conn.Close()
		return nil, connectError(cfg, err)
	}
	return conn, nil
}

func connectError(cfg ConnConfig, err error) error {
	switch errs.KindOf(err) {
	case errs.KindUnknown, errs.KindQuery, errs.KindSchema:
		return errs.Wrap(errs.KindConnection, fmt.Sprintf("failed to connect to %s", cfg.URL()), err)
	}
	return err
}
