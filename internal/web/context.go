package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/ingest/internal/core"
	appmw "github.com/JonMunkholm/ingest/internal/web/middleware"
)

// WithRequestMetadata records who started a transfer. RemoteAddr has
// already been rewritten by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, core.Client{
		IP:        appmw.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}
