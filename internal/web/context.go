package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/TruckRewards/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
// RemoteAddr has already been resolved by TrustedRealIP and may carry a port;
// the audit service strips it.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr)
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
