package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/logger"
)

// RequestLogger stores a request-scoped logger carrying correlation_id,
// trace_id and span_id in the context; handlers fetch it with
// logger.FromContext. Mount it after RequestLogging and Tracing.
//
// The user id is not read from request headers: Auth adds it once a token
// has been verified.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// withUserLogger records an authenticated user id in ctx and on the
// request-scoped logger.
func withUserLogger(ctx context.Context, userID string) context.Context {
	ctx = logger.WithUserID(ctx, userID)
	return logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", userID)))
}
