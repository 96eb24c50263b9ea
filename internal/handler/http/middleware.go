package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/middleware"
)

// ContentTypeJSON rejects request bodies that declare a non-JSON media type.
// A missing Content-Type is accepted.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnsupportedMediaType)
			_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenValidator adapts AuthService.VerifyAccessToken to the shared Auth
// middleware, so protected routes also reject revoked tokens.
func tokenValidator(svc AuthService) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Claims, error) {
		claims, err := svc.VerifyAccessToken(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
			JTI:    claims.JTI,
		}, nil
	}
}
