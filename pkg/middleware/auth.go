package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/errors"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/httputil"
)

// Claims are the identity facts Auth stores for downstream handlers.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	JTI    string `json:"jti"`
}

// TokenValidator verifies a bearer token within the request deadline and
// returns its claims. Any error is reported to the client as a plain 401.
type TokenValidator func(ctx context.Context, token string) (*Claims, error)

type principalKey struct{}

// principal is what Auth leaves in the request context.
type principal struct {
	claims *Claims
	token  string
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// BearerToken returns the credential of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth admits requests carrying a token validate accepts. The 401 body never
// says why a token was refused.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				msg := "invalid authorization header format"
				if r.Header.Get("Authorization") == "" {
					msg = "missing authorization header"
				}
				unauthorized(w, r, msg)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil || claims == nil {
				unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := withUserLogger(r.Context(), claims.UserID)
			ctx = context.WithValue(ctx, principalKey{}, principal{claims: claims, token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	httputil.WriteError(w, r, apperrors.Unauthorized(msg), nil)
}

// RequireRole admits authenticated requests whose role is one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, RoleFromContext(r.Context())) {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// RoleFromContext returns the authenticated role, or "".
func RoleFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Role
	}
	return ""
}

// ClaimsFromContext returns the claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	p, _ := principalFrom(ctx)
	return p.claims
}

// TokenFromContext returns the raw bearer token accepted by Auth.
func TokenFromContext(ctx context.Context) string {
	p, _ := principalFrom(ctx)
	return p.token
}
