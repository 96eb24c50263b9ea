package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/health"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/middleware"
)

// RouterConfig carries the HTTP surface settings.
type RouterConfig struct {
	CORS       middleware.CORSConfig
	RateLimit  middleware.RateLimitConfig
	PprofCIDRs []string
}

// NewRouter creates a chi router with all auth service routes registered.
// ctx bounds the rate limiter's background eviction.
func NewRouter(
	ctx context.Context,
	authService AuthService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("auth"))
	r.Use(middleware.Tracing("auth"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	authHandler := NewAuthHandler(authService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)

		// Credential-accepting endpoints are rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimit, logger))

			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
		})

		r.Get("/validate", authHandler.Validate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator(authService)))

			r.Post("/revoke-all", authHandler.RevokeAll)
			r.Get("/sessions", authHandler.ListSessions)
			r.Delete("/sessions/{id}", authHandler.RevokeSession)
			r.Post("/change-password", authHandler.ChangePassword)

			r.With(middleware.RequireRole(domain.RoleAdmin)).Post("/admin/cleanup", authHandler.Cleanup)
		})
	})

	return r
}
