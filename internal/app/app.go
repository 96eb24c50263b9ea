package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/auth"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/config"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/event"
	handler "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/handler/http"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository/postgres"
	rediscache "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository/redis"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/revocation"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/service"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/migrations"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/database"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/health"
	pkgkafka "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/kafka"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/middleware"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/tracing"
)

const serviceName = "auth"

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	cache          *rediscache.RevocationCache
	producer       *pkgkafka.Producer
	janitor        *service.Janitor
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// background bounds the fast-tier watcher, the janitor and the rate
	// limiter's eviction loop.
	background context.Context
	stop       context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.PostgresConfig()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(nil, pool, serviceName); err != nil {
		logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Revocation fast tier. The client never blocks startup; the cache
	// starts unavailable and the watcher brings it up.
	redisCfg := cfg.RedisConfig()
	cache := rediscache.NewRevocationCache(
		database.NewLazyRedisClient(redisCfg),
		logger,
		rediscache.WithReconnectInterval(cfg.RedisReconnectInterval),
		rediscache.WithStateListener(revocation.ObserveAvailability),
	)
	logger.Info("redis revocation cache configured", slog.String("addr", redisCfg.Addr()))

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create token codec: %w", err)
	}
	issuer := auth.NewIssuer(codec, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)

	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	ledger := revocation.NewLedger(cache, postgres.NewRevocationRepository(pool), logger)
	eventProducer := event.NewProducer(producer, logger)

	authService := service.NewAuthService(
		userRepo,
		sessionRepo,
		ledger,
		codec,
		issuer,
		auth.NewBcryptHasher(cfg.BcryptCost),
		eventProducer,
		service.Config{
			LockoutThreshold: cfg.LockoutThreshold,
			LockoutDuration:  cfg.LockoutDuration,
			PasswordPolicy:   cfg.PasswordPolicy(),
		},
		logger,
	)
	janitor := service.NewJanitor(authService, cfg.CleanupInterval, logger)

	// Health checks. Redis is optional: the ledger falls back to Postgres.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		if !cache.Available() {
			return rediscache.ErrUnavailable
		}
		return nil
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	background, stop := context.WithCancel(context.Background())

	// HTTP router.
	router := handler.NewRouter(background, authService, healthHandler, logger, handler.RouterConfig{
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		RateLimit: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Burst:             cfg.RateLimitBurst,
		},
		PprofCIDRs: cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		cache:          cache,
		producer:       producer,
		janitor:        janitor,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		background:     background,
		stop:           stop,
	}, nil
}

// Run starts the background workers and the HTTP server and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	go a.cache.Watch(a.background)
	go a.janitor.Run(a.background)

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Background workers
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer
// 5. Redis client
// 6. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop the watcher, janitor and rate limiter eviction.
	a.stop()

	// 3. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close the revocation cache client.
	if err := a.cache.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 6. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
