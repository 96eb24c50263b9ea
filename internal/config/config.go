package config

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/auth"
	pkgconfig "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/config"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/database"
)

const (
	defaultAccessSecret  = "change-this-access-secret"
	defaultRefreshSecret = "change-this-refresh-secret"
	minSecretLength      = 32
	maxRedisDialTimeout  = 5 * time.Second
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"auth"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"auth_secret"`
	PostgresDB   string `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Connection pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Redis (revocation fast tier)
	RedisHost              string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort              int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword          string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB                int           `env:"REDIS_DB" envDefault:"0"`
	RedisDialTimeout       time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"2s"`
	RedisReconnectInterval time.Duration `env:"REDIS_RECONNECT_INTERVAL" envDefault:"5s"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"change-this-access-secret"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"change-this-refresh-secret"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"auth-service"`
	JWTAudience      string        `env:"JWT_AUDIENCE" envDefault:"platform"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Account lockout
	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`

	// Password policy
	PasswordMinLength     int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordRequireUpper  bool `env:"PASSWORD_REQUIRE_UPPER" envDefault:"true"`
	PasswordRequireLower  bool `env:"PASSWORD_REQUIRE_LOWER" envDefault:"true"`
	PasswordRequireDigit  bool `env:"PASSWORD_REQUIRE_DIGIT" envDefault:"true"`
	PasswordRequireSymbol bool `env:"PASSWORD_REQUIRE_SYMBOL" envDefault:"false"`
	BcryptCost            int  `env:"BCRYPT_COST" envDefault:"12"`

	// Background cleanup
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	// Rate limiting on credential endpoints
	RateLimitPerMinute int `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	RateLimitBurst     int `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. It runs as part of Load.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return errors.New("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return errors.New("POSTGRES_USER is required")
	}
	if c.RedisDialTimeout <= 0 || c.RedisDialTimeout > maxRedisDialTimeout {
		return fmt.Errorf("REDIS_DIAL_TIMEOUT must be in (0, %s], got %s", maxRedisDialTimeout, c.RedisDialTimeout)
	}
	if c.RedisReconnectInterval <= 0 {
		return fmt.Errorf("REDIS_RECONNECT_INTERVAL must be positive, got %s", c.RedisReconnectInterval)
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return errors.New("JWT token expiries must be positive")
	}
	if c.JWTRefreshExpiry <= c.JWTAccessExpiry {
		return fmt.Errorf("JWT_REFRESH_TOKEN_EXPIRY (%s) must exceed JWT_ACCESS_TOKEN_EXPIRY (%s)", c.JWTRefreshExpiry, c.JWTAccessExpiry)
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1, got %d", c.LockoutThreshold)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive, got %s", c.LockoutDuration)
	}
	if c.PasswordMinLength < auth.MinPasswordLength {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least %d, got %d", auth.MinPasswordLength, c.PasswordMinLength)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", c.CleanupInterval)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}

	// In non-development environments, require explicitly set, strong secrets.
	if c.Environment != "development" {
		for name, secret := range map[string]string{
			"JWT_ACCESS_SECRET":  c.JWTAccessSecret,
			"JWT_REFRESH_SECRET": c.JWTRefreshSecret,
		} {
			if secret == defaultAccessSecret || secret == defaultRefreshSecret {
				return fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, c.Environment)
			}
			if len(secret) < minSecretLength {
				return fmt.Errorf("%s must be at least %d characters long, got %d", name, minSecretLength, len(secret))
			}
		}
	}

	return nil
}

// PostgresConfig returns the pool settings for database.NewPostgresPoolWithLogger.
func (c *Config) PostgresConfig() database.PostgresConfig {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = c.PostgresHost
	cfg.Port = c.PostgresPort
	cfg.User = c.PostgresUser
	cfg.Password = c.PostgresPass
	cfg.DBName = c.PostgresDB
	cfg.SSLMode = c.PostgresSSL
	if c.DBMaxConns > 0 {
		cfg.MaxConns = c.DBMaxConns
	}
	if c.DBMinConns > 0 {
		cfg.MinConns = c.DBMinConns
	}
	if c.DBMaxConnLifetimeMins > 0 {
		cfg.MaxConnLifetime = time.Duration(c.DBMaxConnLifetimeMins) * time.Minute
	}
	if c.DBMaxConnIdleTimeMins > 0 {
		cfg.MaxConnIdleTime = time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute
	}
	return cfg
}

// RedisConfig returns the client settings for the revocation fast tier.
func (c *Config) RedisConfig() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	rc.DialTimeout = c.RedisDialTimeout
	return rc
}

// PasswordPolicy returns the configured composition rules.
func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:     c.PasswordMinLength,
		RequireUpper:  c.PasswordRequireUpper,
		RequireLower:  c.PasswordRequireLower,
		RequireDigit:  c.PasswordRequireDigit,
		RequireSymbol: c.PasswordRequireSymbol,
	}
}
