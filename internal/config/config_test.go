package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	strongAccessSecret  = "this-is-a-very-secure-access-secret-1234"
	strongRefreshSecret = "this-is-a-very-secure-refresh-secret-5678"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshExpiry)
	assert.Equal(t, 5, cfg.LockoutThreshold)
	assert.Equal(t, 15*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 2*time.Second, cfg.RedisDialTimeout)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Production(t *testing.T) {
	tests := []struct {
		name    string
		access  string
		refresh string
		wantErr string
	}{
		{"default access secret", "change-this-access-secret", strongRefreshSecret, "must be explicitly set"},
		{"default refresh secret", strongAccessSecret, "change-this-refresh-secret", "must be explicitly set"},
		{"short secret", "abcdefghijklmnopqrstuvwxyz12345", strongRefreshSecret, "at least 32 characters"},
		{"exactly 32 chars", "abcdefghijklmnopqrstuvwxyz123456", strongRefreshSecret, ""},
		{"strong secrets", strongAccessSecret, strongRefreshSecret, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, map[string]string{
				"ENVIRONMENT":        "production",
				"JWT_ACCESS_SECRET":  tt.access,
				"JWT_REFRESH_SECRET": tt.refresh,
			})

			cfg, err := Load()

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.access, cfg.JWTAccessSecret)
				return
			}
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsSharedSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"JWT_ACCESS_SECRET":  strongAccessSecret,
		"JWT_REFRESH_SECRET": strongAccessSecret,
	})

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"port out of range", "AUTH_HTTP_PORT", "70000", "invalid HTTP port"},
		{"redis dial timeout too long", "REDIS_DIAL_TIMEOUT", "10s", "REDIS_DIAL_TIMEOUT"},
		{"refresh not longer than access", "JWT_REFRESH_TOKEN_EXPIRY", "10m", "must exceed"},
		{"zero lockout threshold", "LOCKOUT_THRESHOLD", "0", "LOCKOUT_THRESHOLD"},
		{"weak password minimum", "PASSWORD_MIN_LENGTH", "6", "PASSWORD_MIN_LENGTH"},
		{"bcrypt cost too low", "BCRYPT_COST", "2", "BCRYPT_COST"},
		{"sample rate above one", "OTEL_SAMPLE_RATE", "1.5", "OTEL_SAMPLE_RATE"},
		{"malformed duration", "LOCKOUT_DURATION", "soon", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, map[string]string{tt.key: tt.value})

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	setEnvs(t, map[string]string{
		"REDIS_HOST":              "cache",
		"REDIS_DIAL_TIMEOUT":      "1s",
		"PASSWORD_REQUIRE_SYMBOL": "true",
	})

	cfg, err := Load()
	require.NoError(t, err)

	rc := cfg.RedisConfig()
	assert.Equal(t, "cache:6379", rc.Addr())
	assert.Equal(t, time.Second, rc.DialTimeout)

	pc := cfg.PostgresConfig()
	assert.Equal(t, "auth_db", pc.DBName)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)

	assert.True(t, cfg.PasswordPolicy().RequireSymbol)
}
