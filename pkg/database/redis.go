package database

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxRedisDialTimeout bounds how long a caller can block on an unreachable
// Redis before falling back.
const maxRedisDialTimeout = 5 * time.Second

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MaxRetries   int
}

// DefaultRedisConfig returns sensible defaults for Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		DB:           0,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     10,
		MaxRetries:   -1,
	}
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RedisConfig) options() *redis.Options {
	dial := c.DialTimeout
	if dial <= 0 || dial > maxRedisDialTimeout {
		dial = maxRedisDialTimeout
	}
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  dial,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
		MaxRetries:   c.MaxRetries,
	}
}

// NewLazyRedisClient creates a Redis client without contacting the server.
// Use it for optional tiers where the process must start while Redis is
// down; the given hooks observe dials and commands from the first call on.
func NewLazyRedisClient(cfg RedisConfig, hooks ...redis.Hook) *redis.Client {
	client := redis.NewClient(cfg.options())
	for _, h := range hooks {
		client.AddHook(h)
	}
	return client
}
