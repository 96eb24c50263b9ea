package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/revocation"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/database"
)

const keyPrefix = "revoked:"

// DefaultReconnectInterval is how often an unavailable cache is probed.
const DefaultReconnectInterval = 5 * time.Second

// ErrUnavailable is returned by calls made while the cache is bypassed.
var ErrUnavailable = errors.New("revocation cache unavailable")

// RevocationCache is the fast tier of the revocation ledger. It tracks its
// own reachability: a hook on the client flips it to unavailable on a failed
// dial or a connection-level command error, and back to available when a
// connection is established again.
type RevocationCache struct {
	client    *goredis.Client
	state     atomic.Int32
	interval  time.Duration
	listeners []func(revocation.Availability)
	logger    *slog.Logger
}

// CacheOption customises a RevocationCache.
type CacheOption func(*RevocationCache)

// WithReconnectInterval sets how often Watch probes an unavailable server.
func WithReconnectInterval(d time.Duration) CacheOption {
	return func(c *RevocationCache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithStateListener registers fn to be called on every availability change.
func WithStateListener(fn func(revocation.Availability)) CacheOption {
	return func(c *RevocationCache) { c.listeners = append(c.listeners, fn) }
}

// NewRevocationCache wraps client and installs the availability hook. The
// cache starts unavailable; Probe or Watch establishes the first connection.
func NewRevocationCache(client *goredis.Client, logger *slog.Logger, opts ...CacheOption) *RevocationCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RevocationCache{
		client:   client,
		interval: DefaultReconnectInterval,
		logger:   logger,
	}
	c.state.Store(int32(revocation.Unavailable))
	for _, opt := range opts {
		opt(c)
	}
	client.AddHook(availabilityHook{cache: c})
	return c
}

// State returns the current availability.
func (c *RevocationCache) State() revocation.Availability {
	return revocation.Availability(c.state.Load())
}

// Available reports whether the ledger should use this tier.
func (c *RevocationCache) Available() bool {
	return c.State() == revocation.Available
}

func (c *RevocationCache) transition(to revocation.Availability, cause error) {
	from := revocation.Availability(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	attrs := []any{slog.String("from", from.String()), slog.String("to", to.String())}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
		c.logger.Warn("revocation cache state changed", attrs...)
	} else {
		c.logger.Info("revocation cache state changed", attrs...)
	}
	for _, fn := range c.listeners {
		fn(to)
	}
}

// Set stores jti with the given ttl.
func (c *RevocationCache) Set(ctx context.Context, jti string, ttl time.Duration) error {
	if !c.Available() {
		return ErrUnavailable
	}
	if err := c.client.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("cache revocation: %w", err)
	}
	return nil
}

// Exists reports whether jti is cached.
func (c *RevocationCache) Exists(ctx context.Context, jti string) (bool, error) {
	if !c.Available() {
		return false, ErrUnavailable
	}
	n, err := c.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("lookup cached revocation: %w", err)
	}
	return n > 0, nil
}

// Probe pings the server once and records the outcome.
func (c *RevocationCache) Probe(ctx context.Context) bool {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.transition(revocation.Unavailable, err)
		return false
	}
	c.transition(revocation.Available, nil)
	return true
}

// Watch probes the server while the cache is unavailable until ctx is done.
// It is the only component that touches the server during an outage.
func (c *RevocationCache) Watch(ctx context.Context) {
	c.Probe(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Available() {
				c.Probe(ctx)
			}
		}
	}
}

// Close closes the underlying client.
func (c *RevocationCache) Close() error {
	return c.client.Close()
}

// availabilityHook observes dials and command errors.
type availabilityHook struct {
	cache *RevocationCache
}

func (h availabilityHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cache.transition(revocation.Unavailable, err)
			return nil, err
		}
		h.cache.transition(revocation.Available, nil)
		return conn, nil
	}
}

func (h availabilityHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := next(ctx, cmd)
		if isConnectionError(err) {
			h.cache.transition(revocation.Unavailable, err)
		}
		return err
	}
}

func (h availabilityHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		err := next(ctx, cmds)
		if isConnectionError(err) {
			h.cache.transition(revocation.Unavailable, err)
		}
		return err
	}
}

// isConnectionError separates transport faults from command-level replies.
func isConnectionError(err error) bool {
	if err == nil || errors.Is(err, goredis.Nil) {
		return false
	}
	if errors.Is(err, goredis.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return database.IsConnectionError(err)
}
