package revocation_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	rediscache "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository/redis"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/revocation"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/logger"
)

// memoryStore is an in-memory durable tier.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.RevocationEntry
	err     error
	reads   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]domain.RevocationEntry)}
}

func (s *memoryStore) Insert(_ context.Context, e domain.RevocationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if prev, ok := s.entries[e.JTI]; ok && prev.ExpiresAt.After(e.ExpiresAt) {
		return nil
	}
	s.entries[e.JTI] = e
	return nil
}

func (s *memoryStore) Exists(_ context.Context, jti string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return false, s.err
	}
	e, ok := s.entries[jti]
	return ok && e.ExpiresAt.After(now), nil
}

func (s *memoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, e := range s.entries {
		if !e.ExpiresAt.After(now) {
			delete(s.entries, jti)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ledger  *revocation.Ledger
	cache   *rediscache.RevocationCache
	mr      *miniredis.Miniredis
	durable *memoryStore
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	cache := rediscache.NewRevocationCache(client, discardLogger())
	t.Cleanup(func() { _ = cache.Close() })
	require.True(t, cache.Probe(context.Background()))

	f := &fixture{
		cache:   cache,
		mr:      mr,
		durable: newMemoryStore(),
		now:     time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ledger = revocation.NewLedger(cache, f.durable, discardLogger(),
		revocation.WithClock(func() time.Time { return f.now }))
	return f
}

func entry(jti string, expiresAt time.Time) domain.RevocationEntry {
	return domain.RevocationEntry{
		JTI:       jti,
		Kind:      domain.TokenKindAccess,
		UserID:    "u-1",
		ExpiresAt: expiresAt,
		Reason:    domain.ReasonLogout,
	}
}

func TestLedger_AddWritesBothTiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Add(ctx, entry("jti-1", f.now.Add(10*time.Minute))))

	assert.True(t, f.mr.Exists("revoked:jti-1"))
	assert.Equal(t, 10*time.Minute, f.mr.TTL("revoked:jti-1"))

	found, err := f.durable.Exists(ctx, "jti-1", f.now)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestLedger_ContainsAnsweredByFastTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Add(ctx, entry("jti-1", f.now.Add(time.Minute))))

	reads := f.durable.readCount()
	found, err := f.ledger.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, reads, f.durable.readCount(), "durable tier must not be consulted on a fast hit")
}

func TestLedger_FastMissFallsBackToDurable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Add(ctx, entry("jti-1", f.now.Add(time.Minute))))

	// Simulate early eviction from the cache.
	f.mr.Del("revoked:jti-1")

	found, err := f.ledger.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestLedger_AddExpiredIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Add(ctx, entry("jti-old", f.now.Add(-time.Second))))
	require.NoError(t, f.ledger.Add(ctx, entry("jti-now", f.now)))

	assert.False(t, f.mr.Exists("revoked:jti-old"))
	found, err := f.ledger.Contains(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedger_AddRequiresJTI(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.ledger.Add(context.Background(), entry("", f.now.Add(time.Minute))))
}

func TestLedger_AddTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.AddTTL(ctx, "jti-1", domain.TokenKindRefresh, time.Hour, "u-1"))
	assert.Equal(t, time.Hour, f.mr.TTL("revoked:jti-1"))
}

func TestLedger_CacheWriteFailureLogsFingerprintOnly(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	ledger := revocation.NewLedger(f.cache, f.durable, logger.NewWithWriter("auth-service", "info", &buf),
		revocation.WithClock(func() time.Time { return f.now }))

	f.mr.SetError("ERR cache write refused")
	require.NoError(t, ledger.Add(context.Background(), entry("secret-jti-7f3a", f.now.Add(time.Minute))))

	out := buf.String()
	require.Contains(t, out, "revocation cache write failed")
	assert.NotContains(t, out, "secret-jti-7f3a")
	assert.Contains(t, out, logger.TokenFingerprint("secret-jti-7f3a").Value.String())

	found, err := f.durable.Exists(context.Background(), "secret-jti-7f3a", f.now)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestLedger_DeniesDuringFastTierOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Add(ctx, entry("before", f.now.Add(15*time.Minute))))

	f.mr.Close()

	// The first call after the outage observes the failure and falls back.
	found, err := f.ledger.Contains(ctx, "before")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, f.cache.Available())

	// Additions during the outage still land in the durable tier.
	require.NoError(t, f.ledger.Add(ctx, entry("during", f.now.Add(15*time.Minute))))

	for _, jti := range []string{"before", "during"} {
		found, err := f.ledger.Contains(ctx, jti)
		require.NoError(t, err)
		assert.True(t, found, jti)
	}

	found, err = f.ledger.Contains(ctx, "never-revoked")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedger_DeniesUntilExpiryUnderAnyAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expiry := f.now.Add(5 * time.Minute)
	require.NoError(t, f.ledger.Add(ctx, entry("jti-1", expiry)))

	steps := []time.Duration{0, time.Minute, 4 * time.Minute, 5*time.Minute - time.Second}
	for i, step := range steps {
		f.now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).Add(step)
		if i == 2 {
			f.mr.Close()
		}
		found, err := f.ledger.Contains(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, found, "step %s", step)
	}

	f.now = expiry
	found, err := f.ledger.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedger_DurableFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.durable.err = errors.New("connection refused")

	err := f.ledger.Add(ctx, entry("jti-1", f.now.Add(time.Minute)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record revocation")

	_, err = f.ledger.Contains(ctx, "jti-unknown")
	require.Error(t, err)
}

func TestLedger_NilFastTier(t *testing.T) {
	durable := newMemoryStore()
	now := time.Now()
	l := revocation.NewLedger(nil, durable, nil, revocation.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, l.AddTTL(ctx, "jti-1", domain.TokenKindAccess, time.Minute, ""))
	found, err := l.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = l.Contains(ctx, "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedger_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Add(ctx, entry("short", f.now.Add(time.Minute))))
	require.NoError(t, f.ledger.Add(ctx, entry("long", f.now.Add(time.Hour))))

	n, err := f.ledger.Sweep(ctx, f.now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAvailability_String(t *testing.T) {
	assert.Equal(t, "available", revocation.Available.String())
	assert.Equal(t, "unavailable", revocation.Unavailable.String())
	assert.Equal(t, "unknown", revocation.Availability(7).String())
}

func TestLedger_SpansRecordAnsweringTier(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Add(ctx, entry("jti-1", f.now.Add(time.Minute))))
	_, err := f.ledger.Contains(ctx, "jti-1")
	require.NoError(t, err)
	_, err = f.ledger.Contains(ctx, "jti-2")
	require.NoError(t, err)

	f.durable.err = errors.New("connection refused")
	_, err = f.ledger.Contains(ctx, "jti-3")
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 4)
	assert.Equal(t, "revocation.Add", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("revocation.kind", "access"))

	assert.Contains(t, spans[1].Attributes, attribute.String("revocation.tier", "fast"))
	assert.Contains(t, spans[1].Attributes, attribute.Bool("revocation.revoked", true))
	assert.Contains(t, spans[2].Attributes, attribute.String("revocation.tier", "durable"))
	assert.Contains(t, spans[2].Attributes, attribute.Bool("revocation.revoked", false))
	assert.Equal(t, codes.Error, spans[3].Status.Code)
}
