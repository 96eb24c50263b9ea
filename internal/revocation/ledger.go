package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/logger"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/tracing"
)

// FastTier is an expiring key-value cache of revoked jti values. The ledger
// consults Available before every call and skips the tier while it is false.
type FastTier interface {
	Available() bool
	Set(ctx context.Context, jti string, ttl time.Duration) error
	Exists(ctx context.Context, jti string) (bool, error)
}

// Ledger records revoked token identifiers until their natural expiry. The
// durable tier is the source of truth and is written on every Add; the fast
// tier only shortens lookups.
type Ledger struct {
	fast    FastTier
	durable repository.RevocationStore
	now     func() time.Time
	logger  *slog.Logger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used to compute remaining lifetimes.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger builds a ledger. fast may be nil, in which case every call goes
// to the durable tier.
func NewLedger(fast FastTier, durable repository.RevocationStore, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		fast:    fast,
		durable: durable,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) fastAvailable() bool {
	return l.fast != nil && l.fast.Available()
}

// Add records entry until entry.ExpiresAt. Entries already past expiry are
// dropped since the token fails verification on its own. Only a durable
// tier failure is returned.
func (l *Ledger) Add(ctx context.Context, entry domain.RevocationEntry) (err error) {
	if entry.JTI == "" {
		return errors.New("revocation: jti is required")
	}

	ctx, span := tracing.Start(ctx, "revocation.Add", attribute.String("revocation.kind", string(entry.Kind)))
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	now := l.now()
	ttl := entry.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = now
	}

	if l.fastAvailable() {
		if err := l.fast.Set(ctx, entry.JTI, ttl); err != nil {
			FastTierErrors.WithLabelValues("add").Inc()
			l.logger.WarnContext(ctx, "revocation cache write failed, durable tier only",
				logger.TokenFingerprint(entry.JTI),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := l.durable.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record revocation: %w", err)
	}
	return nil
}

// AddTTL records jti for ttl from now.
func (l *Ledger) AddTTL(ctx context.Context, jti string, kind domain.TokenKind, ttl time.Duration, userID string) error {
	return l.Add(ctx, domain.RevocationEntry{
		JTI:       jti,
		Kind:      kind,
		UserID:    userID,
		ExpiresAt: l.now().Add(ttl),
	})
}

// Contains reports whether jti is revoked. The fast tier answers hits; a
// miss, an error or an unavailable fast tier defers to the durable tier.
func (l *Ledger) Contains(ctx context.Context, jti string) (revoked bool, err error) {
	if jti == "" {
		return false, nil
	}

	ctx, span := tracing.Start(ctx, "revocation.Contains")
	tier := "durable"
	defer func() {
		span.SetAttributes(
			attribute.String("revocation.tier", tier),
			attribute.Bool("revocation.revoked", revoked),
		)
		tracing.Fail(span, err)
		span.End()
	}()

	if l.fastAvailable() {
		found, err := l.fast.Exists(ctx, jti)
		switch {
		case err != nil:
			FastTierErrors.WithLabelValues("contains").Inc()
			l.logger.DebugContext(ctx, "revocation cache lookup failed, using durable tier",
				slog.String("error", err.Error()),
			)
		case found:
			tier = "fast"
			Lookups.WithLabelValues("fast", "revoked").Inc()
			return true, nil
		}
	}

	found, err := l.durable.Exists(ctx, jti, l.now())
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	if found {
		Lookups.WithLabelValues("durable", "revoked").Inc()
	} else {
		Lookups.WithLabelValues("durable", "clear").Inc()
	}
	return found, nil
}

// Sweep deletes durable entries whose expiry is at or before now. The fast
// tier expires its keys by itself.
func (l *Ledger) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := l.durable.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep revocations: %w", err)
	}
	return n, nil
}
