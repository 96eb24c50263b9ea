package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Issuer mints access/refresh pairs. It performs no I/O; persisting the
// refresh token is the caller's job.
type Issuer struct {
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	newID      func() string
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithClock sets the clock used for issued-at and expiry.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// WithIDGenerator replaces the jti generator.
func WithIDGenerator(gen func() string) IssuerOption {
	return func(i *Issuer) { i.newID = gen }
}

// NewIssuer creates an Issuer. Zero TTLs fall back to the defaults.
func NewIssuer(codec *Codec, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) *Issuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	i := &Issuer{
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// AccessTTL returns the lifetime of issued access tokens.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the lifetime of issued refresh tokens.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssuePair mints an access token and a refresh token with distinct random
// jti values.
func (i *Issuer) IssuePair(userID, email, role string) (*domain.TokenPair, error) {
	if userID == "" {
		return nil, errors.New("issue pair: user id is required")
	}

	now := i.now().UTC().Truncate(time.Second)
	accessJTI, refreshJTI := i.newID(), i.newID()
	if accessJTI == refreshJTI {
		return nil, errors.New("issue pair: jti collision")
	}

	access, err := i.codec.Sign(domain.Claims{
		UserID:   userID,
		Email:    email,
		Role:     role,
		JTI:      accessJTI,
		Kind:     domain.TokenKindAccess,
		IssuedAt: now,
	}, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := i.codec.Sign(domain.Claims{
		UserID:   userID,
		Email:    email,
		Role:     role,
		JTI:      refreshJTI,
		Kind:     domain.TokenKindRefresh,
		IssuedAt: now,
	}, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		AccessExpiresAt:  now.Add(i.accessTTL),
		RefreshExpiresAt: now.Add(i.refreshTTL),
		TokenType:        "Bearer",
	}, nil
}
