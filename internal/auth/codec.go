package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
)

// ErrInvalidToken is the only error Verify returns for a token that is not
// acceptable. The reason is logged, never returned.
var ErrInvalidToken = errors.New("invalid token")

// tokenClaims is the wire form of domain.Claims.
type tokenClaims struct {
	Email string           `json:"email"`
	Role  string           `json:"role"`
	Kind  domain.TokenKind `json:"token_kind"`
	jwt.RegisteredClaims
}

// CodecConfig configures token signing and verification. Access and refresh
// tokens are signed with different secrets.
type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Codec signs and verifies HS256 bearer tokens. It holds no mutable state.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	audience   string
	leeway     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithCodecClock sets the clock used for issued-at and expiry checks.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg CodecConfig, logger *slog.Logger, opts ...CodecOption) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Codec{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		leeway:     cfg.Leeway,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) keyFor(kind domain.TokenKind) ([]byte, error) {
	switch kind {
	case domain.TokenKindAccess:
		return c.accessKey, nil
	case domain.TokenKindRefresh:
		return c.refreshKey, nil
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
}

// Sign encodes claims as a token valid for ttl from claims.IssuedAt (or now
// when unset). The secret is chosen by claims.Kind; issuer and audience come
// from the codec configuration.
func (c *Codec) Sign(claims domain.Claims, ttl time.Duration) (string, error) {
	key, err := c.keyFor(claims.Kind)
	if err != nil {
		return "", err
	}
	if claims.JTI == "" || claims.UserID == "" {
		return "", errors.New("subject and jti are required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = c.now()
	}

	wire := tokenClaims{
		Email: claims.Email,
		Role:  claims.Role,
		Kind:  claims.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.JTI,
			Subject:   claims.UserID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Kind, err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer, audience, expiry and kind. Any
// failure yields ErrInvalidToken.
func (c *Codec) Verify(token string, kind domain.TokenKind) (VerifiedToken, error) {
	key, err := c.keyFor(kind)
	if err != nil {
		return VerifiedToken{}, ErrInvalidToken
	}

	wire, err := c.parse(token, kind, key,
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return VerifiedToken{}, err
	}
	return VerifiedToken{raw: token, claims: toDomain(wire)}, nil
}

// VerifyIgnoringExpiry checks signature, algorithm, issuer, audience and kind
// but none of the time claims, so a token that has already expired is still
// accepted. The exp claim must be present.
func (c *Codec) VerifyIgnoringExpiry(token string, kind domain.TokenKind) (domain.Claims, error) {
	key, err := c.keyFor(kind)
	if err != nil {
		return domain.Claims{}, ErrInvalidToken
	}

	wire, err := c.parse(token, kind, key, jwt.WithoutClaimsValidation())
	if err != nil {
		return domain.Claims{}, err
	}
	if wire.Issuer != c.issuer || !slices.Contains(wire.Audience, c.audience) || wire.ExpiresAt == nil {
		c.reject(kind, "issuer, audience or expiry claim mismatch")
		return domain.Claims{}, ErrInvalidToken
	}
	return toDomain(wire), nil
}

// parse verifies the HS256 signature of token under key, applies the extra
// parser options and checks the kind and identity claims.
func (c *Codec) parse(token string, kind domain.TokenKind, key []byte, opts ...jwt.ParserOption) (*tokenClaims, error) {
	parser := jwt.NewParser(append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}, opts...)...)

	var wire tokenClaims
	parsed, err := parser.ParseWithClaims(token, &wire, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !parsed.Valid {
		c.reject(kind, reason(err))
		return nil, ErrInvalidToken
	}

	if wire.Kind != kind || wire.ID == "" || wire.Subject == "" {
		c.reject(kind, "kind or identity claims mismatch")
		return nil, ErrInvalidToken
	}
	return &wire, nil
}

func (c *Codec) reject(kind domain.TokenKind, why string) {
	c.logger.Debug("token rejected",
		slog.String("kind", string(kind)),
		slog.String("reason", why),
	)
}

// DecodeUnverified reads claims without checking signature or expiry and
// returns nil for anything that does not parse or lacks a jti. Nothing it
// returns may be trusted; use VerifyIgnoringExpiry before acting on claims.
func (c *Codec) DecodeUnverified(token string) *domain.Claims {
	var wire tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &wire); err != nil {
		return nil
	}
	if wire.ID == "" {
		return nil
	}
	claims := toDomain(&wire)
	return &claims
}

func toDomain(w *tokenClaims) domain.Claims {
	claims := domain.Claims{
		UserID:   w.Subject,
		Email:    w.Email,
		Role:     w.Role,
		JTI:      w.ID,
		Kind:     w.Kind,
		Issuer:   w.Issuer,
		Audience: []string(w.Audience),
	}
	if w.IssuedAt != nil {
		claims.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		claims.ExpiresAt = w.ExpiresAt.Time
	}
	return claims
}

func reason(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}
