package domain

import (
	"time"
)

// TokenKind distinguishes access from refresh tokens. A token of one kind is
// never accepted where the other is expected.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known token kind.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// Claims are the fields carried inside a signed token.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	JTI       string
	Kind      TokenKind
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RemainingTTL returns the time left before the claims expire at now.
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// TokenPair is the result of a successful issue.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessJTI        string    `json:"-"`
	RefreshJTI       string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

// RefreshRecord is the durable record of an issued refresh token. Token holds
// the raw token only in memory; storage keeps a hash of it.
type RefreshRecord struct {
	ID        string     `json:"id"`
	JTI       string     `json:"-"`
	Token     string     `json:"-"`
	UserID    string     `json:"user_id"`
	IPAddress string     `json:"ip_address,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsActive reports whether the record can still be redeemed at now.
func (r *RefreshRecord) IsActive(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// SessionMeta carries diagnostic request details stored with a session.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

// RevocationEntry records a token invalidated before its natural expiry.
// The entry is dead once ExpiresAt has passed.
type RevocationEntry struct {
	JTI        string
	Kind       TokenKind
	UserID     string
	ExpiresAt  time.Time
	RecordedAt time.Time
	Reason     string
}

// Revocation reasons.
const (
	ReasonLogout         = "logout"
	ReasonPasswordChange = "password_change"
	ReasonAdmin          = "admin"
)
