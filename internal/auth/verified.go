package auth

import (
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
)

// VerifiedToken is a token whose signature, issuer, audience, expiry and
// kind were checked by Codec.Verify. Its fields are unexported so no other
// package can construct one; a function taking a VerifiedToken therefore
// cannot be handed an unchecked token.
type VerifiedToken struct {
	raw    string
	claims domain.Claims
}

// Raw returns the encoded token.
func (v VerifiedToken) Raw() string { return v.raw }

// Claims returns the verified claims.
func (v VerifiedToken) Claims() domain.Claims { return v.claims }

// IsZero reports whether v was not produced by a successful Verify.
func (v VerifiedToken) IsZero() bool { return v.raw == "" }
