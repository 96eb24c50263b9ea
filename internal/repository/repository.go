package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
)

// Session store errors. Rotate distinguishes a token that was never stored
// from one that was already redeemed so replay can be told apart in logs.
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionAlreadyRevoked = errors.New("session already revoked")
)

// ErrLockedConcurrently is returned by RecordLoginFailure when another failed
// attempt locked the account after the caller read it.
var ErrLockedConcurrently = errors.New("account locked by a concurrent attempt")

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateLoginState writes the failed-attempt counter, lock and last login.
	UpdateLoginState(ctx context.Context, id string, state domain.LoginState) error

	// RecordLoginFailure atomically counts one failed attempt at now and sets
	// the lock to lockUntil once threshold is reached. An elapsed lock starts
	// a fresh count. The returned state has LockedUntil set only when this
	// call applied the lock. If a lock is already in force the counter is left
	// alone and ErrLockedConcurrently is returned with the current state.
	RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (domain.LoginState, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// SessionStore persists issued refresh tokens.
type SessionStore interface {
	// Save stores a new refresh record.
	Save(ctx context.Context, rec *domain.RefreshRecord) error

	// FindActive returns the record for token when it is neither revoked nor
	// expired, or apperrors.ErrNotFound.
	FindActive(ctx context.Context, token string) (*domain.RefreshRecord, error)

	// Rotate marks the record for token revoked and returns it. Exactly one
	// of any number of concurrent callers succeeds; the others get
	// ErrSessionAlreadyRevoked. Unknown tokens yield ErrSessionNotFound.
	Rotate(ctx context.Context, token string) (*domain.RefreshRecord, error)

	// Revoke marks the live record for token revoked and returns it. Unknown
	// or already revoked tokens yield apperrors.ErrNotFound.
	Revoke(ctx context.Context, token string) (*domain.RefreshRecord, error)

	// RevokeByID revokes one session owned by userID.
	RevokeByID(ctx context.Context, userID, sessionID string) (*domain.RefreshRecord, error)

	// RevokeAllForUser revokes every live record for userID.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// PurgeExpired deletes records whose expiry is before now, revoked or not.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// ListActiveForUser returns the live sessions of userID, newest first.
	ListActiveForUser(ctx context.Context, userID string) ([]*domain.RefreshRecord, error)
}

// RevocationStore is the durable tier of the revocation ledger.
type RevocationStore interface {
	// Insert records entry. Re-inserting a jti keeps the later expiry.
	Insert(ctx context.Context, entry domain.RevocationEntry) error

	// Exists reports whether jti has an entry that has not expired at now.
	Exists(ctx context.Context, jti string, now time.Time) (bool, error)

	// DeleteExpired removes entries whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
