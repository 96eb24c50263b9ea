package domain

import (
	"time"
)

// User represents a registered account. The auth core reads Role, Status and
// the lockout fields and writes only the lockout fields and LastLoginAt.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Phone               string     `json:"phone,omitempty"`
	Role                string     `json:"role"`
	Status              string     `json:"status"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsActive reports whether the account status allows authentication.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// IsLocked reports whether a lockout is in force at now. An elapsed lock is
// not cleared here; the next successful login clears it.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// LockRemaining returns how long the lockout still lasts at now, or zero.
func (u *User) LockRemaining(now time.Time) time.Duration {
	if !u.IsLocked(now) {
		return 0
	}
	return u.LockedUntil.Sub(now)
}

// LoginState is the subset of User written after a password check.
type LoginState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
}
