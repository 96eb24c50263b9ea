package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository"
	apperrors "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/errors"
)

// --- Clock ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- In-memory user store ---

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*domain.User)}
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memUsers) UpdateLoginState(_ context.Context, id string, state domain.LoginState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("user", id)
	}
	u.FailedLoginAttempts = state.FailedLoginAttempts
	u.LockedUntil = state.LockedUntil
	if state.LastLoginAt != nil {
		u.LastLoginAt = state.LastLoginAt
	}
	return nil
}

func (m *memUsers) RecordLoginFailure(_ context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (domain.LoginState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.LoginState{}, apperrors.NotFound("user", id)
	}
	if u.IsLocked(now) {
		return domain.LoginState{FailedLoginAttempts: u.FailedLoginAttempts, LockedUntil: u.LockedUntil}, repository.ErrLockedConcurrently
	}
	attempts := u.FailedLoginAttempts + 1
	if u.LockedUntil != nil {
		attempts = 1
	}
	u.FailedLoginAttempts = attempts
	u.LockedUntil = nil
	if attempts >= threshold {
		until := lockUntil
		u.LockedUntil = &until
	}
	return domain.LoginState{FailedLoginAttempts: attempts, LockedUntil: u.LockedUntil}, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) get(id string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memUsers) setStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].Status = status
}

// --- In-memory session store ---

type memSessions struct {
	mu      sync.Mutex
	now     func() time.Time
	byToken map[string]*domain.RefreshRecord
	nextID  int
}

func newMemSessions(now func() time.Time) *memSessions {
	return &memSessions{now: now, byToken: make(map[string]*domain.RefreshRecord)}
}

func (m *memSessions) Save(_ context.Context, rec *domain.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("s-%03d", m.nextID)
	}
	rec.CreatedAt = m.now()
	cp := *rec
	m.byToken[rec.Token] = &cp
	return nil
}

func (m *memSessions) FindActive(_ context.Context, token string) (*domain.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byToken[token]
	if !ok || !rec.IsActive(m.now()) {
		return nil, apperrors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memSessions) Rotate(_ context.Context, token string) (*domain.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byToken[token]
	switch {
	case !ok:
		return nil, repository.ErrSessionNotFound
	case rec.Revoked:
		return nil, repository.ErrSessionAlreadyRevoked
	case !m.now().Before(rec.ExpiresAt):
		return nil, repository.ErrSessionNotFound
	}
	m.revokeLocked(rec)
	cp := *rec
	return &cp, nil
}

func (m *memSessions) Revoke(_ context.Context, token string) (*domain.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byToken[token]
	if !ok || rec.Revoked {
		return nil, apperrors.ErrNotFound
	}
	m.revokeLocked(rec)
	cp := *rec
	return &cp, nil
}

func (m *memSessions) RevokeByID(_ context.Context, userID, sessionID string) (*domain.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byToken {
		if rec.ID == sessionID && rec.UserID == userID && !rec.Revoked {
			m.revokeLocked(rec)
			cp := *rec
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("session", sessionID)
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.byToken {
		if rec.UserID == userID && !rec.Revoked {
			m.revokeLocked(rec)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, rec := range m.byToken {
		if rec.ExpiresAt.Before(now) {
			delete(m.byToken, token)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) ListActiveForUser(_ context.Context, userID string) ([]*domain.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.RefreshRecord{}
	for _, rec := range m.byToken {
		if rec.UserID == userID && rec.IsActive(m.now()) {
			cp := *rec
			cp.Token = ""
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}

func (m *memSessions) revokeLocked(rec *domain.RefreshRecord) {
	now := m.now()
	rec.Revoked = true
	rec.RevokedAt = &now
}

// --- In-memory durable revocation tier ---

type memRevocations struct {
	mu      sync.Mutex
	entries map[string]domain.RevocationEntry
}

func newMemRevocations() *memRevocations {
	return &memRevocations{entries: make(map[string]domain.RevocationEntry)}
}

func (m *memRevocations) Insert(_ context.Context, e domain.RevocationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.entries[e.JTI]; ok && prev.ExpiresAt.After(e.ExpiresAt) {
		return nil
	}
	m.entries[e.JTI] = e
	return nil
}

func (m *memRevocations) Exists(_ context.Context, jti string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jti]
	return ok && e.ExpiresAt.After(now), nil
}

func (m *memRevocations) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, jti)
			n++
		}
	}
	return n, nil
}

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdateLoginState(ctx context.Context, id string, state domain.LoginState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *mockUserRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (domain.LoginState, error) {
	args := m.Called(ctx, id, now, threshold, lockUntil)
	return args.Get(0).(domain.LoginState), args.Error(1)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}
