package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/database"
	apperrors "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/errors"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, status,
		       failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.Phone,
		u.Role,
		u.Status,
		u.FailedLoginAttempts,
		u.LockedUntil,
		u.LastLoginAt,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "FindUserByID", query, id)
}

// GetByEmail retrieves a user by their email address. Emails are compared
// case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.scanUser(ctx, "FindUserByEmail", query, email)
}

// UpdateLoginState persists the lockout bookkeeping after a password check.
func (r *UserRepository) UpdateLoginState(ctx context.Context, id string, state domain.LoginState) (err error) {
	query := `
		UPDATE users
		SET failed_login_attempts = $1, locked_until = $2, last_login_at = COALESCE($3, last_login_at), updated_at = $4
		WHERE id = $5`

	ctx, end := database.TraceQuery(ctx, "UpdateLoginState", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		state.FailedLoginAttempts,
		state.LockedUntil,
		state.LastLoginAt,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update login state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	return nil
}

// RecordLoginFailure counts a failed attempt in one conditional update, so
// parallel failures each see the latest counter. When no row matched, a
// lookup tells a missing user apart from a lock applied in the meantime.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (_ domain.LoginState, err error) {
	query := `
		UPDATE users
		SET failed_login_attempts = CASE WHEN locked_until IS NOT NULL THEN 1 ELSE failed_login_attempts + 1 END,
		    locked_until = CASE
		        WHEN (CASE WHEN locked_until IS NOT NULL THEN 1 ELSE failed_login_attempts + 1 END) >= $3 THEN $4::timestamptz
		    END,
		    updated_at = $2
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)
		RETURNING failed_login_attempts, locked_until`

	ctx, end := database.TraceQuery(ctx, "RecordLoginFailure", query)
	defer func() {
		if errors.Is(err, repository.ErrLockedConcurrently) {
			end(nil)
			return
		}
		end(ignoreNotFound(err))
	}()

	var state domain.LoginState
	err = r.db.QueryRow(ctx, query, id, now.UTC(), threshold, lockUntil.UTC()).
		Scan(&state.FailedLoginAttempts, &state.LockedUntil)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.LoginState{}, fmt.Errorf("record login failure: %w", err)
	}

	u, err := r.GetByID(ctx, id)
	if err != nil {
		return domain.LoginState{}, err
	}
	current := domain.LoginState{
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		LastLoginAt:         u.LastLoginAt,
	}
	if u.IsLocked(now) {
		return current, repository.ErrLockedConcurrently
	}
	// The lock was cleared by a successful login in between; the failure is
	// dropped rather than counted against a fresh session.
	return domain.LoginState{FailedLoginAttempts: u.FailedLoginAttempts}, nil
}

// UpdatePassword replaces the password hash of a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (err error) {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "UpdatePassword", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	return nil
}

// scanUser executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, op, query string, args ...any) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(ignoreNotFound(err)) }()

	var u domain.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.Role,
		&u.Status,
		&u.FailedLoginAttempts,
		&u.LockedUntil,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
