package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/repository"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/database"
	apperrors "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/errors"
)

const sessionColumns = `id, jti, user_id, ip_address, user_agent, expires_at, revoked, revoked_at, created_at`

// HashToken returns the hex SHA-256 digest under which a refresh token is
// stored. Raw tokens never reach the database.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository implements repository.SessionStore using PostgreSQL.
type SessionRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewSessionRepository creates a new PostgreSQL-backed session store.
func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Save inserts a refresh record. ID and CreatedAt are filled in when empty.
func (r *SessionRepository) Save(ctx context.Context, rec *domain.RefreshRecord) (err error) {
	if rec.Token == "" {
		return errors.New("save session: token is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	query := `
		INSERT INTO refresh_sessions (id, jti, token_hash, user_id, ip_address, user_agent, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)`

	ctx, end := database.TraceQuery(ctx, "SaveSession", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		rec.ID,
		rec.JTI,
		HashToken(rec.Token),
		rec.UserID,
		rec.IPAddress,
		rec.UserAgent,
		rec.ExpiresAt,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}
	return nil
}

// FindActive returns the unrevoked, unexpired record for token.
func (r *SessionRepository) FindActive(ctx context.Context, token string) (_ *domain.RefreshRecord, err error) {
	query := `SELECT ` + sessionColumns + `
		FROM refresh_sessions
		WHERE token_hash = $1 AND revoked = false AND expires_at > $2`

	ctx, end := database.TraceQuery(ctx, "FindSession", query)
	defer func() { end(ignoreNotFound(err)) }()

	rec, err := scanSession(r.db.QueryRow(ctx, query, HashToken(token), r.now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find refresh session: %w", err)
	}
	rec.Token = token
	return rec, nil
}

// Rotate revokes the live record for token in a single conditional update
// and returns it. When nothing matched, a second lookup tells an unknown or
// expired token apart from one that was already revoked.
func (r *SessionRepository) Rotate(ctx context.Context, token string) (_ *domain.RefreshRecord, err error) {
	query := `
		UPDATE refresh_sessions
		SET revoked = true, revoked_at = $2
		WHERE token_hash = $1 AND revoked = false AND expires_at > $2
		RETURNING ` + sessionColumns

	ctx, end := database.TraceQuery(ctx, "RotateSession", query)
	defer func() { end(ignoreSessionMiss(err)) }()

	hash := HashToken(token)
	rec, err := scanSession(r.db.QueryRow(ctx, query, hash, r.now().UTC()))
	if err == nil {
		rec.Token = token
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}

	revoked, err := r.revokedState(ctx, hash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, repository.ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("look up refresh session state: %w", err)
	case revoked:
		return nil, repository.ErrSessionAlreadyRevoked
	default:
		// Present and unrevoked but past expiry.
		return nil, repository.ErrSessionNotFound
	}
}

func (r *SessionRepository) revokedState(ctx context.Context, hash string) (revoked bool, err error) {
	query := `SELECT revoked FROM refresh_sessions WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "LookupSessionState", query)
	defer func() {
		if errors.Is(err, pgx.ErrNoRows) {
			end(nil)
			return
		}
		end(err)
	}()

	err = r.db.QueryRow(ctx, query, hash).Scan(&revoked)
	return revoked, err
}

// Revoke marks the live record for token revoked and returns it. A token
// that is unknown or already revoked yields apperrors.ErrNotFound, so revoking
// twice changes nothing.
func (r *SessionRepository) Revoke(ctx context.Context, token string) (_ *domain.RefreshRecord, err error) {
	query := `
		UPDATE refresh_sessions
		SET revoked = true, revoked_at = $1
		WHERE token_hash = $2 AND revoked = false
		RETURNING ` + sessionColumns

	ctx, end := database.TraceQuery(ctx, "RevokeSession", query)
	defer func() { end(ignoreNotFound(err)) }()

	rec, err := scanSession(r.db.QueryRow(ctx, query, r.now().UTC(), HashToken(token)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("revoke refresh session: %w", err)
	}
	rec.Token = token
	return rec, nil
}

// RevokeByID revokes a single live session owned by userID and returns it.
func (r *SessionRepository) RevokeByID(ctx context.Context, userID, sessionID string) (_ *domain.RefreshRecord, err error) {
	query := `
		UPDATE refresh_sessions
		SET revoked = true, revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND revoked = false
		RETURNING ` + sessionColumns

	ctx, end := database.TraceQuery(ctx, "RevokeSessionByID", query)
	defer func() { end(ignoreNotFound(err)) }()

	rec, err := scanSession(r.db.QueryRow(ctx, query, sessionID, userID, r.now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("session", sessionID)
		}
		return nil, fmt.Errorf("revoke refresh session by id: %w", err)
	}
	return rec, nil
}

// RevokeAllForUser revokes every live session of userID.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (_ int64, err error) {
	query := `UPDATE refresh_sessions SET revoked = true, revoked_at = $1 WHERE user_id = $2 AND revoked = false`

	ctx, end := database.TraceQuery(ctx, "RevokeUserSessions", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, r.now().UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh sessions by user: %w", err)
	}
	return ct.RowsAffected(), nil
}

// PurgeExpired deletes every record whose expiry is before now.
func (r *SessionRepository) PurgeExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	query := `DELETE FROM refresh_sessions WHERE expires_at < $1`

	ctx, end := database.TraceQuery(ctx, "PurgeSessions", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge refresh sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListActiveForUser returns the live sessions of userID, newest first.
func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string) (_ []*domain.RefreshRecord, err error) {
	query := `SELECT ` + sessionColumns + `
		FROM refresh_sessions
		WHERE user_id = $1 AND revoked = false AND expires_at > $2
		ORDER BY created_at DESC`

	ctx, end := database.TraceQuery(ctx, "ListUserSessions", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, userID, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list refresh sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*domain.RefreshRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh session row: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh session rows: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.RefreshRecord, error) {
	var rec domain.RefreshRecord
	if err := row.Scan(
		&rec.ID,
		&rec.JTI,
		&rec.UserID,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.ExpiresAt,
		&rec.Revoked,
		&rec.RevokedAt,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ignoreNotFound keeps expected misses from marking spans as errors.
func ignoreNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

func ignoreSessionMiss(err error) error {
	if errors.Is(err, repository.ErrSessionNotFound) || errors.Is(err, repository.ErrSessionAlreadyRevoked) {
		return nil
	}
	return err
}
