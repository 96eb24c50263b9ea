package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/database"
)

// RevocationRepository is the durable tier of the revocation ledger. Rows
// carry the revoked token's own expiry and are swept once it passes.
type RevocationRepository struct {
	db database.DBTX
}

// NewRevocationRepository creates a new PostgreSQL-backed revocation store.
func NewRevocationRepository(db database.DBTX) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Insert records a revoked jti. A repeated insert keeps the later expiry.
func (r *RevocationRepository) Insert(ctx context.Context, e domain.RevocationEntry) (err error) {
	if e.JTI == "" {
		return errors.New("insert revocation: jti is required")
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO revoked_tokens (jti, kind, user_id, reason, expires_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (jti) DO UPDATE
		SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)`

	ctx, end := database.TraceQuery(ctx, "InsertRevocation", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		e.JTI,
		string(e.Kind),
		nullString(e.UserID),
		nullString(e.Reason),
		e.ExpiresAt.UTC(),
		e.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert revocation: %w", err)
	}
	return nil
}

// Exists reports whether jti is revoked and the revocation is still live.
func (r *RevocationRepository) Exists(ctx context.Context, jti string, now time.Time) (_ bool, err error) {
	query := `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > $2)`

	ctx, end := database.TraceQuery(ctx, "RevocationExists", query)
	defer func() { end(err) }()

	var found bool
	if err = r.db.QueryRow(ctx, query, jti, now.UTC()).Scan(&found); err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return found, nil
}

// DeleteExpired removes rows whose expiry is at or before now.
func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at <= $1`

	ctx, end := database.TraceQuery(ctx, "SweepRevocations", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep revocations: %w", err)
	}
	return ct.RowsAffected(), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
