package repository

import (
	"context"
	"database/sql"
	"time"

	"auth-control-plane/internal/revocation/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a revocation ledger backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert records the revocation keyed by jti. A conflicting insert updates
// reason and revoked_at in place, so concurrent revocations of the same jti
// are safe and never duplicate.
func (r *PostgresRepository) Upsert(ctx context.Context, t *domain.RevokedToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, user_id, token_type, expires_at, revoked_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (jti) DO UPDATE SET revoked_at = EXCLUDED.revoked_at, reason = EXCLUDED.reason`,
		t.Jti, t.UserID, t.TokenType, t.ExpiresAt, t.RevokedAt, t.Reason,
	)
	return err
}

// IsRevoked reports whether the jti has a ledger entry. Point lookup on the
// primary key.
func (r *PostgresRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// PurgeExpired deletes entries whose natural expiry is at or before now.
// Entries with a future expiry are never touched.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
