package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auth-control-plane/internal/onetime/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a one-time token repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the token.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO one_time_tokens (token, user_id, email, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Token, t.UserID, t.Email, t.Purpose, t.ExpiresAt, t.CreatedAt,
	)
	return err
}

// GetByToken returns the token record, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Token, error) {
	var t domain.Token
	var usedAt, invalidatedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT token, user_id, email, purpose, expires_at, created_at, used_at, invalidated_at
		FROM one_time_tokens WHERE token = $1`, token,
	).Scan(&t.Token, &t.UserID, &t.Email, &t.Purpose, &t.ExpiresAt, &t.CreatedAt, &usedAt, &invalidatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	if invalidatedAt.Valid {
		t.InvalidatedAt = &invalidatedAt.Time
	}
	return &t, nil
}

// MarkUsed sets used_at only while the token is unconsumed and not
// invalidated; the guard makes consumption single-winner under races.
func (r *PostgresRepository) MarkUsed(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE one_time_tokens SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND invalidated_at IS NULL`,
		token, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InvalidateAllForUser invalidates every live token for the (user, purpose) pair.
func (r *PostgresRepository) InvalidateAllForUser(ctx context.Context, userID string, purpose domain.Purpose, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE one_time_tokens SET invalidated_at = $3
		WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL AND invalidated_at IS NULL`,
		userID, purpose, at,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeDead deletes tokens expired, used, or invalidated before the cutoff.
func (r *PostgresRepository) PurgeDead(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM one_time_tokens
		WHERE expires_at <= $1 OR used_at <= $1 OR invalidated_at <= $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
