package repository

import (
	"context"
	"time"

	"auth-control-plane/internal/revocation/domain"
)

// Repository defines persistence for the revocation ledger. IsRevoked is on
// the hot path of every credential verification, so implementations must keep
// it a point lookup keyed by jti.
type Repository interface {
	// Upsert records the revocation. Idempotent: revoking an already-revoked
	// jti updates reason and revoked_at without duplicating the entry.
	Upsert(ctx context.Context, t *domain.RevokedToken) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// PurgeExpired deletes entries whose natural expiry is at or before now.
	// Returns the number of entries removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
