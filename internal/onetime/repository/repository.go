package repository

import (
	"context"
	"time"

	"auth-control-plane/internal/onetime/domain"
)

// Repository defines persistence for one-time tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	GetByToken(ctx context.Context, token string) (*domain.Token, error)
	// MarkUsed sets used_at, but only if the token is still unconsumed and not
	// invalidated. Returns false when the token had already been consumed or
	// invalidated, so two racing consumers cannot both succeed.
	MarkUsed(ctx context.Context, token string, at time.Time) (bool, error)
	// InvalidateAllForUser invalidates every live token for the (user, purpose)
	// pair. Returns the number of tokens invalidated.
	InvalidateAllForUser(ctx context.Context, userID string, purpose domain.Purpose, at time.Time) (int64, error)
	// PurgeDead deletes tokens that are expired, used, or invalidated before
	// the cutoff. Live tokens are never removed. Returns the number deleted.
	PurgeDead(ctx context.Context, cutoff time.Time) (int64, error)
}
