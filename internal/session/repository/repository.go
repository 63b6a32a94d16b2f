package repository

import (
	"context"
	"time"

	"auth-control-plane/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Touch bumps the session's last-activity timestamp.
	Touch(ctx context.Context, id string, at time.Time) error
	// SwapRefresh atomically replaces the session's refresh jti and token hash,
	// but only if the stored jti still equals oldJti. Returns false when the
	// stored jti no longer matches, which means a concurrent rotation won.
	SwapRefresh(ctx context.Context, id, oldJti, newJti, newHash string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	// DeleteAllByUser removes every session for the user, optionally keeping
	// exceptID. Returns the number of sessions removed.
	DeleteAllByUser(ctx context.Context, userID, exceptID string) (int64, error)
}
