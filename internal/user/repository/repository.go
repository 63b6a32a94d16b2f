package repository

import (
	"context"
	"time"

	"auth-control-plane/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	// MarkEmailVerified sets email_verified_at if not already set. No-op when already verified.
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
}
