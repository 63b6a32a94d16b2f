package domain

import "time"

// Purpose is the workflow a one-time token belongs to. At most one live token
// exists per (user, purpose) pair at any time.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Token is an opaque, storage-backed single-use token for out-of-band flows.
// State machine: issued -> consumed | invalidated | expired (terminal).
type Token struct {
	Token         string // opaque random value; primary key
	UserID        string
	Email         string // target address the token was mailed to
	Purpose       Purpose
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UsedAt        *time.Time // set exactly once on successful consumption
	InvalidatedAt *time.Time // set when superseded by a newer request
}

// Consumable reports whether the token can still be consumed at now: never
// used, never invalidated, and not past expiry.
func (t *Token) Consumable(now time.Time) bool {
	return t != nil && t.UsedAt == nil && t.InvalidatedAt == nil && now.Before(t.ExpiresAt)
}
