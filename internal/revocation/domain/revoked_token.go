package domain

import "time"

// Revocation reasons recorded on ledger entries.
const (
	ReasonLogout               = "logout"
	ReasonRotation             = "rotation"
	ReasonPasswordChanged      = "password_changed"
	ReasonPasswordReset        = "password_reset"
	ReasonReplayDetected       = "replay_detected"
	ReasonSessionLimitExceeded = "session_limit_exceeded"
	ReasonSessionExpired       = "session_expired"
)

// RevokedToken is a ledger entry for a credential that must be rejected
// regardless of signature validity. ExpiresAt is copied from the credential so
// the entry can be purged once the credential could no longer verify anyway.
type RevokedToken struct {
	Jti       string
	UserID    string
	TokenType string
	ExpiresAt time.Time
	RevokedAt time.Time
	Reason    string
}
