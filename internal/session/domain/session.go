package domain

import "time"

// Session represents one logical login (one device/browser) and the jti of its
// currently valid refresh token. A session row is hard-deleted on logout,
// eviction, or security invalidation; the reason lands in the revocation
// ledger and audit log, not on the row.
type Session struct {
	ID               string
	UserID           string
	RefreshJti       string // jti of the currently valid refresh token; rotation tracking key
	RefreshTokenHash string // SHA-256 hash of the current refresh token
	UserAgent        string
	IPAddress        string
	Persistent       bool // "remember me": extends the expiry horizon
	CreatedAt        time.Time
	LastActivityAt   time.Time
	ExpiresAt        time.Time
}
