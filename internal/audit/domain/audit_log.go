package domain

import "time"

// AuditLog represents an authentication lifecycle event (login, rotation,
// replay detection, eviction, password change).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
