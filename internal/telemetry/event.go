// Package telemetry emits authentication lifecycle events (login, rotation,
// replay detection, logout) to an external sink. Emission is fire-and-forget
// and never gates the request that produced the event.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the auth service.
const (
	EventLogin          = "login"
	EventLoginFailure   = "login_failure"
	EventRefresh        = "refresh"
	EventReplayDetected = "replay_detected"
	EventLogout         = "logout"
	EventSessionEvicted = "session_evicted"
	EventPasswordReset  = "password_reset"
)

// AuthEvent is the wire shape of one authentication event (JSON on Kafka).
type AuthEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent returns an AuthEvent with a fresh id and the current timestamp.
func NewEvent(eventType, userID, sessionID, reason string) *AuthEvent {
	return &AuthEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Reason:    reason,
		Source:    "auth-control-plane",
		CreatedAt: time.Now().UTC(),
	}
}
