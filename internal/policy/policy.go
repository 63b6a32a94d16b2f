// Package policy holds the pure session-lifecycle decision logic: token TTL
// selection, the concurrent-session cap, inactivity, and password-change
// behavior. No I/O; everything is a function of configuration and clock input.
package policy

import (
	"time"

	sessiondomain "auth-control-plane/internal/session/domain"
	"auth-control-plane/internal/security"
)

// Policy is an immutable bundle of session rules, built once at startup from config.
type Policy struct {
	accessTTL                  time.Duration
	refreshTTL                 time.Duration
	rememberMeTTL              time.Duration
	maxSessionsPerUser         int
	inactivityTimeout          time.Duration
	invalidateOnPasswordChange bool
}

// New returns a Policy. rememberMeTTL below refreshTTL is raised to refreshTTL
// so a persistent session never expires sooner than a standard one.
func New(accessTTL, refreshTTL, rememberMeTTL, inactivityTimeout time.Duration, maxSessionsPerUser int, invalidateOnPasswordChange bool) Policy {
	if rememberMeTTL < refreshTTL {
		rememberMeTTL = refreshTTL
	}
	if maxSessionsPerUser < 1 {
		maxSessionsPerUser = 1
	}
	return Policy{
		accessTTL:                  accessTTL,
		refreshTTL:                 refreshTTL,
		rememberMeTTL:              rememberMeTTL,
		maxSessionsPerUser:         maxSessionsPerUser,
		inactivityTimeout:          inactivityTimeout,
		invalidateOnPasswordChange: invalidateOnPasswordChange,
	}
}

// TTLFor returns the lifetime for a token of the given type. persistent only
// affects refresh tokens.
func (p Policy) TTLFor(typ security.TokenType, persistent bool) time.Duration {
	if typ == security.TokenTypeAccess {
		return p.accessTTL
	}
	if persistent {
		return p.rememberMeTTL
	}
	return p.refreshTTL
}

// MaxSessionsPerUser returns the concurrent-session cap. Persistent sessions
// count toward the cap like any other.
func (p Policy) MaxSessionsPerUser() int { return p.maxSessionsPerUser }

// InactivityTimeout returns how long a session may stay idle before it is
// reported inactive.
func (p Policy) InactivityTimeout() time.Duration { return p.inactivityTimeout }

// InvalidateOtherSessionsOnPasswordChange reports whether a password change
// must log out every session except the one performing the change.
func (p Policy) InvalidateOtherSessionsOnPasswordChange() bool {
	return p.invalidateOnPasswordChange
}

// IsActive reports whether the session is live at now: not past its expiry and
// not idle longer than the inactivity timeout. Both conditions are evaluated
// fresh on every call.
func (p Policy) IsActive(s *sessiondomain.Session, now time.Time) bool {
	if s == nil {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	last := s.LastActivityAt
	if last.IsZero() {
		last = s.CreatedAt
	}
	return now.Sub(last) < p.inactivityTimeout
}

// EvictionCount returns how many sessions must be removed so a user holding
// current sessions can open one more without exceeding the cap.
func (p Policy) EvictionCount(current int) int {
	over := current - p.maxSessionsPerUser + 1
	if over < 0 {
		return 0
	}
	return over
}
