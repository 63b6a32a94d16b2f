package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	sessiondomain "auth-control-plane/internal/session/domain"
)

const bearerPrefix = "bearer "

// SessionReader is the minimal session access the auth middleware needs.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

// RevocationChecker answers whether a jti is on the revocation ledger.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// requireAuth validates the Bearer (access) token, checks the jti against the
// revocation ledger, requires a live and active session, and sets user_id and
// session_id in context for protected routes. Every rejection is the same
// generic 401 so callers cannot tell a bad signature from a dead session.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			s.unauthorized(w)
			return
		}
		claims, err := s.tokens.VerifyAccess(token)
		if err != nil {
			s.unauthorized(w)
			return
		}
		revoked, err := s.ledger.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			s.log.Error().Err(err).Msg("server: revocation check failed")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if revoked {
			s.unauthorized(w)
			return
		}
		sess, err := s.sessions.GetByID(r.Context(), claims.SessionID)
		if err != nil {
			s.log.Error().Err(err).Msg("server: session lookup failed")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		now := time.Now().UTC()
		if sess == nil || !s.policy.IsActive(sess, now) {
			s.unauthorized(w)
			return
		}
		if err := s.sessions.Touch(r.Context(), sess.ID, now); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("server: session touch failed")
		}
		ctx := WithIdentity(r.Context(), claims.Subject, claims.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// clientIP stores the request's client IP in context for the audit logger.
// Runs after chi's RealIP middleware, so RemoteAddr already reflects
// X-Forwarded-For / X-Real-IP when present.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
	})
}

// extractBearer returns the Bearer token from the Authorization header, or ""
// if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
