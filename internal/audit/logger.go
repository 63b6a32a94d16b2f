package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"auth-control-plane/internal/audit/domain"
	auditrepo "auth-control-plane/internal/audit/repository"
)

// Actions recorded by the auth service.
const (
	ActionLogin           = "login"
	ActionLoginFailure    = "login_failure"
	ActionRefresh         = "refresh"
	ActionReplayDetected  = "replay_detected"
	ActionLogout          = "logout"
	ActionLogoutAll       = "logout_all"
	ActionSessionEvicted  = "session_evicted"
	ActionPasswordChanged = "password_changed"
	ActionPasswordReset   = "password_reset"
	ActionEmailVerified   = "email_verified"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller;
// it never gates correctness of the request that produced the event.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         zerolog.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log zerolog.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn().Err(err).Str("action", action).Str("resource", resource).Msg("audit: failed to log event")
	}
}

// Nop is an AuditLogger that discards events. Used in tests.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}
