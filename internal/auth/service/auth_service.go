// Package service implements the credential and session lifecycle: login with
// eviction, refresh rotation with replay detection, logout, and password change.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"auth-control-plane/internal/audit"
	"auth-control-plane/internal/auth"
	"auth-control-plane/internal/policy"
	"auth-control-plane/internal/retry"
	revocationdomain "auth-control-plane/internal/revocation/domain"
	"auth-control-plane/internal/security"
	sessiondomain "auth-control-plane/internal/session/domain"
	"auth-control-plane/internal/telemetry"
	userdomain "auth-control-plane/internal/user/domain"
)

const (
	evictionRetryAttempts = 3
	evictionRetryBase     = 100 * time.Millisecond
)

// AuthResult holds the outcome of Login or Refresh: the new credential pair
// plus the session it belongs to.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	SessionID    string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	SwapRefresh(ctx context.Context, id, oldJti, newJti, newHash string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteAllByUser(ctx context.Context, userID, exceptID string) (int64, error)
}

// RevocationRepo is the minimal revocation ledger interface needed by the auth service.
type RevocationRepo interface {
	Upsert(ctx context.Context, t *revocationdomain.RevokedToken) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// VerificationRequester issues and mails an email-verification token. Implemented
// by the onetime service; failures are logged, never returned, so registration
// cannot fail on a mail outage.
type VerificationRequester interface {
	RequestEmailVerification(ctx context.Context, userID, email string) error
}

// AuthService implements register, login, refresh rotation, logout, and password change.
type AuthService struct {
	userRepo     UserRepo
	sessionRepo  SessionRepo
	ledger       RevocationRepo
	hasher       *security.Hasher
	tokens       *security.TokenProvider
	policy       policy.Policy
	verification VerificationRequester
	audit        audit.AuditLogger
	emitter      telemetry.EventEmitter
	log          zerolog.Logger
}

// NewAuthService returns an AuthService with the given dependencies.
// verification and emitter may be nil; audit must not be (use audit.Nop in tests).
func NewAuthService(
	userRepo UserRepo,
	sessionRepo SessionRepo,
	ledger RevocationRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	pol policy.Policy,
	verification VerificationRequester,
	auditLogger audit.AuditLogger,
	emitter telemetry.EventEmitter,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		ledger:       ledger,
		hasher:       hasher,
		tokens:       tokens,
		policy:       pol,
		verification: verification,
		audit:        auditLogger,
		emitter:      emitter,
		log:          log,
	}
}

// Register creates a user with a hashed password and sends an email
// verification token. The user cannot log in until the email is confirmed.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*userdomain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := auth.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, auth.ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hashed,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrValidation, err)
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	if s.verification != nil {
		if err := s.verification.RequestEmailVerification(ctx, user.ID, user.Email); err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("auth: verification token request failed")
		}
	}
	return user, nil
}

// Login authenticates the user and opens a session, then enforces the
// concurrent-session cap by evicting the least recently active sessions.
// Unknown user and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent, ip string, persistent bool) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, auth.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.audit.LogEvent(ctx, user.ID, audit.ActionLoginFailure, "session", "")
		telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventLoginFailure, user.ID, "", "wrong_password"))
		return nil, auth.ErrInvalidCredentials
	}
	if !user.EmailVerified() {
		return nil, auth.ErrEmailNotVerified
	}

	now := time.Now().UTC()
	sessionID := uuid.New().String()
	refreshToken, refreshClaims, err := s.tokens.IssueRefresh(sessionID, user.ID, persistent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrTokenGenerationFailed, err)
	}
	accessToken, accessClaims, err := s.tokens.IssueAccess(sessionID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrTokenGenerationFailed, err)
	}
	sess := &sessiondomain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshJti:       refreshClaims.ID,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		UserAgent:        userAgent,
		IPAddress:        ip,
		Persistent:       persistent,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(s.policy.TTLFor(security.TokenTypeRefresh, persistent)),
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.enforceSessionCap(ctx, user.ID, sessionID)

	s.audit.LogEvent(ctx, user.ID, audit.ActionLogin, "session", sessionID)
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventLogin, user.ID, sessionID, ""))
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
		UserID:       user.ID,
		SessionID:    sessionID,
	}, nil
}

// enforceSessionCap evicts the oldest sessions by last activity until the user
// is back under the cap. newSessionID is never evicted. Eviction is best-effort:
// a failed delete after bounded retries is logged and skipped; the next login
// picks it up again.
func (s *AuthService) enforceSessionCap(ctx context.Context, userID, newSessionID string) {
	sessions, err := s.sessionRepo.ListByUser(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("auth: session cap check failed")
		return
	}
	existing := 0
	for _, sess := range sessions {
		if sess.ID != newSessionID {
			existing++
		}
	}
	toEvict := s.policy.EvictionCount(existing)
	if toEvict == 0 {
		return
	}
	// ListByUser orders by last activity ascending, oldest first.
	for _, sess := range sessions {
		if toEvict == 0 {
			break
		}
		if sess.ID == newSessionID {
			continue
		}
		if err := s.invalidateSession(ctx, sess, revocationdomain.ReasonSessionLimitExceeded); err != nil {
			s.log.Error().Err(err).Str("session_id", sess.ID).Msg("auth: session eviction failed")
			continue
		}
		s.audit.LogEvent(ctx, userID, audit.ActionSessionEvicted, "session", sess.ID)
		telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventSessionEvicted, userID, sess.ID, revocationdomain.ReasonSessionLimitExceeded))
		toEvict--
	}
}

// invalidateSession revokes the session's current refresh jti and deletes the
// row, retrying with backoff since both writes are idempotent.
func (s *AuthService) invalidateSession(ctx context.Context, sess *sessiondomain.Session, reason string) error {
	return retry.Do(ctx, evictionRetryAttempts, evictionRetryBase, func(ctx context.Context) error {
		if err := s.revokeJti(ctx, sess.RefreshJti, sess.UserID, sess.ExpiresAt, reason); err != nil {
			return err
		}
		return s.sessionRepo.Delete(ctx, sess.ID)
	})
}

func (s *AuthService) revokeJti(ctx context.Context, jti, userID string, naturalExpiry time.Time, reason string) error {
	if jti == "" {
		return nil
	}
	return s.ledger.Upsert(ctx, &revocationdomain.RevokedToken{
		Jti:       jti,
		UserID:    userID,
		TokenType: string(security.TokenTypeRefresh),
		ExpiresAt: naturalExpiry,
		RevokedAt: time.Now().UTC(),
		Reason:    reason,
	})
}

// Refresh exchanges a valid refresh token for a new credential pair, rotating
// the session's refresh jti. Presenting a jti that no longer matches the
// session's stored one is treated as replay: the whole session is invalidated.
// The swap is a compare-and-swap on the stored jti, so of two concurrent
// rotations exactly one wins; the loser gets ErrInvalidToken and issues nothing.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		// Reuse of a rotated-away or revoked token. If the session still
		// exists under a newer jti, the legitimate owner rotated past this
		// token and someone is replaying it: invalidate the whole lineage.
		sess, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
		if err == nil && sess != nil && sess.RefreshJti != claims.ID {
			s.handleReplay(ctx, claims.ID, sess)
		}
		return nil, auth.ErrInvalidToken
	}
	sess, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, auth.ErrSessionNotFound
	}
	now := time.Now().UTC()
	if !s.policy.IsActive(sess, now) {
		if err := s.invalidateSession(ctx, sess, revocationdomain.ReasonSessionExpired); err != nil {
			s.log.Error().Err(err).Str("session_id", sess.ID).Msg("auth: expired session cleanup failed")
		}
		return nil, auth.ErrSessionExpired
	}
	if claims.ID != sess.RefreshJti {
		s.handleReplay(ctx, claims.ID, sess)
		return nil, auth.ErrInvalidToken
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, auth.ErrInvalidToken
	}

	newRefresh, newRefreshClaims, err := s.tokens.IssueRefresh(sess.ID, sess.UserID, sess.Persistent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrTokenGenerationFailed, err)
	}
	accessToken, accessClaims, err := s.tokens.IssueAccess(sess.ID, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrTokenGenerationFailed, err)
	}
	swapped, err := s.sessionRepo.SwapRefresh(ctx, sess.ID, claims.ID, newRefreshClaims.ID, security.HashRefreshToken(newRefresh), now)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// A concurrent rotation won between our read and the swap. The pair
		// issued above is discarded, never returned, and its jtis never stored.
		return nil, auth.ErrInvalidToken
	}
	// Only after the swap landed is the old jti retired. A failure here is
	// logged, not surfaced: the old jti no longer matches the session, so a
	// later replay of it is still caught by the mismatch path.
	if err := s.revokeJti(ctx, claims.ID, sess.UserID, claims.ExpiresAt.Time, revocationdomain.ReasonRotation); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID).Msg("auth: rotated jti revocation failed")
	}

	s.audit.LogEvent(ctx, sess.UserID, audit.ActionRefresh, "session", sess.ID)
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventRefresh, sess.UserID, sess.ID, ""))
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
		UserID:       sess.UserID,
		SessionID:    sess.ID,
	}, nil
}

// handleReplay invalidates the session whose rotated-away refresh token was
// presented again. Both the presented jti and the session's current jti are
// revoked so neither lineage survives, then the session row is removed.
func (s *AuthService) handleReplay(ctx context.Context, presentedJti string, sess *sessiondomain.Session) {
	s.log.Warn().
		Str("session_id", sess.ID).
		Str("user_id", sess.UserID).
		Msg("auth: refresh token replay detected, invalidating session")
	if err := s.revokeJti(ctx, presentedJti, sess.UserID, sess.ExpiresAt, revocationdomain.ReasonReplayDetected); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID).Msg("auth: replay revocation failed")
	}
	if err := s.invalidateSession(ctx, sess, revocationdomain.ReasonReplayDetected); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID).Msg("auth: replay invalidation failed")
	}
	s.audit.LogEvent(ctx, sess.UserID, audit.ActionReplayDetected, "session", sess.ID)
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventReplayDetected, sess.UserID, sess.ID, revocationdomain.ReasonReplayDetected))
}

// Logout revokes the refresh token's session. Invalid or already-invalidated
// tokens are a no-op so logout stays idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	sess, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if err := s.invalidateSession(ctx, sess, revocationdomain.ReasonLogout); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, sess.UserID, audit.ActionLogout, "session", sess.ID)
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventLogout, sess.UserID, sess.ID, ""))
	return nil
}

// RevokeSession ends one of the user's sessions by ID. Returns
// ErrSessionNotFound when the session does not exist or belongs to
// someone else; ownership failures are indistinguishable from absence.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.UserID != userID {
		return auth.ErrSessionNotFound
	}
	if err := s.invalidateSession(ctx, sess, revocationdomain.ReasonLogout); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, userID, audit.ActionLogout, "session", sess.ID)
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventLogout, userID, sess.ID, ""))
	return nil
}

// ListSessions returns the user's sessions ordered oldest-activity first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessionRepo.ListByUser(ctx, userID)
}

// LogoutAll ends every session for the user, optionally keeping
// exceptSessionID alive. Returns the number of sessions removed.
func (s *AuthService) LogoutAll(ctx context.Context, userID, exceptSessionID string) (int64, error) {
	return s.invalidateAllSessions(ctx, userID, exceptSessionID, revocationdomain.ReasonLogout, audit.ActionLogoutAll)
}

func (s *AuthService) invalidateAllSessions(ctx context.Context, userID, exceptSessionID, reason, auditAction string) (int64, error) {
	sessions, err := s.sessionRepo.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		if sess.ID == exceptSessionID {
			continue
		}
		if err := s.revokeJti(ctx, sess.RefreshJti, userID, sess.ExpiresAt, reason); err != nil {
			return 0, err
		}
	}
	count, err := s.sessionRepo.DeleteAllByUser(ctx, userID, exceptSessionID)
	if err != nil {
		return 0, err
	}
	s.audit.LogEvent(ctx, userID, auditAction, "session", "")
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventLogout, userID, "", reason))
	return count, nil
}

// ChangePassword verifies the current password, stores the new hash, and, when
// policy requires it, ends every other session so stolen refresh tokens die
// with the old password. activeSessionID survives so the caller stays logged in.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, activeSessionID string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return auth.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(currentPassword)); err != nil {
		return auth.ErrInvalidCredentials
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, userID, hashed); err != nil {
		return err
	}
	if s.policy.InvalidateOtherSessionsOnPasswordChange() {
		if _, err := s.invalidateAllSessions(ctx, userID, activeSessionID, revocationdomain.ReasonPasswordChanged, audit.ActionPasswordChanged); err != nil {
			return err
		}
	} else {
		s.audit.LogEvent(ctx, userID, audit.ActionPasswordChanged, "user", userID)
	}
	return nil
}

