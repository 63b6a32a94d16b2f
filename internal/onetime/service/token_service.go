// Package service implements the single-use token workflows: email
// verification and password reset. Tokens are opaque random values backed by
// storage, never signed, and consumable at most once.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"auth-control-plane/internal/audit"
	"auth-control-plane/internal/auth"
	"auth-control-plane/internal/mail"
	onetimedomain "auth-control-plane/internal/onetime/domain"
	revocationdomain "auth-control-plane/internal/revocation/domain"
	"auth-control-plane/internal/security"
	sessiondomain "auth-control-plane/internal/session/domain"
	"auth-control-plane/internal/telemetry"
	userdomain "auth-control-plane/internal/user/domain"
)

// TokenRepo is the minimal one-time token repository needed by the service.
type TokenRepo interface {
	Create(ctx context.Context, t *onetimedomain.Token) error
	GetByToken(ctx context.Context, token string) (*onetimedomain.Token, error)
	MarkUsed(ctx context.Context, token string, at time.Time) (bool, error)
	InvalidateAllForUser(ctx context.Context, userID string, purpose onetimedomain.Purpose, at time.Time) (int64, error)
}

// UserRepo is the minimal user repository needed by the service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
}

// SessionRepo is the minimal session repository needed by the service.
type SessionRepo interface {
	ListByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	DeleteAllByUser(ctx context.Context, userID, exceptID string) (int64, error)
}

// RevocationRepo records refresh jtis that must be rejected after a reset.
type RevocationRepo interface {
	Upsert(ctx context.Context, t *revocationdomain.RevokedToken) error
}

// TokenService issues, mails, and consumes single-use tokens.
type TokenService struct {
	tokenRepo     TokenRepo
	userRepo      UserRepo
	sessionRepo   SessionRepo
	ledger        RevocationRepo
	hasher        *security.Hasher
	mailer        mail.Mailer
	tokenTTL      time.Duration
	publicBaseURL string
	audit         audit.AuditLogger
	emitter       telemetry.EventEmitter
	log           zerolog.Logger
}

// NewTokenService returns a TokenService. mailer may be a mail.NopMailer when
// SMTP is unconfigured; emitter may be nil.
func NewTokenService(
	tokenRepo TokenRepo,
	userRepo UserRepo,
	sessionRepo SessionRepo,
	ledger RevocationRepo,
	hasher *security.Hasher,
	mailer mail.Mailer,
	tokenTTL time.Duration,
	publicBaseURL string,
	auditLogger audit.AuditLogger,
	emitter telemetry.EventEmitter,
	log zerolog.Logger,
) *TokenService {
	return &TokenService{
		tokenRepo:     tokenRepo,
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		ledger:        ledger,
		hasher:        hasher,
		mailer:        mailer,
		tokenTTL:      tokenTTL,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		audit:         auditLogger,
		emitter:       emitter,
		log:           log,
	}
}

// RequestEmailVerification invalidates any live verification token for the
// user and issues a fresh one, then mails the link. Mail failure is logged,
// never returned: the token stays valid and can be re-requested.
func (s *TokenService) RequestEmailVerification(ctx context.Context, userID, email string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return auth.ErrInvalidCredentials
	}
	token, err := s.issue(ctx, user.ID, email, onetimedomain.PurposeEmailVerification)
	if err != nil {
		return err
	}
	s.sendMail(ctx, email, user.Name, "Confirm your email address", "email_verification", s.publicBaseURL+"/verify-email?token="+token.Token)
	return nil
}

// ResendVerification issues a fresh verification token for the account behind
// email. Unknown and already-verified accounts return nil silently so the
// endpoint cannot be used to probe which emails exist.
func (s *TokenService) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || user.EmailVerifiedAt != nil {
		return nil
	}
	return s.RequestEmailVerification(ctx, user.ID, user.Email)
}

// RequestPasswordReset issues a reset token for the account behind email.
// Unknown addresses return nil so callers cannot probe which emails exist.
func (s *TokenService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	token, err := s.issue(ctx, user.ID, email, onetimedomain.PurposePasswordReset)
	if err != nil {
		return err
	}
	s.sendMail(ctx, email, user.Name, "Reset your password", "password_reset", s.publicBaseURL+"/reset-password?token="+token.Token)
	return nil
}

// issue supersedes all live tokens for the (user, purpose) pair and stores a
// fresh one, so at most one token per purpose is ever consumable.
func (s *TokenService) issue(ctx context.Context, userID, email string, purpose onetimedomain.Purpose) (*onetimedomain.Token, error) {
	now := time.Now().UTC()
	if _, err := s.tokenRepo.InvalidateAllForUser(ctx, userID, purpose, now); err != nil {
		return nil, err
	}
	value, err := generateToken()
	if err != nil {
		return nil, err
	}
	token := &onetimedomain.Token{
		Token:     value,
		UserID:    userID,
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: now.Add(s.tokenTTL),
		CreatedAt: now,
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *TokenService) sendMail(ctx context.Context, to, name, subject, templateName, link string) {
	if s.mailer == nil {
		return
	}
	vars := map[string]string{
		"Name": name,
		"Link": link,
		"TTL":  s.tokenTTL.String(),
	}
	if err := s.mailer.Send(ctx, to, subject, templateName, vars); err != nil {
		s.log.Error().Err(err).Str("template", templateName).Msg("onetime: mail send failed")
	}
}

// ConfirmEmail consumes a verification token and marks the user's email
// verified. Missing, used, and invalidated tokens all map to ErrInvalidToken;
// expiry is reported separately as ErrTokenExpired.
func (s *TokenService) ConfirmEmail(ctx context.Context, token string) error {
	rec, err := s.consume(ctx, token, onetimedomain.PurposeEmailVerification)
	if err != nil {
		return err
	}
	if err := s.userRepo.MarkEmailVerified(ctx, rec.UserID, time.Now().UTC()); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, rec.UserID, audit.ActionEmailVerified, "user", rec.Email)
	return nil
}

// ResetPassword consumes a reset token, stores the new password hash, and ends
// every session for the user: a reset proves the old credential set may be
// compromised, so nothing issued before it survives.
func (s *TokenService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	rec, err := s.consume(ctx, token, onetimedomain.PurposePasswordReset)
	if err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, rec.UserID, hashed); err != nil {
		return err
	}
	sessions, err := s.sessionRepo.ListByUser(ctx, rec.UserID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, sess := range sessions {
		if sess.RefreshJti == "" {
			continue
		}
		if err := s.ledger.Upsert(ctx, &revocationdomain.RevokedToken{
			Jti:       sess.RefreshJti,
			UserID:    rec.UserID,
			TokenType: string(security.TokenTypeRefresh),
			ExpiresAt: sess.ExpiresAt,
			RevokedAt: now,
			Reason:    revocationdomain.ReasonPasswordReset,
		}); err != nil {
			return err
		}
	}
	if _, err := s.sessionRepo.DeleteAllByUser(ctx, rec.UserID, ""); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, rec.UserID, audit.ActionPasswordReset, "user", "")
	telemetry.EmitAsync(s.emitter, ctx, telemetry.NewEvent(telemetry.EventPasswordReset, rec.UserID, "", ""))
	return nil
}

// consume looks up and atomically marks the token used. The MarkUsed guard is
// what makes the token single-use under concurrent confirmation attempts.
func (s *TokenService) consume(ctx context.Context, token string, purpose onetimedomain.Purpose) (*onetimedomain.Token, error) {
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	rec, err := s.tokenRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Purpose != purpose || rec.UsedAt != nil || rec.InvalidatedAt != nil {
		return nil, auth.ErrInvalidToken
	}
	now := time.Now().UTC()
	if !now.Before(rec.ExpiresAt) {
		return nil, auth.ErrTokenExpired
	}
	ok, err := s.tokenRepo.MarkUsed(ctx, token, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return rec, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
