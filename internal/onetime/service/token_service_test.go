package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"auth-control-plane/internal/audit"
	"auth-control-plane/internal/auth"
	onetimedomain "auth-control-plane/internal/onetime/domain"
	revocationdomain "auth-control-plane/internal/revocation/domain"
	"auth-control-plane/internal/security"
	sessiondomain "auth-control-plane/internal/session/domain"
	userdomain "auth-control-plane/internal/user/domain"
)

type memTokenRepo struct {
	mu sync.Mutex
	m  map[string]*onetimedomain.Token
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{m: map[string]*onetimedomain.Token{}}
}

func (r *memTokenRepo) Create(ctx context.Context, t *onetimedomain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t2 := *t
	r.m[t.Token] = &t2
	return nil
}

func (r *memTokenRepo) GetByToken(ctx context.Context, token string) (*onetimedomain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[token]; ok {
		t2 := *t
		return &t2, nil
	}
	return nil, nil
}

func (r *memTokenRepo) MarkUsed(ctx context.Context, token string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[token]
	if !ok || t.UsedAt != nil || t.InvalidatedAt != nil {
		return false, nil
	}
	t.UsedAt = &at
	return true, nil
}

func (r *memTokenRepo) InvalidateAllForUser(ctx context.Context, userID string, purpose onetimedomain.Purpose, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.m {
		if t.UserID == userID && t.Purpose == purpose && t.UsedAt == nil && t.InvalidatedAt == nil {
			t.InvalidatedAt = &at
			n++
		}
	}
	return n, nil
}

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (r *memUserRepo) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok && u.EmailVerifiedAt == nil {
		u.EmailVerifiedAt = &at
	}
	return nil
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: map[string]*sessiondomain.Session{}}
}

func (r *memSessionRepo) add(s *sessiondomain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.ID] = s
}

func (r *memSessionRepo) ListByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.UserID == userID {
			s2 := *s
			out = append(out, &s2)
		}
	}
	return out, nil
}

func (r *memSessionRepo) DeleteAllByUser(ctx context.Context, userID, exceptID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.m {
		if s.UserID == userID && id != exceptID {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

type memLedger struct {
	mu sync.Mutex
	m  map[string]*revocationdomain.RevokedToken
}

func newMemLedger() *memLedger {
	return &memLedger{m: map[string]*revocationdomain.RevokedToken{}}
}

func (r *memLedger) Upsert(ctx context.Context, t *revocationdomain.RevokedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t2 := *t
	r.m[t.Jti] = &t2
	return nil
}

type sentMail struct {
	to       string
	template string
	vars     map[string]string
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	sendErr error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, templateName string, vars map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMail{to: to, template: templateName, vars: vars})
	return nil
}

type testEnv struct {
	svc      *TokenService
	tokens   *memTokenRepo
	users    *memUserRepo
	sessions *memSessionRepo
	ledger   *memLedger
	mailer   *fakeMailer
	hasher   *security.Hasher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens := newMemTokenRepo()
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	ledger := newMemLedger()
	mailer := &fakeMailer{}
	hasher := security.NewHasher(4)
	svc := NewTokenService(tokens, users, sessions, ledger, hasher, mailer,
		24*time.Hour, "https://app.example.com", audit.Nop{}, nil, zerolog.Nop())
	return &testEnv{svc: svc, tokens: tokens, users: users, sessions: sessions, ledger: ledger, mailer: mailer, hasher: hasher}
}

func (e *testEnv) seedUser(t *testing.T, id, email string) *userdomain.User {
	t.Helper()
	hash, err := e.hasher.Hash([]byte("Old-Passw0rd!!"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &userdomain.User{
		ID:           id,
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		Status:       userdomain.UserStatusActive,
	}
	e.users.mu.Lock()
	e.users.byID[id] = u
	e.users.mu.Unlock()
	return u
}

func (e *testEnv) liveToken(t *testing.T, userID string, purpose onetimedomain.Purpose) *onetimedomain.Token {
	t.Helper()
	e.tokens.mu.Lock()
	defer e.tokens.mu.Unlock()
	var found *onetimedomain.Token
	for _, tok := range e.tokens.m {
		if tok.UserID == userID && tok.Purpose == purpose && tok.UsedAt == nil && tok.InvalidatedAt == nil {
			if found != nil {
				t.Fatal("more than one live token for purpose")
			}
			tok2 := *tok
			found = &tok2
		}
	}
	if found == nil {
		t.Fatal("no live token found")
	}
	return found
}

func TestRequestEmailVerification_IssuesAndMails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")

	if err := env.svc.RequestEmailVerification(ctx, "u1", "ann@example.com"); err != nil {
		t.Fatalf("RequestEmailVerification: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)
	if len(token.Token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token.Token))
	}
	if len(env.mailer.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(env.mailer.sent))
	}
	m := env.mailer.sent[0]
	if m.to != "ann@example.com" || m.template != "email_verification" {
		t.Errorf("mail = %+v", m)
	}
	if !strings.Contains(m.vars["Link"], token.Token) {
		t.Errorf("link %q does not carry the token", m.vars["Link"])
	}
}

func TestRequestEmailVerification_SupersedesPriorToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")

	if err := env.svc.RequestEmailVerification(ctx, "u1", "ann@example.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	first := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)
	if err := env.svc.RequestEmailVerification(ctx, "u1", "ann@example.com"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	second := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)
	if first.Token == second.Token {
		t.Fatal("second request must mint a new token")
	}

	// The superseded token is dead.
	if err := env.svc.ConfirmEmail(ctx, first.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("superseded token err = %v, want ErrInvalidToken", err)
	}
	// The fresh one works exactly once.
	if err := env.svc.ConfirmEmail(ctx, second.Token); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	if err := env.svc.ConfirmEmail(ctx, second.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("reused token err = %v, want ErrInvalidToken", err)
	}
}

func TestResendVerification_UnknownEmailSilent(t *testing.T) {
	env := newTestEnv(t)

	if err := env.svc.ResendVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	if len(env.mailer.sent) != 0 {
		t.Errorf("mail sent for unknown email")
	}
}

func TestResendVerification_AlreadyVerifiedIsNoop(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "u1", "ann@example.com")
	now := time.Now().UTC()
	u.EmailVerifiedAt = &now

	if err := env.svc.ResendVerification(context.Background(), "Ann@Example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	if len(env.mailer.sent) != 0 {
		t.Errorf("mail sent for verified account")
	}
}

func TestResendVerification_IssuesForUnverified(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "ann@example.com")

	if err := env.svc.ResendVerification(context.Background(), "ann@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	tok := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)
	if len(env.mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(env.mailer.sent))
	}
	if !strings.Contains(env.mailer.sent[0].vars["Link"], tok.Token) {
		t.Errorf("mail link %q does not carry the token", env.mailer.sent[0].vars["Link"])
	}
}

func TestRequestEmailVerification_MailFailureKeepsToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")
	env.mailer.sendErr = errors.New("smtp down")

	if err := env.svc.RequestEmailVerification(ctx, "u1", "ann@example.com"); err != nil {
		t.Fatalf("RequestEmailVerification: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)
	if err := env.svc.ConfirmEmail(ctx, token.Token); err != nil {
		t.Errorf("token must stay consumable after mail failure: %v", err)
	}
}

func TestConfirmEmail_MarksUserVerified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")
	if err := env.svc.RequestEmailVerification(ctx, "u1", "ann@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)

	if err := env.svc.ConfirmEmail(ctx, token.Token); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	user, _ := env.users.GetByID(ctx, "u1")
	if !user.EmailVerified() {
		t.Error("user should be verified")
	}
}

func TestConfirmEmail_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")
	if err := env.svc.RequestEmailVerification(ctx, "u1", "ann@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)
	env.tokens.mu.Lock()
	env.tokens.m[token.Token].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	env.tokens.mu.Unlock()

	if err := env.svc.ConfirmEmail(ctx, token.Token); !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	user, _ := env.users.GetByID(ctx, "u1")
	if user.EmailVerified() {
		t.Error("expired token must not verify the user")
	}
}

func TestConfirmEmail_UnknownToken(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.ConfirmEmail(context.Background(), "nope"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestConfirmEmail_WrongPurpose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")
	if err := env.svc.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposePasswordReset)

	if err := env.svc.ConfirmEmail(ctx, token.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestConfirmEmail_ConcurrentSingleConsumer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")
	if err := env.svc.RequestEmailVerification(ctx, "u1", "ann@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposeEmailVerification)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.svc.ConfirmEmail(ctx, token.Token)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestRequestPasswordReset_UnknownEmailSilent(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("err = %v, want nil for unknown email", err)
	}
	if len(env.mailer.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(env.mailer.sent))
	}
}

func TestResetPassword_EndsEverySession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")
	env.sessions.add(&sessiondomain.Session{ID: "s1", UserID: "u1", RefreshJti: "jti-1", ExpiresAt: time.Now().Add(time.Hour)})
	env.sessions.add(&sessiondomain.Session{ID: "s2", UserID: "u1", RefreshJti: "jti-2", ExpiresAt: time.Now().Add(time.Hour)})

	if err := env.svc.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposePasswordReset)

	const newPassword = "Fresh-Secret-9!"
	if err := env.svc.ResetPassword(ctx, token.Token, newPassword); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	user, _ := env.users.GetByID(ctx, "u1")
	if err := env.hasher.Compare(user.PasswordHash, []byte(newPassword)); err != nil {
		t.Error("new password hash not stored")
	}
	remaining, _ := env.sessions.ListByUser(ctx, "u1")
	if len(remaining) != 0 {
		t.Errorf("sessions remaining = %d, want 0", len(remaining))
	}
	for _, jti := range []string{"jti-1", "jti-2"} {
		entry := env.ledger.m[jti]
		if entry == nil || entry.Reason != revocationdomain.ReasonPasswordReset {
			t.Errorf("jti %s not revoked with password_reset", jti)
		}
	}
	// A reset token is single-use.
	if err := env.svc.ResetPassword(ctx, token.Token, newPassword); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("reused token err = %v, want ErrInvalidToken", err)
	}
}

func TestResetPassword_WeakPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "u1", "ann@example.com")
	if err := env.svc.RequestPasswordReset(ctx, "ann@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	token := env.liveToken(t, "u1", onetimedomain.PurposePasswordReset)

	if err := env.svc.ResetPassword(ctx, token.Token, "weak"); !errors.Is(err, auth.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	// The token is not consumed by a failed validation.
	if err := env.svc.ResetPassword(ctx, token.Token, "Fresh-Secret-9!"); err != nil {
		t.Errorf("token should survive failed validation: %v", err)
	}
}
