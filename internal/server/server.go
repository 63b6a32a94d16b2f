// Package server exposes the auth control plane over HTTP: a chi router with
// request-scoped middleware, Bearer access-token authentication, and JSON
// handlers over the auth and one-time token services.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	authservice "auth-control-plane/internal/auth/service"
	"auth-control-plane/internal/policy"
	"auth-control-plane/internal/security"
	sessiondomain "auth-control-plane/internal/session/domain"
	userdomain "auth-control-plane/internal/user/domain"
)

// AuthService is the credential and session lifecycle the HTTP layer fronts.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*userdomain.User, error)
	Login(ctx context.Context, email, password, userAgent, ip string, persistent bool) (*authservice.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*authservice.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID, exceptSessionID string) (int64, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword, activeSessionID string) error
	RevokeSession(ctx context.Context, userID, sessionID string) error
	ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
}

// TokenService is the single-use token workflow the HTTP layer fronts.
type TokenService interface {
	ResendVerification(ctx context.Context, email string) error
	ConfirmEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Pinger reports storage reachability for readiness checks (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server holds the HTTP handler dependencies.
type Server struct {
	auth     AuthService
	onetime  TokenService
	tokens   *security.TokenProvider
	sessions SessionReader
	ledger   RevocationChecker
	policy   policy.Policy
	pinger   Pinger
	log      zerolog.Logger
}

// New returns a Server over the given services. pinger may be nil; readyz then
// skips the storage check.
func New(
	auth AuthService,
	onetime TokenService,
	tokens *security.TokenProvider,
	sessions SessionReader,
	ledger RevocationChecker,
	pol policy.Policy,
	pinger Pinger,
	log zerolog.Logger,
) *Server {
	return &Server{
		auth:     auth,
		onetime:  onetime,
		tokens:   tokens,
		sessions: sessions,
		ledger:   ledger,
		policy:   pol,
		pinger:   pinger,
		log:      log,
	}
}

// Router constructs the chi router containing all endpoints, wrapped in an
// otelhttp handler so every request carries a server span.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(clientIP)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/logout-all", s.handleLogoutAll)
				r.Post("/password", s.handleChangePassword)
			})
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Post("/verify-email", s.handleResendVerification)
			r.Post("/confirm-email", s.handleConfirmEmail)
			r.Post("/request-reset", s.handleRequestReset)
			r.Post("/reset-password", s.handleResetPassword)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/", s.handleListSessions)
			r.Delete("/{id}", s.handleRevokeSession)
		})
	})

	return otelhttp.NewHandler(r, "auth-control-plane")
}

// accessLog writes one structured line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
