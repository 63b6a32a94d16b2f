// Server runs the auth control plane HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"auth-control-plane/internal/audit"
	auditrepo "auth-control-plane/internal/audit/repository"
	authservice "auth-control-plane/internal/auth/service"
	"auth-control-plane/internal/config"
	"auth-control-plane/internal/db"
	"auth-control-plane/internal/mail"
	onetimerepo "auth-control-plane/internal/onetime/repository"
	onetimeservice "auth-control-plane/internal/onetime/service"
	"auth-control-plane/internal/policy"
	revocationrepo "auth-control-plane/internal/revocation/repository"
	"auth-control-plane/internal/security"
	"auth-control-plane/internal/server"
	sessionrepo "auth-control-plane/internal/session/repository"
	"auth-control-plane/internal/telemetry"
	"auth-control-plane/internal/telemetry/otel"
	"auth-control-plane/internal/telemetry/producer"
	userrepo "auth-control-plane/internal/user/repository"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "auth-control-plane").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if cfg.Env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("JWT_PRIVATE_KEY")
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("JWT_PUBLIC_KEY")
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTTL(), cfg.RefreshTTL(), cfg.RememberMeTTL())

	pol := policy.New(cfg.AccessTTL(), cfg.RefreshTTL(), cfg.RememberMeTTL(),
		cfg.InactivityTimeout(), cfg.MaxSessionsPerUser, cfg.InvalidateSessionsOnPasswordChange)
	hasher := security.NewHasher(cfg.BcryptCost)

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "auth-control-plane", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel")
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	var kafkaEmitter telemetry.EventEmitter
	kafkaProducer, err := producer.NewKafkaProducer(cfg.AuthEventsKafkaBrokersList(), cfg.AuthEventsKafkaTopic)
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka")
	}
	if kafkaProducer != nil {
		kafkaEmitter = kafkaProducer
		defer kafkaProducer.Close()
	}
	emitter := telemetry.Combine(kafkaEmitter, otel.NewEventEmitter(providers.LoggerProvider))

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	ledger := revocationrepo.NewPostgresRepository(conn)
	oneTimeTokens := onetimerepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), server.ClientIP, logger)

	var mailer mail.Mailer = mail.NopMailer{Log: logger}
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, logger)
	}

	tokenSvc := onetimeservice.NewTokenService(oneTimeTokens, users, sessions, ledger,
		hasher, mailer, cfg.OneTimeTokenTTL(), cfg.PublicBaseURL, auditLogger, emitter, logger)
	authSvc := authservice.NewAuthService(users, sessions, ledger, hasher, tokens, pol,
		tokenSvc, auditLogger, emitter, logger)

	srv := server.New(authSvc, tokenSvc, tokens, sessions, ledger, pol, conn, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	// Give in-flight async event emits a chance to finish before the
	// producer and exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	logger.Info().Msg("HTTP server stopped")
}
