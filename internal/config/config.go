// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "acp-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "acp-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// AccessTTLRaw is the access token lifetime (e.g. "1h").
	AccessTTLRaw string `mapstructure:"ACCESS_TTL"`
	// RefreshTTLRaw is the refresh token lifetime (e.g. "720h" for 30 days).
	RefreshTTLRaw string `mapstructure:"REFRESH_TTL"`
	// RememberMeTTLRaw is the refresh token lifetime for persistent ("remember me") sessions. Must be >= REFRESH_TTL.
	RememberMeTTLRaw string `mapstructure:"REMEMBER_ME_TTL"`
	// InactivityTimeoutRaw is how long a session may stay idle before it is considered inactive.
	InactivityTimeoutRaw string `mapstructure:"INACTIVITY_TIMEOUT"`
	// MaxSessionsPerUser caps concurrent sessions per user; oldest-by-activity sessions are evicted past the cap.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// InvalidateSessionsOnPasswordChange controls whether a password change logs out every other session.
	InvalidateSessionsOnPasswordChange bool `mapstructure:"INVALIDATE_SESSIONS_ON_PASSWORD_CHANGE"`
	// LedgerCleanupIntervalRaw is how often the revocation ledger purge runs (e.g. "1h").
	LedgerCleanupIntervalRaw string `mapstructure:"LEDGER_CLEANUP_INTERVAL"`
	// OneTimeTokenCleanupIntervalRaw is how often the one-time token purge runs (e.g. "12h").
	OneTimeTokenCleanupIntervalRaw string `mapstructure:"ONE_TIME_TOKEN_CLEANUP_INTERVAL"`
	// OneTimeTokenTTLRaw is the lifetime of verification and reset tokens (e.g. "24h").
	OneTimeTokenTTLRaw string `mapstructure:"ONE_TIME_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SMTPHost enables outbound mail when set; verification/reset mail is skipped (logged) otherwise.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASS"`
	// MailFrom is the From address on verification/reset mail.
	MailFrom string `mapstructure:"MAIL_FROM"`
	// PublicBaseURL is the externally reachable base URL used in verification/reset links.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// AuthEventsKafkaBrokers is a comma-separated list of Kafka broker addresses; auth events are emitted when set.
	AuthEventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsKafkaTopic is the Kafka topic for auth events (default acp-auth-events).
	AuthEventsKafkaTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker's event forwarder.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes consumed auth events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "acp-auth")
	v.SetDefault("JWT_AUDIENCE", "acp-api")
	v.SetDefault("ACCESS_TTL", "1h")
	v.SetDefault("REFRESH_TTL", "720h")      // 30d
	v.SetDefault("REMEMBER_ME_TTL", "2160h") // 90d
	v.SetDefault("INACTIVITY_TIMEOUT", "336h")
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("INVALIDATE_SESSIONS_ON_PASSWORD_CHANGE", true)
	v.SetDefault("LEDGER_CLEANUP_INTERVAL", "1h")
	v.SetDefault("ONE_TIME_TOKEN_CLEANUP_INTERVAL", "12h")
	v.SetDefault("ONE_TIME_TOKEN_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "acp-auth-events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_GROUP_ID", "acp-auth-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.MaxSessionsPerUser < 1 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must be at least 1")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.RememberMeTTL() < cfg.RefreshTTL() {
		return nil, errors.New("config: REMEMBER_ME_TTL must be >= REFRESH_TTL")
	}

	return &cfg, nil
}

// AccessTTL parses ACCESS_TTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.AccessTTLRaw, time.Hour)
}

// RefreshTTL parses REFRESH_TTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.RefreshTTLRaw, 720*time.Hour)
}

// RememberMeTTL parses REMEMBER_ME_TTL as a time.Duration. Returns 2160h if unset or invalid.
func (c *Config) RememberMeTTL() time.Duration {
	return durationOr(c.RememberMeTTLRaw, 2160*time.Hour)
}

// InactivityTimeout parses INACTIVITY_TIMEOUT as a time.Duration. Returns 336h if unset or invalid.
func (c *Config) InactivityTimeout() time.Duration {
	return durationOr(c.InactivityTimeoutRaw, 336*time.Hour)
}

// LedgerCleanupInterval parses LEDGER_CLEANUP_INTERVAL. Returns 1h if unset or invalid.
func (c *Config) LedgerCleanupInterval() time.Duration {
	return durationOr(c.LedgerCleanupIntervalRaw, time.Hour)
}

// OneTimeTokenCleanupInterval parses ONE_TIME_TOKEN_CLEANUP_INTERVAL. Returns 12h if unset or invalid.
func (c *Config) OneTimeTokenCleanupInterval() time.Duration {
	return durationOr(c.OneTimeTokenCleanupIntervalRaw, 12*time.Hour)
}

// OneTimeTokenTTL parses ONE_TIME_TOKEN_TTL. Returns 24h if unset or invalid.
func (c *Config) OneTimeTokenTTL() time.Duration {
	return durationOr(c.OneTimeTokenTTLRaw, 24*time.Hour)
}

// AuthEventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event emission is enabled (non-empty list) and to create the producer.
func (c *Config) AuthEventsKafkaBrokersList() []string {
	if c == nil || c.AuthEventsKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AuthEventsKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
