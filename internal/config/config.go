// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var (
	configPath = "config.toml"
	configFile = altsrc.NewStringPtrSourcer(&configPath)
)

// Delivery modes for outbound email.
const (
	DeliveryLive   = "live"
	DeliveryLogged = "logged"
)

// Verification code store backends.
const (
	StoreSQL   = "sql"
	StoreRedis = "redis"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server       ServerConfig
	Log          LogConfig
	Database     DatabaseConfig
	Verification VerificationConfig
	Token        TokenConfig
	SMTP         SMTPConfig
	Retry        RetryConfig
	Instagram    InstagramConfig
	OAuthState   OAuthStateConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host          string
	Port          int
	MaxBodySize   int      // in MB
	CORSOrigins   []string // frontend origin allow-list
	AuthRateLimit float64  // requests per second per IP on /api/auth, 0 disables
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type VerificationConfig struct { //nolint:govet // fieldalignment not critical
	Store          string // sql, redis
	RedisURL       string
	CodeTTL        time.Duration
	ResendCooldown time.Duration // 0 disables
	PurgeInterval  time.Duration
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	FromName     string
	TLS          bool
	DeliveryMode string // live, logged
	AdminEmail   string // receives new-registration notifications, optional
	Timeout      time.Duration
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type InstagramConfig struct { //nolint:govet // fieldalignment not critical
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	GraphURL     string
	Scopes       []string
	Timeout      time.Duration
}

type OAuthStateConfig struct {
	CookieName string
	MaxAge     int    // seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

func NewFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Server: ServerConfig{
			Host:          cmd.String("host"),
			Port:          int(cmd.Int("port")),
			MaxBodySize:   int(cmd.Int("max-body-size")),
			CORSOrigins:   cmd.StringSlice("cors-origins"),
			AuthRateLimit: cmd.Float("auth-rate-limit"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Verification: VerificationConfig{
			Store:          cmd.String("verification-store"),
			RedisURL:       cmd.String("redis-url"),
			CodeTTL:        cmd.Duration("verification-code-ttl"),
			ResendCooldown: cmd.Duration("verification-resend-cooldown"),
			PurgeInterval:  cmd.Duration("verification-purge-interval"),
		},
		Token: TokenConfig{
			Secret: cmd.String("jwt-secret"),
			TTL:    cmd.Duration("jwt-ttl"),
			Issuer: cmd.String("jwt-issuer"),
		},
		SMTP: SMTPConfig{
			Host:         cmd.String("smtp-host"),
			Port:         int(cmd.Int("smtp-port")),
			Username:     cmd.String("smtp-username"),
			Password:     cmd.String("smtp-password"),
			From:         cmd.String("smtp-from"),
			FromName:     cmd.String("smtp-from-name"),
			TLS:          cmd.Bool("smtp-tls"),
			DeliveryMode: strings.ToLower(cmd.String("email-delivery")),
			AdminEmail:   cmd.String("admin-email"),
			Timeout:      cmd.Duration("smtp-timeout"),
		},
		Retry: RetryConfig{
			MaxAttempts: int(cmd.Int("retry-max-attempts")),
			BaseDelay:   cmd.Duration("retry-base-delay"),
			MaxDelay:    cmd.Duration("retry-max-delay"),
		},
		Instagram: InstagramConfig{
			ClientID:     cmd.String("instagram-client-id"),
			ClientSecret: cmd.String("instagram-client-secret"),
			RedirectURI:  cmd.String("instagram-redirect-uri"),
			AuthURL:      cmd.String("instagram-auth-url"),
			TokenURL:     cmd.String("instagram-token-url"),
			GraphURL:     cmd.String("instagram-graph-url"),
			Scopes:       cmd.StringSlice("instagram-scopes"),
			Timeout:      cmd.Duration("instagram-timeout"),
		},
		OAuthState: OAuthStateConfig{
			CookieName: cmd.String("oauth-state-cookie-name"),
			MaxAge:     int(cmd.Int("oauth-state-max-age")),
			HashKey:    cmd.String("oauth-state-hash-key"),
			BlockKey:   cmd.String("oauth-state-block-key"),
		},
	}
}

// Validate reports configuration that would make the server misbehave at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.Token.Secret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Token.TTL <= 0 {
		errs = append(errs, errors.New("jwt ttl must be positive"))
	}

	switch c.SMTP.DeliveryMode {
	case DeliveryLive:
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("smtp host is required when email delivery is live"))
		}
		if c.SMTP.From == "" {
			errs = append(errs, errors.New("smtp from address is required when email delivery is live"))
		}
	case DeliveryLogged:
	case "":
		errs = append(errs, fmt.Errorf("email delivery mode must be set (%s or %s)", DeliveryLive, DeliveryLogged))
	default:
		errs = append(errs, fmt.Errorf("unknown email delivery mode %q (want %s or %s)", c.SMTP.DeliveryMode, DeliveryLive, DeliveryLogged))
	}

	switch c.Verification.Store {
	case StoreSQL:
	case StoreRedis:
		if c.Verification.RedisURL == "" {
			errs = append(errs, errors.New("redis url is required when verification store is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown verification store %q (want %s or %s)", c.Verification.Store, StoreSQL, StoreRedis))
	}

	if c.Verification.CodeTTL <= 0 {
		errs = append(errs, errors.New("verification code ttl must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func src(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: src("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: src("PORT", "server.port"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: src("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringSliceFlag{
			Name:    "cors-origins",
			Value:   []string{"http://localhost:3000"},
			Usage:   "Frontend origins allowed by CORS",
			Sources: src("CORS_ORIGINS", "server.cors_origins"),
		},
		&cli.FloatFlag{
			Name:    "auth-rate-limit",
			Value:   0,
			Usage:   "Requests per second per IP on /api/auth (0 disables)",
			Sources: src("AUTH_RATE_LIMIT", "server.auth_rate_limit"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: src("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: src("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: src("DATABASE_DSN", "database.dsn"),
		},
		// Verification codes
		&cli.StringFlag{
			Name:    "verification-store",
			Value:   StoreSQL,
			Usage:   "Verification code store (sql, redis)",
			Sources: src("VERIFICATION_STORE", "verification.store"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis verification store",
			Sources: src("REDIS_URL", "verification.redis_url"),
		},
		&cli.DurationFlag{
			Name:    "verification-code-ttl",
			Value:   10 * time.Minute,
			Usage:   "Lifetime of a verification code",
			Sources: src("VERIFICATION_CODE_TTL", "verification.code_ttl"),
		},
		&cli.DurationFlag{
			Name:    "verification-resend-cooldown",
			Value:   0,
			Usage:   "Minimum time between resends for one email (0 disables)",
			Sources: src("VERIFICATION_RESEND_COOLDOWN", "verification.resend_cooldown"),
		},
		&cli.DurationFlag{
			Name:    "verification-purge-interval",
			Value:   15 * time.Minute,
			Usage:   "How often expired verification codes are purged",
			Sources: src("VERIFICATION_PURGE_INTERVAL", "verification.purge_interval"),
		},
		// Session tokens
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "Secret used to sign session tokens",
			Sources: src("JWT_SECRET", "token.secret"),
		},
		&cli.DurationFlag{
			Name:    "jwt-ttl",
			Value:   7 * 24 * time.Hour,
			Usage:   "Session token lifetime",
			Sources: src("JWT_TTL", "token.ttl"),
		},
		&cli.StringFlag{
			Name:    "jwt-issuer",
			Value:   "creatorhub",
			Usage:   "Session token issuer",
			Sources: src("JWT_ISSUER", "token.issuer"),
		},
		// SMTP
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: src("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: src("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: src("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: src("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: src("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Creatorhub",
			Usage:   "Sender display name",
			Sources: src("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: src("SMTP_TLS", "smtp.tls"),
		},
		&cli.StringFlag{
			Name:    "email-delivery",
			Usage:   "Email delivery mode (live, logged), required",
			Sources: src("EMAIL_DELIVERY", "smtp.delivery_mode"),
		},
		&cli.StringFlag{
			Name:    "admin-email",
			Usage:   "Address notified about new registrations",
			Sources: src("ADMIN_EMAIL", "smtp.admin_email"),
		},
		&cli.DurationFlag{
			Name:    "smtp-timeout",
			Value:   15 * time.Second,
			Usage:   "Timeout for one SMTP delivery attempt",
			Sources: src("SMTP_TIMEOUT", "smtp.timeout"),
		},
		// Retry policy for outbound calls
		&cli.IntFlag{
			Name:    "retry-max-attempts",
			Value:   3,
			Usage:   "Maximum attempts for outbound email and OAuth calls",
			Sources: src("RETRY_MAX_ATTEMPTS", "retry.max_attempts"),
		},
		&cli.DurationFlag{
			Name:    "retry-base-delay",
			Value:   500 * time.Millisecond,
			Usage:   "Initial backoff between attempts",
			Sources: src("RETRY_BASE_DELAY", "retry.base_delay"),
		},
		&cli.DurationFlag{
			Name:    "retry-max-delay",
			Value:   5 * time.Second,
			Usage:   "Maximum backoff between attempts",
			Sources: src("RETRY_MAX_DELAY", "retry.max_delay"),
		},
		// Instagram OAuth
		&cli.StringFlag{
			Name:    "instagram-client-id",
			Usage:   "Instagram app client id",
			Sources: src("INSTAGRAM_CLIENT_ID", "instagram.client_id"),
		},
		&cli.StringFlag{
			Name:    "instagram-client-secret",
			Usage:   "Instagram app client secret",
			Sources: src("INSTAGRAM_CLIENT_SECRET", "instagram.client_secret"),
		},
		&cli.StringFlag{
			Name:    "instagram-redirect-uri",
			Usage:   "Default OAuth redirect URI",
			Sources: src("INSTAGRAM_REDIRECT_URI", "instagram.redirect_uri"),
		},
		&cli.StringFlag{
			Name:    "instagram-auth-url",
			Value:   "https://www.instagram.com/oauth/authorize",
			Usage:   "Instagram authorization endpoint",
			Sources: src("INSTAGRAM_AUTH_URL", "instagram.auth_url"),
		},
		&cli.StringFlag{
			Name:    "instagram-token-url",
			Value:   "https://api.instagram.com/oauth/access_token",
			Usage:   "Instagram short-lived token endpoint",
			Sources: src("INSTAGRAM_TOKEN_URL", "instagram.token_url"),
		},
		&cli.StringFlag{
			Name:    "instagram-graph-url",
			Value:   "https://graph.instagram.com",
			Usage:   "Instagram Graph API base URL",
			Sources: src("INSTAGRAM_GRAPH_URL", "instagram.graph_url"),
		},
		&cli.StringSliceFlag{
			Name:    "instagram-scopes",
			Value:   []string{"instagram_business_basic"},
			Usage:   "OAuth scopes requested at authorization",
			Sources: src("INSTAGRAM_SCOPES", "instagram.scopes"),
		},
		&cli.DurationFlag{
			Name:    "instagram-timeout",
			Value:   10 * time.Second,
			Usage:   "Timeout for one Instagram API call",
			Sources: src("INSTAGRAM_TIMEOUT", "instagram.timeout"),
		},
		// OAuth state cookie
		&cli.StringFlag{
			Name:    "oauth-state-cookie-name",
			Value:   "_oauth_state",
			Usage:   "OAuth state cookie name",
			Sources: src("OAUTH_STATE_COOKIE_NAME", "oauth_state.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "oauth-state-max-age",
			Value:   600,
			Usage:   "OAuth state cookie max age in seconds",
			Sources: src("OAUTH_STATE_MAX_AGE", "oauth_state.max_age"),
		},
		&cli.StringFlag{
			Name:    "oauth-state-hash-key",
			Usage:   "OAuth state hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: src("OAUTH_STATE_HASH_KEY", "oauth_state.hash_key"),
		},
		&cli.StringFlag{
			Name:    "oauth-state-block-key",
			Usage:   "OAuth state block key for encryption (32-byte hex, optional)",
			Sources: src("OAUTH_STATE_BLOCK_KEY", "oauth_state.block_key"),
		},
	}
}
