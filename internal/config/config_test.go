// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"sub.domain.localhost", true},
		{"example.com", false},
		{"www.example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func validConfig() *Config {
	return &Config{
		Verification: VerificationConfig{Store: StoreSQL, CodeTTL: 10 * time.Minute},
		Token:        TokenConfig{Secret: "secret", TTL: time.Hour, Issuer: "creatorhub"},
		SMTP:         SMTPConfig{DeliveryMode: DeliveryLogged},
		Retry:        RetryConfig{MaxAttempts: 3},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid logged config", func(*Config) {}, ""},
		{
			name: "valid live config",
			mutate: func(c *Config) {
				c.SMTP = SMTPConfig{DeliveryMode: DeliveryLive, Host: "smtp.example.com", From: "noreply@example.com"}
			},
		},
		{"missing jwt secret", func(c *Config) { c.Token.Secret = "" }, "jwt secret is required"},
		{"zero jwt ttl", func(c *Config) { c.Token.TTL = 0 }, "jwt ttl must be positive"},
		{
			name:    "live without host",
			mutate:  func(c *Config) { c.SMTP = SMTPConfig{DeliveryMode: DeliveryLive, From: "noreply@example.com"} },
			wantErr: "smtp host is required",
		},
		{
			name:    "live without from",
			mutate:  func(c *Config) { c.SMTP = SMTPConfig{DeliveryMode: DeliveryLive, Host: "smtp.example.com"} },
			wantErr: "smtp from address is required",
		},
		{"empty delivery mode", func(c *Config) { c.SMTP.DeliveryMode = "" }, "email delivery mode must be set"},
		{"unknown delivery mode", func(c *Config) { c.SMTP.DeliveryMode = "carrier-pigeon" }, "unknown email delivery mode"},
		{"unknown store", func(c *Config) { c.Verification.Store = "memcache" }, "unknown verification store"},
		{"redis without url", func(c *Config) { c.Verification.Store = StoreRedis }, "redis url is required"},
		{"zero code ttl", func(c *Config) { c.Verification.CodeTTL = 0 }, "verification code ttl must be positive"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry max attempts must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Token.Secret = ""
	cfg.Verification.Store = StoreRedis

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret is required")
	assert.Contains(t, err.Error(), "redis url is required")
}

func runWithFlags(t *testing.T, args ...string) *Config {
	t.Helper()
	var cfg *Config
	cmd := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg = NewFromCLI(cmd)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"test", "--config", "missing.toml"}, args...)))
	return cfg
}

func TestNewFromCLIDefaults(t *testing.T) {
	cfg := runWithFlags(t)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, StoreSQL, cfg.Verification.Store)
	assert.Equal(t, 10*time.Minute, cfg.Verification.CodeTTL)
	assert.Zero(t, cfg.Verification.ResendCooldown)
	assert.Empty(t, cfg.SMTP.DeliveryMode)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.TTL)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "https://graph.instagram.com", cfg.Instagram.GraphURL)
	assert.Empty(t, cfg.Token.Secret)
}

func TestNewFromCLIDefaultsRequireDeliveryMode(t *testing.T) {
	cfg := runWithFlags(t, "--jwt-secret", "s3cret")

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "email delivery mode must be set")

	cfg = runWithFlags(t, "--jwt-secret", "s3cret", "--email-delivery", "logged")
	assert.NoError(t, cfg.Validate())
}

func TestNewFromCLIFlags(t *testing.T) {
	cfg := runWithFlags(t,
		"--port", "9000",
		"--email-delivery", "LIVE",
		"--smtp-host", "smtp.example.com",
		"--verification-resend-cooldown", "30s",
		"--jwt-secret", "s3cret",
		"--instagram-scopes", "instagram_business_basic,instagram_business_content_publish",
	)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, DeliveryLive, cfg.SMTP.DeliveryMode)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 30*time.Second, cfg.Verification.ResendCooldown)
	assert.Equal(t, "s3cret", cfg.Token.Secret)
	assert.Equal(t, []string{"instagram_business_basic", "instagram_business_content_publish"}, cfg.Instagram.Scopes)
}

func TestNewFromCLIEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("VERIFICATION_STORE", "redis")

	cfg := runWithFlags(t)

	assert.Equal(t, "from-env", cfg.Token.Secret)
	assert.Equal(t, StoreRedis, cfg.Verification.Store)
}
