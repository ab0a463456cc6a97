// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"codeberg.org/oliverandrich/creatorhub/internal/repository"
	"codeberg.org/oliverandrich/creatorhub/internal/retry"
	"codeberg.org/oliverandrich/creatorhub/internal/services/auth"
	"codeberg.org/oliverandrich/creatorhub/internal/services/email"
	"codeberg.org/oliverandrich/creatorhub/internal/services/instagram"
	"codeberg.org/oliverandrich/creatorhub/internal/services/oauthstate"
	"codeberg.org/oliverandrich/creatorhub/internal/services/token"
	"codeberg.org/oliverandrich/creatorhub/internal/services/verification"
	"github.com/redis/go-redis/v9"
	"github.com/vinovest/sqlx"
)

// Services holds the wired application services.
type Services struct {
	DB        *sqlx.DB
	Repo      *repository.Repository
	Codes     verification.Store
	Email     *email.Service
	Tokens    *token.Service
	Auth      *auth.Service
	Instagram *instagram.Client
	State     *oauthstate.Manager

	redis *redis.Client
}

// NewServices wires all services for cfg on top of db.
func NewServices(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*Services, error) {
	s := &Services{
		DB:   db,
		Repo: repository.New(db),
	}

	switch cfg.Verification.Store {
	case config.StoreRedis:
		client, err := verification.DialRedis(ctx, cfg.Verification.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.Codes = verification.NewRedisStore(client)
	default:
		s.Codes = s.Repo
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	var err error
	s.Email, err = email.NewService(&cfg.SMTP, policy, email.WithCodeTTL(cfg.Verification.CodeTTL))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set up email: %w", err)
	}

	s.Tokens, err = token.NewService(cfg.Token.Secret, cfg.Token.TTL, cfg.Token.Issuer)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to set up session tokens: %w", err)
	}

	s.Auth = auth.NewService(s.Repo, s.Codes, s.Email, s.Tokens, auth.Config{
		CodeTTL:        cfg.Verification.CodeTTL,
		ResendCooldown: cfg.Verification.ResendCooldown,
	})

	s.Instagram = instagram.NewClient(&cfg.Instagram, policy)
	if !s.Instagram.Configured() {
		slog.Warn("instagram_oauth_disabled", "reason", "client id or secret missing")
	}

	secure := strings.HasPrefix(cfg.Instagram.RedirectURI, "https://")
	s.State, err = oauthstate.NewManager(&cfg.OAuthState, secure)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Purger returns the store that needs periodic purging, or nil when the
// backend expires codes itself.
func (s *Services) Purger() verification.Purger {
	if p, ok := s.Codes.(verification.Purger); ok {
		return p
	}
	return nil
}

// Close releases connections owned by the services. The database is closed
// by its owner.
func (s *Services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("failed to close redis", "error", err)
		}
	}
}
