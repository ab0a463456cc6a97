// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"codeberg.org/oliverandrich/creatorhub/internal/database"
	"codeberg.org/oliverandrich/creatorhub/internal/handlers"
	"codeberg.org/oliverandrich/creatorhub/internal/i18n"
	authmw "codeberg.org/oliverandrich/creatorhub/internal/middleware"
	"codeberg.org/oliverandrich/creatorhub/internal/services/email"
	"codeberg.org/oliverandrich/creatorhub/internal/services/verification"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	SetupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"verification_store", cfg.Verification.Store,
	)

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	services, err := NewServices(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer services.Close()

	slog.Info("services ready",
		"email_delivery", services.Email.Mode(),
		"session_ttl", services.Tokens.TTL(),
	)
	if services.Email.Mode() == email.Logged && !config.IsLocalhost(cfg.Server.Host) {
		slog.Warn("email delivery is logged only, verification codes will not reach users", "host", cfg.Server.Host)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if purger := services.Purger(); purger != nil {
		go verification.RunJanitor(ctx, purger, cfg.Verification.PurgeInterval)
	}

	e := New(cfg, services)
	return startWithGracefulShutdown(ctx, e, cfg)
}

// New builds the echo instance with middleware and routes.
func New(cfg *config.Config, s *Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.HTTPErrorHandler

	setupMiddleware(e, cfg)
	setupRoutes(e, cfg, s)
	return e
}

func setupRoutes(e *echo.Echo, cfg *config.Config, s *Services) {
	h := handlers.New(s.DB, s.Auth, s.Instagram, s.State, s.Repo)
	requireToken := authmw.RequireToken(s.Tokens)

	e.GET("/health", h.Health)

	api := e.Group("/api/auth")
	if cfg.Server.AuthRateLimit > 0 {
		api.Use(authRateLimiter(cfg.Server.AuthRateLimit))
	}
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/resend-verification", h.ResendVerification)
	api.POST("/verify", h.Verify)
	api.GET("/me", h.Me, requireToken)
	api.GET("/me/instagram", h.InstagramCredential, requireToken)

	ig := e.Group("/instagram/oauth")
	ig.GET("/authorize", h.InstagramAuthorize)
	ig.POST("/token", h.InstagramToken, authmw.OptionalToken(s.Tokens))
	ig.POST("/refresh", h.InstagramRefresh)
	ig.GET("/validate", h.InstagramValidate)
	ig.POST("/revoke", h.InstagramRevoke)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("shutting down server", "reason", ctx.Err())
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
