// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the JSON HTTP API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/services/auth"
	"codeberg.org/oliverandrich/creatorhub/internal/services/instagram"
	"codeberg.org/oliverandrich/creatorhub/internal/services/oauthstate"
	"github.com/labstack/echo/v4"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	db          Pinger
	auth        *auth.Service
	instagram   *instagram.Client
	state       *oauthstate.Manager
	credentials CredentialStore
}

// New creates a new Handlers instance. state and credentials may be nil,
// which disables state checks and credential persistence respectively.
func New(db Pinger, authService *auth.Service, ig *instagram.Client, state *oauthstate.Manager, credentials CredentialStore) *Handlers {
	return &Handlers{
		db:          db,
		auth:        authService,
		instagram:   ig,
		state:       state,
		credentials: credentials,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Error("health_check_failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
