// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds echo middleware for session tokens.
package middleware

import (
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/creatorhub/internal/auth"
	"codeberg.org/oliverandrich/creatorhub/internal/services/token"
	"github.com/labstack/echo/v4"
)

// TokenParser verifies a session token.
type TokenParser interface {
	Parse(tokenString string) (*token.Claims, error)
}

// RequireToken rejects requests without a valid bearer token.
func RequireToken(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c.Request())
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			claims, err := parser.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token").SetInternal(err)
			}
			setClaims(c, claims)
			return next(c)
		}
	}
}

// OptionalToken attaches claims when a valid bearer token is present and
// passes every request through.
func OptionalToken(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := bearerToken(c.Request()); raw != "" {
				if claims, err := parser.Parse(raw); err == nil {
					setClaims(c, claims)
				}
			}
			return next(c)
		}
	}
}

func setClaims(c echo.Context, claims *token.Claims) {
	ctx := auth.WithClaims(c.Request().Context(), claims)
	c.SetRequest(c.Request().WithContext(ctx))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
