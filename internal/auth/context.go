// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/creatorhub/internal/ctxkeys"
	"codeberg.org/oliverandrich/creatorhub/internal/services/token"
)

// WithClaims returns a context carrying the session claims.
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, ctxkeys.Claims{}, claims)
}

// GetClaims returns the session claims from the context, or nil if not authenticated.
func GetClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(ctxkeys.Claims{}).(*token.Claims); ok {
		return claims
	}
	return nil
}

// IsAuthenticated returns true if the context has verified session claims.
func IsAuthenticated(ctx context.Context) bool {
	return GetClaims(ctx) != nil
}
