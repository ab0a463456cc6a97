// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// OAuthCredential is a third-party access token held on behalf of a user.
type OAuthCredential struct { //nolint:govet // fieldalignment: readability over optimization
	UserID         int64     `db:"user_id" json:"-"`
	Provider       string    `db:"provider" json:"provider"`
	ProviderUserID string    `db:"provider_user_id" json:"providerUserId"`
	Username       string    `db:"username" json:"username"`
	AccountType    string    `db:"account_type" json:"accountType"`
	AccessToken    string    `db:"access_token" json:"-"`
	TokenType      string    `db:"token_type" json:"tokenType"`
	ExpiresAt      time.Time `db:"expires_at" json:"expiresAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Stale reports whether the token must be refreshed or re-authorized.
func (c *OAuthCredential) Stale(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
