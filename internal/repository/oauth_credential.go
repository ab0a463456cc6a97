// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/models"
)

// UpsertOAuthCredential stores cred as the user's credential for its provider.
func (r *Repository) UpsertOAuthCredential(ctx context.Context, cred *models.OAuthCredential) error {
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO oauth_credentials (user_id, provider, provider_user_id, username,
			account_type, access_token, token_type, expires_at, updated_at)
		VALUES (:user_id, :provider, :provider_user_id, :username,
			:account_type, :access_token, :token_type, :expires_at, :updated_at)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_user_id = excluded.provider_user_id,
			username = excluded.username,
			account_type = excluded.account_type,
			access_token = excluded.access_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`, cred)
	return wrapError(err)
}

// GetOAuthCredential returns the user's credential for provider.
func (r *Repository) GetOAuthCredential(ctx context.Context, userID int64, provider string) (*models.OAuthCredential, error) {
	var cred models.OAuthCredential
	err := r.db.GetContext(ctx, &cred, `
		SELECT user_id, provider, provider_user_id, username, account_type,
			access_token, token_type, expires_at, updated_at
		FROM oauth_credentials WHERE user_id = ? AND provider = ?`, userID, provider)
	if err != nil {
		return nil, wrapError(err)
	}
	return &cred, nil
}

// ReplaceOAuthToken swaps a refreshed access token in place of oldToken.
// It returns ErrNotFound when no stored credential holds oldToken.
func (r *Repository) ReplaceOAuthToken(ctx context.Context, provider, oldToken, newToken string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE oauth_credentials
		SET access_token = ?, expires_at = ?, updated_at = ?
		WHERE provider = ? AND access_token = ?`,
		newToken, expiresAt.UTC(), time.Now().UTC(), provider, oldToken)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
