// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"codeberg.org/oliverandrich/creatorhub/internal/services/verification"
)

var _ verification.Store = (*Repository)(nil)

// PutCode stores code, replacing any pending code for the same email.
func (r *Repository) PutCode(ctx context.Context, code *models.VerificationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_codes (email, code, issued_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			code = excluded.code,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at`,
		verification.NormalizeEmail(code.Email), code.Code, code.IssuedAt.UTC(), code.ExpiresAt.UTC())
	return err
}

// GetCode returns the pending code for email.
func (r *Repository) GetCode(ctx context.Context, email string) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := r.db.GetContext(ctx, &code, `
		SELECT email, code, issued_at, expires_at
		FROM verification_codes WHERE email = ?`, verification.NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verification.ErrNoPendingCode
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// ConsumeCode deletes the pending code for email if it matches and has not
// expired at now. The read and delete run in one immediate transaction.
func (r *Repository) ConsumeCode(ctx context.Context, email, code string, now time.Time) error {
	email = verification.NormalizeEmail(email)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consume: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var pending models.VerificationCode
	err = tx.GetContext(ctx, &pending, `
		SELECT email, code, issued_at, expires_at
		FROM verification_codes WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return verification.ErrNoPendingCode
	}
	if err != nil {
		return err
	}

	if pending.Expired(now) {
		if _, err = tx.ExecContext(ctx, `DELETE FROM verification_codes WHERE email = ?`, email); err != nil {
			return err
		}
		if err = tx.Commit(); err != nil {
			return err
		}
		return verification.ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(code)) != 1 {
		return verification.ErrCodeMismatch
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM verification_codes WHERE email = ?`, email); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteCode removes any pending code for email.
func (r *Repository) DeleteCode(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE email = ?`,
		verification.NormalizeEmail(email))
	return err
}

// PurgeExpiredCodes deletes every code that expired more than
// verification.ExpiredRetention before now.
func (r *Repository) PurgeExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-verification.ExpiredRetention)
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
