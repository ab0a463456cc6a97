// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/models"
)

const userColumns = `id, username, email, phone, password_hash, role,
	is_email_verified, is_manually_verified, created_at, last_login`

// CreateUser inserts user and fills in its ID and CreatedAt.
// A taken email or phone returns a *DuplicateError.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO users (username, email, phone, password_hash, role,
			is_email_verified, is_manually_verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		user.Username, user.Email, user.Phone, user.PasswordHash, user.Role,
		user.IsEmailVerified, user.IsManuallyVerified, user.CreatedAt)
	return wrapError(row.Scan(&user.ID))
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.TrimSpace(email))
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByPhone retrieves a user by phone number.
func (r *Repository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE phone = ?`,
		strings.TrimSpace(phone))
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// MarkEmailVerified flips is_email_verified. Calling it twice is harmless.
func (r *Repository) MarkEmailVerified(ctx context.Context, id int64) error {
	return r.updateUser(ctx, `UPDATE users SET is_email_verified = 1 WHERE id = ?`, id)
}

// SetManuallyVerified records an admin approval.
func (r *Repository) SetManuallyVerified(ctx context.Context, id int64, verified bool) error {
	return r.updateUser(ctx, `UPDATE users SET is_manually_verified = ? WHERE id = ?`, verified, id)
}

// TouchLastLogin sets last_login to at.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.updateUser(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapError(err)
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
