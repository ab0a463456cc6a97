// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"database/sql"
	"time"
)

type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID                 int64          `db:"id" json:"id"`
	Username           string         `db:"username" json:"username"`
	Email              string         `db:"email" json:"email"` // stored lowercased
	Phone              sql.NullString `db:"phone" json:"-"`
	PasswordHash       string         `db:"password_hash" json:"-"`
	Role               Role           `db:"role" json:"role"`
	IsEmailVerified    bool           `db:"is_email_verified" json:"isEmailVerified"`
	IsManuallyVerified bool           `db:"is_manually_verified" json:"isManuallyVerified"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	LastLogin          sql.NullTime   `db:"last_login" json:"-"`
}

// PhoneNumber returns the phone number or "" when none was given.
func (u *User) PhoneNumber() string {
	if u.Phone.Valid {
		return u.Phone.String
	}
	return ""
}

// Verified reports whether the user may log in. An admin approval counts
// as verification.
func (u *User) Verified() bool {
	return u.IsEmailVerified || u.IsManuallyVerified
}
