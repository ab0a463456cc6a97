// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification issues and stores one-time email verification codes.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/models"
)

const (
	// CodeDigits is the length of a verification code.
	CodeDigits = 6
	// DefaultTTL is how long a code stays valid.
	DefaultTTL = 10 * time.Minute
	// ExpiredRetention is how long an expired code is kept so that
	// ConsumeCode can still report ErrCodeExpired for it.
	ExpiredRetention = 24 * time.Hour
)

var (
	ErrNoPendingCode = errors.New("no pending verification code")
	ErrCodeExpired   = errors.New("verification code expired")
	ErrCodeMismatch  = errors.New("verification code does not match")
)

// codeSpace is the number of six-digit codes without a leading zero.
var codeSpace = big.NewInt(900000)

// Store keeps at most one pending code per email.
//
// ConsumeCode must be atomic: it returns nil and deletes the code only when
// it exists, is not expired at now, and equals code. An expired code is
// deleted and ErrCodeExpired returned. A mismatch leaves the code in place.
type Store interface {
	PutCode(ctx context.Context, code *models.VerificationCode) error
	GetCode(ctx context.Context, email string) (*models.VerificationCode, error)
	ConsumeCode(ctx context.Context, email, code string, now time.Time) error
	DeleteCode(ctx context.Context, email string) error
}

// GenerateCode returns a uniformly random code in 100000..999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// NewCode builds a code record for email issued at now.
func NewCode(email, code string, now time.Time, ttl time.Duration) *models.VerificationCode {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &models.VerificationCode{
		Email:     NormalizeEmail(email),
		Code:      code,
		IssuedAt:  now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
}

// NormalizeEmail is the key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
