// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification_test

import (
	"regexp"
	"testing"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/services/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^[1-9][0-9]{5}$`)

func TestGenerateCode_Format(t *testing.T) {
	for range 200 {
		code, err := verification.GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, code)
	}
}

func TestGenerateCode_Varies(t *testing.T) {
	seen := make(map[string]struct{})
	for range 50 {
		code, err := verification.GenerateCode()
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	// 50 draws from 900000 values colliding down to a handful would mean a broken source.
	assert.Greater(t, len(seen), 40)
}

func TestNewCode(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	code := verification.NewCode("  Alice@Example.COM ", "123456", now, 10*time.Minute)

	assert.Equal(t, "alice@example.com", code.Email)
	assert.Equal(t, "123456", code.Code)
	assert.Equal(t, now, code.IssuedAt)
	assert.Equal(t, now.Add(10*time.Minute), code.ExpiresAt)
	assert.False(t, code.Expired(now.Add(10*time.Minute)))
	assert.True(t, code.Expired(now.Add(10*time.Minute+time.Nanosecond)))
}

func TestNewCode_DefaultTTL(t *testing.T) {
	now := time.Now()

	code := verification.NewCode("a@x.com", "123456", now, 0)

	assert.Equal(t, verification.DefaultTTL, code.ExpiresAt.Sub(code.IssuedAt))
}
