// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token_test

import (
	"testing"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"codeberg.org/oliverandrich/creatorhub/internal/services/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-with-enough-entropy"

func testUser() *models.User {
	return &models.User{ID: 42, Role: models.RoleCreator}
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := token.NewService("", time.Hour, "creatorhub")

	assert.ErrorIs(t, err, token.ErrNoSecret)
}

func TestNewService_DefaultTTL(t *testing.T) {
	svc, err := token.NewService(secret, 0, "creatorhub")

	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, svc.TTL())
}

func TestIssueAndParse(t *testing.T) {
	svc, err := token.NewService(secret, time.Hour, "creatorhub")
	require.NoError(t, err)

	signed, expiresAt, err := svc.Issue(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, models.RoleCreator, claims.Role)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "creatorhub", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssue_UniqueIDs(t *testing.T) {
	svc, err := token.NewService(secret, time.Hour, "creatorhub")
	require.NoError(t, err)

	a, _, err := svc.Issue(testUser())
	require.NoError(t, err)
	b, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestParse_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer, err := token.NewService(secret, time.Hour, "creatorhub", token.WithClock(func() time.Time { return issuedAt }))
	require.NoError(t, err)
	verifier, err := token.NewService(secret, time.Hour, "creatorhub")
	require.NoError(t, err)

	signed, _, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = verifier.Parse(signed)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestParse_WrongSecret(t *testing.T) {
	a, err := token.NewService(secret, time.Hour, "creatorhub")
	require.NoError(t, err)
	b, err := token.NewService("another-secret", time.Hour, "creatorhub")
	require.NoError(t, err)

	signed, _, err := a.Issue(testUser())
	require.NoError(t, err)

	_, err = b.Parse(signed)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestParse_WrongIssuer(t *testing.T) {
	a, err := token.NewService(secret, time.Hour, "someone-else")
	require.NoError(t, err)
	b, err := token.NewService(secret, time.Hour, "creatorhub")
	require.NoError(t, err)

	signed, _, err := a.Issue(testUser())
	require.NoError(t, err)

	_, err = b.Parse(signed)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	svc, err := token.NewService(secret, time.Hour, "creatorhub")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, token.Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "creatorhub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Parse(unsigned)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestParse_Garbage(t *testing.T) {
	svc, err := token.NewService(secret, time.Hour, "creatorhub")
	require.NoError(t, err)

	_, err = svc.Parse("not.a.token")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}
