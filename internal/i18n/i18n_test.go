// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/creatorhub/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInit(t *testing.T) {
	err := i18n.Init()
	require.NoError(t, err)
}

func TestT(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "Email verified successfully.", i18n.T(ctx, "verify_success"))
}

func TestT_German(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "E-Mail-Adresse erfolgreich bestätigt.", i18n.T(ctx, "verify_success"))
	assert.Equal(t, "de", i18n.GetLocale(ctx))
}

func TestT_UnknownKey(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	result := i18n.T(ctx, "unknown_key_that_does_not_exist")
	assert.Equal(t, "unknown_key_that_does_not_exist", result)
}

func TestT_NoLocaleContext(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "Login successful.", i18n.T(ctx, "login_success"))
	assert.Equal(t, "en", i18n.GetLocale(ctx))
}

func TestTData(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	body := i18n.TData(ctx, "email_verification_body", map[string]any{
		"Username": "alice",
		"Code":     "123456",
		"Minutes":  10,
	})

	assert.Contains(t, body, "Hi alice,")
	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "10 minutes")
}

func TestTData_GermanSubject(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.German)

	subject := i18n.TData(ctx, "admin_notification_subject", map[string]any{
		"Role":     "creator",
		"Username": "alice",
	})

	assert.Equal(t, "Neue Registrierung (creator): alice", subject)
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"", language.English},
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9,en;q=0.8", language.German},
		{"de-AT", language.German},
		{"fr-FR", language.English},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, i18n.MatchLanguage(tt.header))
		})
	}
}
