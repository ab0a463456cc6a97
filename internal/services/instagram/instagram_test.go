// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package instagram_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"codeberg.org/oliverandrich/creatorhub/internal/retry"
	"codeberg.org/oliverandrich/creatorhub/internal/services/instagram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstagram emulates the token and Graph endpoints.
type fakeInstagram struct {
	validCode       string
	failUpgrade     bool
	tokenFailures   int32
	tokenCalls      atomic.Int32
	lastRedirectURI atomic.Value
}

func (f *fakeInstagram) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenCalls.Add(1) <= f.tokenFailures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = r.ParseForm()
		f.lastRedirectURI.Store(r.PostForm.Get("redirect_uri"))
		if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error_type": "OAuthException", "code": 400, "error_message": "Invalid client credentials",
			})
			return
		}
		if r.PostForm.Get("code") != f.validCode {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error_type": "OAuthException", "code": 400, "error_message": "This authorization code has expired",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "short-token", "user_id": 17841400000})
	})

	mux.HandleFunc("GET /access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if f.failUpgrade || q.Get("grant_type") != "ig_exchange_token" || q.Get("client_secret") != "secret" {
			writeGraphError(w, http.StatusBadRequest, "Unsupported request")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "long-" + q.Get("access_token"), "token_type": "bearer", "expires_in": 5183944,
		})
	})

	mux.HandleFunc("GET /refresh_access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("grant_type") != "ig_refresh_token" || q.Get("access_token") != "long-short-token" {
			writeGraphError(w, http.StatusBadRequest, "Error validating access token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "refreshed-token", "token_type": "bearer", "expires_in": 5183944,
		})
	})

	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("access_token") {
		case "short-token", "long-short-token", "refreshed-token":
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "17841400000", "username": "alice.creates", "account_type": "BUSINESS",
			})
		case "boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			writeGraphError(w, http.StatusBadRequest, "Invalid OAuth access token")
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeGraphError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "type": "OAuthException", "code": 190},
	})
}

func newClient(t *testing.T, fake *fakeInstagram) *instagram.Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := &config.InstagramConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "https://app.example.com/callback",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/access_token",
		GraphURL:     srv.URL + "/",
		Scopes:       []string{"instagram_business_basic"},
		Timeout:      2 * time.Second,
	}
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return instagram.NewClient(cfg, policy, instagram.WithHTTPClient(srv.Client()))
}

func TestExchange_LongLived(t *testing.T) {
	fake := &fakeInstagram{validCode: "good-code"}
	client := newClient(t, fake)

	cred, err := client.Exchange(context.Background(), "good-code", "https://app.example.com/other")

	require.NoError(t, err)
	assert.Equal(t, "long-short-token", cred.AccessToken)
	assert.True(t, cred.LongLived)
	assert.Equal(t, int64(5183944), cred.ExpiresIn)
	assert.Equal(t, "bearer", cred.TokenType)
	require.NotNil(t, cred.User)
	assert.Equal(t, "alice.creates", cred.User.Username)
	assert.Equal(t, "17841400000", cred.User.ID)
	assert.Equal(t, "https://app.example.com/other", fake.lastRedirectURI.Load())
}

func TestExchange_DefaultRedirectURI(t *testing.T) {
	fake := &fakeInstagram{validCode: "good-code"}
	client := newClient(t, fake)

	_, err := client.Exchange(context.Background(), "good-code", "")

	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/callback", fake.lastRedirectURI.Load())
}

func TestExchange_UpgradeFailureFallsBackToShortLived(t *testing.T) {
	fake := &fakeInstagram{validCode: "good-code", failUpgrade: true}
	client := newClient(t, fake)

	cred, err := client.Exchange(context.Background(), "good-code", "")

	require.NoError(t, err)
	assert.Equal(t, "short-token", cred.AccessToken)
	assert.False(t, cred.LongLived)
	assert.Equal(t, int64(3600), cred.ExpiresIn)
	assert.Equal(t, "alice.creates", cred.User.Username)
}

func TestExchange_InvalidCode(t *testing.T) {
	client := newClient(t, &fakeInstagram{validCode: "good-code"})

	_, err := client.Exchange(context.Background(), "expired-code", "")

	require.ErrorIs(t, err, instagram.ErrExchangeFailed)
	assert.Contains(t, err.Error(), "This authorization code has expired")
	assert.True(t, instagram.Rejected(err))
}

func TestExchange_RetriesServerErrors(t *testing.T) {
	fake := &fakeInstagram{validCode: "good-code", tokenFailures: 2}
	client := newClient(t, fake)

	_, err := client.Exchange(context.Background(), "good-code", "")

	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.tokenCalls.Load())
}

func TestExchange_NotConfigured(t *testing.T) {
	client := instagram.NewClient(&config.InstagramConfig{}, retry.DefaultPolicy())

	_, err := client.Exchange(context.Background(), "code", "")

	assert.ErrorIs(t, err, instagram.ErrNotConfigured)
	assert.False(t, client.Configured())
}

func TestValidate(t *testing.T) {
	client := newClient(t, &fakeInstagram{})

	user, err := client.Validate(context.Background(), "refreshed-token")

	require.NoError(t, err)
	assert.Equal(t, "BUSINESS", user.AccountType)
}

func TestValidate_InvalidToken(t *testing.T) {
	client := newClient(t, &fakeInstagram{})

	_, err := client.Validate(context.Background(), "bogus")

	require.ErrorIs(t, err, instagram.ErrTokenValidationFailed)
	assert.Contains(t, err.Error(), "Invalid OAuth access token")
	assert.True(t, instagram.Rejected(err))

	_, err = client.Validate(context.Background(), "")
	assert.ErrorIs(t, err, instagram.ErrTokenValidationFailed)
}

func TestRefresh(t *testing.T) {
	client := newClient(t, &fakeInstagram{})

	cred, err := client.Refresh(context.Background(), "long-short-token")

	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", cred.AccessToken)
	assert.True(t, cred.LongLived)
	assert.WithinDuration(t, time.Now().Add(5183944*time.Second), cred.ExpiresAt, 5*time.Second)
}

func TestRefresh_Rejected(t *testing.T) {
	client := newClient(t, &fakeInstagram{})

	_, err := client.Refresh(context.Background(), "short-token")

	require.ErrorIs(t, err, instagram.ErrRefreshFailed)
	assert.Contains(t, err.Error(), "re-authorization")
}

func TestRevoke(t *testing.T) {
	client := newClient(t, &fakeInstagram{})
	ctx := context.Background()

	still, err := client.Revoke(ctx, "refreshed-token")
	require.NoError(t, err)
	assert.False(t, still.Revoked)
	assert.True(t, still.StillValid)

	gone, err := client.Revoke(ctx, "bogus")
	require.NoError(t, err)
	assert.True(t, gone.Revoked)

	_, err = client.Revoke(ctx, "boom")
	require.Error(t, err)
	assert.False(t, instagram.Rejected(err))
}

func TestAuthCodeURL(t *testing.T) {
	client := newClient(t, &fakeInstagram{})

	raw := client.AuthCodeURL("state-123")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/oauth/authorize", u.Path)
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "instagram_business_basic", q.Get("scope"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
}

func TestProviderError(t *testing.T) {
	err := &instagram.ProviderError{Status: 400, Message: "bad"}

	assert.Equal(t, "instagram responded 400: bad", err.Error())
	assert.True(t, instagram.Rejected(err))
	assert.False(t, instagram.Rejected(&instagram.ProviderError{Status: 503}))
	assert.False(t, instagram.Rejected(&instagram.ProviderError{Status: 429}))
}
