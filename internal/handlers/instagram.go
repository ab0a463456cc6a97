// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ctxauth "codeberg.org/oliverandrich/creatorhub/internal/auth"
	"codeberg.org/oliverandrich/creatorhub/internal/i18n"
	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"codeberg.org/oliverandrich/creatorhub/internal/repository"
	"codeberg.org/oliverandrich/creatorhub/internal/services/instagram"
	"codeberg.org/oliverandrich/creatorhub/internal/validator"
	"github.com/labstack/echo/v4"
)

// CredentialStore persists Instagram tokens linked to accounts.
type CredentialStore interface {
	UpsertOAuthCredential(ctx context.Context, cred *models.OAuthCredential) error
	GetOAuthCredential(ctx context.Context, userID int64, provider string) (*models.OAuthCredential, error)
	ReplaceOAuthToken(ctx context.Context, provider, oldToken, newToken string, expiresAt time.Time) error
}

var exchangeTroubleshooting = []string{
	"Authorization codes can be used only once and expire after one hour",
	"The redirect_uri must exactly match the one used to obtain the code",
	"Check that the Instagram client id and secret are configured correctly",
	"The Instagram account must be a Business or Creator account",
}

var refreshTroubleshooting = []string{
	"Only long-lived tokens that are at least 24 hours old can be refreshed",
	"Expired tokens cannot be refreshed, the user has to authorize again",
}

// TokenResponse is returned by the token and refresh endpoints.
type TokenResponse struct {
	Success     bool                `json:"success"`
	AccessToken string              `json:"access_token"`
	TokenType   string              `json:"token_type"`
	ExpiresIn   int64               `json:"expires_in"`
	ExpiresAt   time.Time           `json:"expires_at"`
	LongLived   bool                `json:"long_lived"`
	UserInfo    *instagram.UserInfo `json:"user_info,omitempty"`
	Linked      bool                `json:"linked,omitempty"`
}

// ValidateResponse is returned by the validate endpoint.
type ValidateResponse struct {
	Success  bool                `json:"success"`
	Valid    bool                `json:"valid"`
	UserInfo *instagram.UserInfo `json:"user_info,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// RevokeResponse is returned by the revoke endpoint.
type RevokeResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Revoked    bool   `json:"revoked"`
	StillValid bool   `json:"still_valid"`
}

type tokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
}

type accessTokenRequest struct {
	AccessToken string `json:"access_token"`
}

// InstagramAuthorize returns the consent page URL and sets the state cookie.
func (h *Handlers) InstagramAuthorize(c echo.Context) error {
	if !h.instagram.Configured() {
		return oauthFailure(c, instagram.ErrNotConfigured, exchangeTroubleshooting)
	}
	if h.state == nil {
		return fail(c, errors.New("oauth state manager not configured"))
	}

	state, cookie, err := h.state.Issue()
	if err != nil {
		return fail(c, err)
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"url":     h.instagram.AuthCodeURL(state),
		"state":   state,
	})
}

// InstagramToken exchanges an authorization code for a long-lived token.
// With a bearer session the credential is linked to the account.
func (h *Handlers) InstagramToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return fail(c, validator.NewFieldError("code", "This field is required"))
	}

	if req.State != "" && h.state != nil {
		if err := h.state.Verify(c.Request(), req.State); err != nil {
			slog.Warn("instagram_state_rejected", "error", err)
			return fail(c, err)
		}
		c.SetCookie(h.state.Clear())
	}

	ctx := c.Request().Context()
	cred, err := h.instagram.Exchange(ctx, req.Code, req.RedirectURI)
	if err != nil {
		return oauthFailure(c, err, exchangeTroubleshooting)
	}

	resp := newTokenResponse(cred)
	if claims := ctxauth.GetClaims(ctx); claims != nil && h.credentials != nil {
		resp.Linked = h.link(ctx, claims.UserID, cred)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) link(ctx context.Context, userID int64, cred *instagram.Credential) bool {
	stored := &models.OAuthCredential{
		UserID:      userID,
		Provider:    instagram.Provider,
		AccessToken: cred.AccessToken,
		TokenType:   cred.TokenType,
		ExpiresAt:   cred.ExpiresAt,
	}
	if cred.User != nil {
		stored.ProviderUserID = cred.User.ID
		stored.Username = cred.User.Username
		stored.AccountType = cred.User.AccountType
	}

	if err := h.credentials.UpsertOAuthCredential(ctx, stored); err != nil {
		slog.Error("instagram_link_failed", "user_id", userID, "error", err)
		return false
	}
	slog.Info("instagram_linked", "user_id", userID, "instagram_user_id", stored.ProviderUserID)
	return true
}

// InstagramRefresh extends a long-lived token.
func (h *Handlers) InstagramRefresh(c echo.Context) error {
	var req accessTokenRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return fail(c, validator.NewFieldError("access_token", "This field is required"))
	}

	ctx := c.Request().Context()
	cred, err := h.instagram.Refresh(ctx, req.AccessToken)
	if err != nil {
		return oauthFailure(c, err, refreshTroubleshooting)
	}

	if h.credentials != nil {
		err := h.credentials.ReplaceOAuthToken(ctx, instagram.Provider, req.AccessToken, cred.AccessToken, cred.ExpiresAt)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("instagram_token_update_failed", "error", err)
		}
	}

	return c.JSON(http.StatusOK, newTokenResponse(cred))
}

// InstagramValidate checks whether a token still works.
func (h *Handlers) InstagramValidate(c echo.Context) error {
	accessToken := strings.TrimSpace(c.QueryParam("access_token"))
	if accessToken == "" {
		return fail(c, validator.NewFieldError("access_token", "This field is required"))
	}

	user, err := h.instagram.Validate(c.Request().Context(), accessToken)
	if err != nil {
		if instagram.Rejected(err) {
			return c.JSON(http.StatusUnauthorized, ValidateResponse{
				Valid: false,
				Error: "Access token is invalid or expired",
			})
		}
		return oauthFailure(c, err, nil)
	}

	return c.JSON(http.StatusOK, ValidateResponse{Success: true, Valid: true, UserInfo: user})
}

// InstagramRevoke reports whether a token is still usable. Instagram has no
// revocation endpoint, so the user has to remove the app themselves.
func (h *Handlers) InstagramRevoke(c echo.Context) error {
	var req accessTokenRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return fail(c, validator.NewFieldError("access_token", "This field is required"))
	}

	ctx := c.Request().Context()
	result, err := h.instagram.Revoke(ctx, req.AccessToken)
	if err != nil {
		return oauthFailure(c, err, nil)
	}

	return c.JSON(http.StatusOK, RevokeResponse{
		Success:    true,
		Message:    i18n.T(ctx, "revoke_advisory"),
		Revoked:    result.Revoked,
		StillValid: result.StillValid,
	})
}

// InstagramCredential returns the Instagram account linked to the session user.
func (h *Handlers) InstagramCredential(c echo.Context) error {
	ctx := c.Request().Context()
	claims := ctxauth.GetClaims(ctx)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	if h.credentials == nil {
		return echo.NewHTTPError(http.StatusNotFound, "No Instagram account linked")
	}

	cred, err := h.credentials.GetOAuthCredential(ctx, claims.UserID, instagram.Provider)
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "No Instagram account linked")
	}
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"credential": cred,
		"stale":      cred.Stale(time.Now()),
	})
}

func newTokenResponse(cred *instagram.Credential) TokenResponse {
	return TokenResponse{
		Success:     true,
		AccessToken: cred.AccessToken,
		TokenType:   cred.TokenType,
		ExpiresIn:   cred.ExpiresIn,
		ExpiresAt:   cred.ExpiresAt,
		LongLived:   cred.LongLived,
		UserInfo:    cred.User,
	}
}
