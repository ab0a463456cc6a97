// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package instagram exchanges, upgrades, validates and refreshes Instagram
// access tokens.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"codeberg.org/oliverandrich/creatorhub/internal/retry"
	"golang.org/x/oauth2"
)

// Provider is the name stored with persisted credentials.
const Provider = "instagram"

const (
	// ShortLivedTTL applies when the provider omits expires_in on a short-lived token.
	ShortLivedTTL = time.Hour
	// LongLivedTTL applies when the provider omits expires_in on a long-lived token.
	LongLivedTTL = 60 * 24 * time.Hour

	maxResponseBytes = 1 << 20
)

var (
	ErrNotConfigured         = errors.New("instagram oauth is not configured")
	ErrExchangeFailed        = errors.New("authorization code exchange failed")
	ErrTokenValidationFailed = errors.New("access token validation failed")
	ErrRefreshFailed         = errors.New("access token refresh failed, re-authorization may be required")
)

// ProviderError is a non-2xx answer from Instagram.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("instagram responded %d: %s", e.Status, e.Message)
}

// Rejected reports whether Instagram refused the request itself, as opposed
// to failing to answer it.
func Rejected(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Status >= 400 && pe.Status < 500 && pe.Status != http.StatusTooManyRequests
}

// UserInfo is the profile returned by the "me" endpoint.
type UserInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	AccountType string `json:"account_type,omitempty"`
}

// Credential is a normalized access token.
type Credential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	LongLived   bool      `json:"long_lived"`
	User        *UserInfo `json:"user_info,omitempty"`
}

// Client talks to the Instagram OAuth and Graph endpoints.
type Client struct {
	oauth    *oauth2.Config
	graphURL string
	secret   string
	http     *http.Client
	retry    retry.Policy
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a client from cfg.
func NewClient(cfg *config.InstagramConfig, policy retry.Policy, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		graphURL: strings.TrimSuffix(cfg.GraphURL, "/"),
		secret:   cfg.ClientSecret,
		http:     &http.Client{Timeout: timeout},
		retry:    policy.WithRetryable(transient),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether client credentials are present.
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthCodeURL returns the consent page URL for state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token, upgrades it to a
// long-lived token when possible and validates the result.
func (c *Client) Exchange(ctx context.Context, code, redirectURI string) (*Credential, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	short, err := c.exchangeCode(ctx, code, redirectURI)
	if err != nil {
		slog.Warn("instagram_exchange_failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	cred, err := c.upgrade(ctx, short.AccessToken)
	if err != nil {
		slog.Warn("instagram_upgrade_failed", "error", err, "fallback", "short_lived")
		cred = short
	}

	user, err := c.Validate(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	cred.User = user

	slog.Info("instagram_exchange_success",
		"instagram_user_id", user.ID,
		"long_lived", cred.LongLived,
		"expires_in", cred.ExpiresIn,
	)
	return cred, nil
}

func (c *Client) exchangeCode(ctx context.Context, code, redirectURI string) (*Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	var tok *oauth2.Token
	_, err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		tok, err = c.oauth.Exchange(ctx, code, opts...)
		return retrieveError(err)
	})
	if err != nil {
		return nil, err
	}

	cred := &Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tokenType(tok.TokenType),
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresAt = tok.Expiry
		cred.ExpiresIn = int64(tok.Expiry.Sub(c.now()).Seconds())
	} else {
		c.setExpiry(cred, 0, ShortLivedTTL)
	}
	return cred, nil
}

// tokenResponse is the body of the Graph token endpoints.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) upgrade(ctx context.Context, shortToken string) (*Credential, error) {
	var resp tokenResponse
	err := c.get(ctx, "/access_token", url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {c.secret},
		"access_token":  {shortToken},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.longLived(resp)
}

// Refresh extends a long-lived token.
func (c *Client) Refresh(ctx context.Context, accessToken string) (*Credential, error) {
	var resp tokenResponse
	err := c.get(ctx, "/refresh_access_token", url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {accessToken},
	}, &resp)
	if err != nil {
		slog.Warn("instagram_refresh_failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	cred, err := c.longLived(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	slog.Info("instagram_refresh_success", "expires_in", cred.ExpiresIn)
	return cred, nil
}

func (c *Client) longLived(resp tokenResponse) (*Credential, error) {
	if resp.AccessToken == "" {
		return nil, errors.New("response carried no access token")
	}
	cred := &Credential{
		AccessToken: resp.AccessToken,
		TokenType:   tokenType(resp.TokenType),
		LongLived:   true,
	}
	c.setExpiry(cred, resp.ExpiresIn, LongLivedTTL)
	return cred, nil
}

func (c *Client) setExpiry(cred *Credential, expiresIn int64, fallback time.Duration) {
	if expiresIn <= 0 {
		expiresIn = int64(fallback.Seconds())
	}
	cred.ExpiresIn = expiresIn
	cred.ExpiresAt = c.now().Add(time.Duration(expiresIn) * time.Second).UTC()
}

// Validate fetches the profile behind accessToken.
func (c *Client) Validate(ctx context.Context, accessToken string) (*UserInfo, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrTokenValidationFailed)
	}

	var user UserInfo
	err := c.get(ctx, "/me", url.Values{
		"fields":       {"id,username,account_type"},
		"access_token": {accessToken},
	}, &user)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenValidationFailed, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrTokenValidationFailed)
	}
	return &user, nil
}

// RevokeResult is the outcome of an advisory revocation.
type RevokeResult struct {
	Revoked    bool
	StillValid bool
}

// Revoke reports whether accessToken still works. Instagram offers no
// revocation endpoint, so nothing is revoked server-side.
func (c *Client) Revoke(ctx context.Context, accessToken string) (*RevokeResult, error) {
	_, err := c.Validate(ctx, accessToken)
	switch {
	case err == nil:
		return &RevokeResult{StillValid: true}, nil
	case Rejected(err):
		return &RevokeResult{Revoked: true}, nil
	default:
		return nil, err
	}
}

// graphError is the error envelope of the Graph API.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
	ErrorMessage string `json:"error_message"`
	ErrorType    string `json:"error_type"`
}

func (g graphError) message() string {
	switch {
	case g.Error.Message != "":
		return g.Error.Message
	case g.ErrorMessage != "":
		return g.ErrorMessage
	}
	return ""
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.graphURL + path + "?" + params.Encode()

	_, err := c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.Transient(fmt.Errorf("calling instagram: %w", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return retry.Transient(fmt.Errorf("reading instagram response: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return providerError(resp.StatusCode, body)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding instagram response: %w", err)
		}
		return nil
	})
	return err
}

func providerError(status int, body []byte) *ProviderError {
	var g graphError
	msg := ""
	if json.Unmarshal(body, &g) == nil {
		msg = g.message()
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ProviderError{Status: status, Message: msg}
}

// retrieveError turns an oauth2 token endpoint failure into a ProviderError.
func retrieveError(err error) error {
	if err == nil {
		return nil
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		pe := providerError(re.Response.StatusCode, re.Body)
		if pe.Message == http.StatusText(re.Response.StatusCode) && re.ErrorDescription != "" {
			pe.Message = re.ErrorDescription
		}
		return pe
	}
	return retry.Transient(err)
}

// transient retries network failures, throttling and 5xx answers.
func transient(err error) bool {
	if retry.IsTransient(err) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && (pe.Status >= 500 || pe.Status == http.StatusTooManyRequests)
}

func tokenType(t string) string {
	if t == "" {
		return "bearer"
	}
	return strings.ToLower(t)
}
