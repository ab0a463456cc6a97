// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package oauthstate binds an OAuth authorization request to the browser
// that started it with a signed cookie.
package oauthstate

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"github.com/gorilla/securecookie"
)

const keyLength = 32

var (
	ErrMissingState  = errors.New("oauth state cookie missing or invalid")
	ErrStateMismatch = errors.New("oauth state does not match")
)

// payload is what the cookie carries.
type payload struct {
	State     string
	ExpiresAt time.Time
}

// Manager issues and checks state cookies.
type Manager struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge int
	secure bool
}

// NewManager creates a manager from cfg. An empty hash key generates a
// random one, which invalidates pending states on restart.
func NewManager(cfg *config.OAuthStateConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "oauth state hash key")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		slog.Warn("oauth_state_key_generated", "reason", "no hash key configured")
		hashKey = securecookie.GenerateRandomKey(keyLength)
	}

	blockKey, err := decodeKey(cfg.BlockKey, "oauth state block key")
	if err != nil {
		return nil, err
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 600
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(maxAge)

	return &Manager{
		codec:  codec,
		name:   cfg.CookieName,
		maxAge: maxAge,
		secure: secure,
	}, nil
}

func decodeKey(value, label string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", label, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("invalid %s: must be %d bytes, got %d", label, keyLength, len(key))
	}
	return key, nil
}

// Issue creates a fresh state and the cookie that remembers it.
func (m *Manager) Issue() (string, *http.Cookie, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating oauth state: %w", err)
	}
	state := hex.EncodeToString(raw)

	encoded, err := m.codec.Encode(m.name, payload{
		State:     state,
		ExpiresAt: time.Now().Add(time.Duration(m.maxAge) * time.Second),
	})
	if err != nil {
		return "", nil, fmt.Errorf("encoding oauth state: %w", err)
	}

	return state, m.cookie(encoded, m.maxAge), nil
}

// Verify checks state against the cookie on r.
func (m *Manager) Verify(r *http.Request, state string) error {
	c, err := r.Cookie(m.name)
	if err != nil {
		return ErrMissingState
	}

	var p payload
	if err := m.codec.Decode(m.name, c.Value, &p); err != nil {
		return ErrMissingState
	}
	if time.Now().After(p.ExpiresAt) {
		return ErrMissingState
	}
	if subtle.ConstantTimeCompare([]byte(p.State), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	return nil
}

// Clear returns a cookie that removes the state cookie.
func (m *Manager) Clear() *http.Cookie {
	return m.cookie("", -1)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
