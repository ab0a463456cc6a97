// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"codeberg.org/oliverandrich/creatorhub/internal/i18n"
	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"codeberg.org/oliverandrich/creatorhub/internal/retry"
	"codeberg.org/oliverandrich/creatorhub/internal/services/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"golang.org/x/text/language"
)

// fakeTransport records messages and fails the first failures calls.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	sent     []*mail.Msg
}

func (f *fakeTransport) Send(_ context.Context, msg *mail.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func rendered(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func liveConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:         "smtp.example.com",
		Port:         587,
		From:         "noreply@example.com",
		FromName:     "Creatorhub",
		TLS:          true,
		DeliveryMode: config.DeliveryLive,
		AdminEmail:   "admin@example.com",
	}
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestNewService_Live(t *testing.T) {
	svc, err := email.NewService(liveConfig(), fastPolicy())

	require.NoError(t, err)
	assert.Equal(t, email.Live, svc.Mode())
	assert.True(t, svc.HasAdminRecipient())
}

func TestNewService_LiveMissingHost(t *testing.T) {
	cfg := liveConfig()
	cfg.Host = ""

	_, err := email.NewService(cfg, fastPolicy())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host is required")
}

func TestNewService_LiveMissingFrom(t *testing.T) {
	cfg := liveConfig()
	cfg.From = ""

	_, err := email.NewService(cfg, fastPolicy())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP from address is required")
}

func TestNewService_LoggedNeedsNoSMTP(t *testing.T) {
	svc, err := email.NewService(&config.SMTPConfig{DeliveryMode: config.DeliveryLogged}, fastPolicy())

	require.NoError(t, err)
	assert.Equal(t, email.Logged, svc.Mode())
	assert.False(t, svc.HasAdminRecipient())
}

func TestNewService_UnknownMode(t *testing.T) {
	_, err := email.NewService(&config.SMTPConfig{DeliveryMode: ""}, fastPolicy())

	require.Error(t, err)
}

func TestSendVerification_Live(t *testing.T) {
	transport := &fakeTransport{}
	svc, err := email.NewService(liveConfig(), fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)

	delivery, err := svc.SendVerification(context.Background(), "a@x.com", "alice", "123456")

	require.NoError(t, err)
	assert.Equal(t, email.Delivery{Mode: email.Live, Attempts: 1}, delivery)
	assert.True(t, delivery.Sent())
	require.Len(t, transport.sent, 1)
	to := transport.sent[0].GetToString()
	assert.Equal(t, []string{"<a@x.com>"}, to)
	assert.Contains(t, rendered(t, transport.sent[0]), "123456")
}

func TestSendVerification_German(t *testing.T) {
	transport := &fakeTransport{}
	svc, err := email.NewService(liveConfig(), fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)
	ctx := i18n.WithLocale(context.Background(), language.German)

	_, err = svc.SendVerification(ctx, "a@x.com", "alice", "123456")

	require.NoError(t, err)
	require.Len(t, transport.sent, 1)
	assert.Contains(t, rendered(t, transport.sent[0]), "Hallo alice,")
}

func TestSendVerification_RetriesTransportErrors(t *testing.T) {
	transport := &fakeTransport{failures: 2, err: errors.New("connection refused")}
	svc, err := email.NewService(liveConfig(), fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)

	delivery, err := svc.SendVerification(context.Background(), "a@x.com", "alice", "123456")

	require.NoError(t, err)
	assert.Equal(t, 3, delivery.Attempts)
	assert.Len(t, transport.sent, 1)
}

func TestSendVerification_TransportErrorAfterAllAttempts(t *testing.T) {
	transport := &fakeTransport{failures: 10, err: errors.New("connection refused")}
	svc, err := email.NewService(liveConfig(), fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)

	delivery, err := svc.SendVerification(context.Background(), "a@x.com", "alice", "123456")

	require.ErrorIs(t, err, email.ErrTransport)
	assert.Equal(t, 3, delivery.Attempts)
	assert.Equal(t, 3, transport.calls)
}

func TestSendVerification_RejectedRecipientNotRetried(t *testing.T) {
	transport := &fakeTransport{failures: 10, err: &mail.SendError{Reason: mail.ErrSMTPRcptTo}}
	svc, err := email.NewService(liveConfig(), fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)

	delivery, err := svc.SendVerification(context.Background(), "a@x.com", "alice", "123456")

	require.ErrorIs(t, err, email.ErrInvalidRecipient)
	assert.Equal(t, 1, delivery.Attempts)
	assert.Equal(t, 1, transport.calls)
}

func TestSendVerification_MalformedAddress(t *testing.T) {
	transport := &fakeTransport{}
	svc, err := email.NewService(liveConfig(), fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)

	_, err = svc.SendVerification(context.Background(), "not an address", "alice", "123456")

	require.ErrorIs(t, err, email.ErrInvalidRecipient)
	assert.Zero(t, transport.calls)
}

func TestSendVerification_LoggedModeIsExplicit(t *testing.T) {
	transport := &fakeTransport{}
	cfg := liveConfig()
	cfg.DeliveryMode = config.DeliveryLogged
	svc, err := email.NewService(cfg, fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)

	delivery, err := svc.SendVerification(context.Background(), "a@x.com", "alice", "123456")

	require.NoError(t, err)
	assert.Equal(t, email.Logged, delivery.Mode)
	assert.False(t, delivery.Sent())
	assert.Zero(t, transport.calls)
}

func TestSendAdminNotification(t *testing.T) {
	transport := &fakeTransport{}
	svc, err := email.NewService(liveConfig(), fastPolicy(), email.WithTransport(transport))
	require.NoError(t, err)
	user := &models.User{Username: "alice", Email: "a@x.com", Role: models.RoleCreator, CreatedAt: time.Now()}

	_, err = svc.SendAdminNotification(context.Background(), user)

	require.NoError(t, err)
	require.Len(t, transport.sent, 1)
	to := transport.sent[0].GetToString()
	assert.Equal(t, []string{"<admin@example.com>"}, to)
	assert.Equal(t, []string{"New creator registration: alice"}, transport.sent[0].GetGenHeader(mail.HeaderSubject))
}

func TestSendAdminNotification_NoRecipient(t *testing.T) {
	cfg := liveConfig()
	cfg.AdminEmail = ""
	svc, err := email.NewService(cfg, fastPolicy(), email.WithTransport(&fakeTransport{}))
	require.NoError(t, err)

	_, err = svc.SendAdminNotification(context.Background(), &models.User{Username: "alice"})

	assert.ErrorIs(t, err, email.ErrNoAdminRecipient)
}

func TestNewSMTPTransport(t *testing.T) {
	cfg := liveConfig()
	cfg.Username = "user"
	cfg.Password = "pass"
	cfg.Timeout = time.Second

	assert.NotNil(t, email.NewSMTPTransport(cfg))
}

func TestSMTPTransport_UnreachableHost(t *testing.T) {
	cfg := liveConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.TLS = false
	cfg.Timeout = 200 * time.Millisecond
	svc, err := email.NewService(cfg, retry.Policy{MaxAttempts: 1})
	require.NoError(t, err)

	_, err = svc.SendVerification(context.Background(), "a@x.com", "alice", "123456")

	assert.ErrorIs(t, err, email.ErrTransport)
}
