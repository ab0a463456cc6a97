// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email formats and delivers account emails.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"codeberg.org/oliverandrich/creatorhub/internal/i18n"
	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"codeberg.org/oliverandrich/creatorhub/internal/retry"
	"github.com/wneessen/go-mail"
)

// DeliveryMode selects whether mail leaves the process.
type DeliveryMode string

const (
	// Live hands messages to the SMTP transport.
	Live DeliveryMode = config.DeliveryLive
	// Logged writes messages to the log and sends nothing.
	Logged DeliveryMode = config.DeliveryLogged
)

var (
	// ErrInvalidRecipient is returned for addresses that cannot receive mail.
	// It is never retried.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrTransport is returned when the mail server could not be reached or
	// refused the message after all attempts.
	ErrTransport = errors.New("email transport failed")
	// ErrNoAdminRecipient is returned when no admin address is configured.
	ErrNoAdminRecipient = errors.New("no admin notification address configured")
)

// Delivery reports what happened to a message.
type Delivery struct {
	Mode     DeliveryMode `json:"mode"`
	Attempts int          `json:"attempts"`
}

// Sent reports whether the message was handed to a mail server.
func (d Delivery) Sent() bool {
	return d.Mode == Live && d.Attempts > 0
}

// Transport hands a finished message to a mail server.
type Transport interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// Service renders and delivers emails.
type Service struct {
	mode       DeliveryMode
	transport  Transport
	from       string
	fromName   string
	adminEmail string
	codeTTL    time.Duration
	retry      retry.Policy
}

// Option configures a Service.
type Option func(*Service)

// WithTransport replaces the SMTP transport.
func WithTransport(t Transport) Option {
	return func(s *Service) {
		s.transport = t
	}
}

// WithCodeTTL sets the validity shown in verification emails.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.codeTTL = ttl
	}
}

// NewService creates an email service for cfg. Live mode requires a host and
// a from address. Logged mode needs neither.
func NewService(cfg *config.SMTPConfig, policy retry.Policy, opts ...Option) (*Service, error) {
	s := &Service{
		mode:       DeliveryMode(cfg.DeliveryMode),
		from:       cfg.From,
		fromName:   cfg.FromName,
		adminEmail: cfg.AdminEmail,
		codeTTL:    10 * time.Minute,
	}
	s.retry = policy.WithRetryable(func(err error) bool {
		return errors.Is(err, ErrTransport)
	})
	for _, opt := range opts {
		opt(s)
	}

	switch s.mode {
	case Live:
		if s.from == "" {
			return nil, fmt.Errorf("SMTP from address is required")
		}
		if s.transport == nil {
			if cfg.Host == "" {
				return nil, fmt.Errorf("SMTP host is required")
			}
			s.transport = NewSMTPTransport(cfg)
		}
	case Logged:
		slog.Warn("email_delivery_disabled", "mode", string(Logged))
	default:
		return nil, fmt.Errorf("unknown email delivery mode %q", cfg.DeliveryMode)
	}

	return s, nil
}

// Mode returns the configured delivery mode.
func (s *Service) Mode() DeliveryMode {
	return s.mode
}

// HasAdminRecipient reports whether admin notifications have somewhere to go.
func (s *Service) HasAdminRecipient() bool {
	return s.adminEmail != ""
}

// SendVerification sends the verification code to toEmail.
func (s *Service) SendVerification(ctx context.Context, toEmail, username, code string) (Delivery, error) {
	subject := i18n.T(ctx, "email_verification_subject")
	body := i18n.TData(ctx, "email_verification_body", map[string]any{
		"Username": username,
		"Code":     code,
		"Minutes":  int(s.codeTTL.Minutes()),
	})

	return s.send(ctx, "verification", toEmail, subject, body)
}

// SendAdminNotification tells the configured admin about a new account.
func (s *Service) SendAdminNotification(ctx context.Context, user *models.User) (Delivery, error) {
	if s.adminEmail == "" {
		return Delivery{Mode: s.mode}, ErrNoAdminRecipient
	}

	data := map[string]any{
		"Username":  user.Username,
		"Email":     user.Email,
		"Role":      string(user.Role),
		"CreatedAt": user.CreatedAt.UTC().Format(time.RFC3339),
	}
	subject := i18n.TData(ctx, "admin_notification_subject", data)
	body := i18n.TData(ctx, "admin_notification_body", data)

	return s.send(ctx, "admin_notification", s.adminEmail, subject, body)
}

func (s *Service) send(ctx context.Context, kind, to, subject, body string) (Delivery, error) {
	msg, err := s.buildMessage(to, subject, body)
	if err != nil {
		return Delivery{Mode: s.mode}, err
	}

	if s.mode == Logged {
		slog.Warn("email_logged_not_sent",
			"kind", kind,
			"to", to,
			"subject", subject,
			"body", body,
		)
		return Delivery{Mode: Logged}, nil
	}

	attempts, err := s.retry.Do(ctx, func(ctx context.Context) error {
		return classify(s.transport.Send(ctx, msg))
	})
	delivery := Delivery{Mode: Live, Attempts: attempts}
	if err != nil {
		slog.Error("email_send_failed", "kind", kind, "to", to, "attempts", attempts, "error", err)
		return delivery, err
	}

	slog.Info("email_sent", "kind", kind, "to", to, "attempts", attempts)
	return delivery, nil
}

func (s *Service) buildMessage(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.fromName != "" {
		if err := msg.FromFormat(s.fromName, s.from); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else if s.from != "" {
		if err := msg.From(s.from); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// classify sorts transport errors into ErrInvalidRecipient and ErrTransport.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && sendErr.Reason == mail.ErrSMTPRcptTo && !sendErr.IsTemp() {
		return fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
