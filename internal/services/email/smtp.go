// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/creatorhub/internal/config"
	"github.com/wneessen/go-mail"
)

// SMTPTransport dials the configured server for every message.
type SMTPTransport struct {
	host string
	opts []mail.Option
}

// NewSMTPTransport builds a transport from cfg.
func NewSMTPTransport(cfg *config.SMTPConfig) *SMTPTransport {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	// Implicit TLS for port 465, STARTTLS for everything else
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &SMTPTransport{host: cfg.Host, opts: opts}
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(t.host, t.opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
