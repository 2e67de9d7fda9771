// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/acrispin/identity/internal/config"
)

// Service sends account emails via SMTP using go-mail. When no SMTP host is
// configured the service logs the email instead of sending it, which is the
// development default.
type Service struct {
	cfg         *config.SMTPConfig
	frontendURL string
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, frontendURL string) (*Service, error) {
	if cfg.Host != "" && cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{
		cfg:         cfg,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
	}, nil
}

// SendVerificationEmail sends the account activation link for a freshly
// registered user.
func (s *Service) SendVerificationEmail(ctx context.Context, toEmail, firstName, token string) error {
	link := fmt.Sprintf("%s/auth/activate/%s/%s", s.frontendURL, toEmail, token)

	subject := "Activate your account"
	body := fmt.Sprintf(
		"Hello %s,\n\nThanks for registering. To activate your account, open the following link:\n\n%s\n\nIf you did not create this account, you can ignore this email.\n",
		firstName, link)

	return s.send(ctx, toEmail, subject, body)
}

// SendPasswordResetEmail sends the password reset link.
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, firstName, token string) error {
	link := fmt.Sprintf("%s/auth/reset-password/%s/%s", s.frontendURL, toEmail, token)

	subject := "Reset your password"
	body := fmt.Sprintf(
		"Hello %s,\n\nTo reset your password, open the following link:\n\n%s\n\nIf you did not request this change, you can ignore this email.\n",
		firstName, link)

	return s.send(ctx, toEmail, subject, body)
}

// send delivers an email via SMTP, or logs it when no SMTP host is set.
func (s *Service) send(ctx context.Context, to, subject, body string) error {
	if s.cfg.Host == "" {
		slog.Info("email_logged", "to", to, "subject", subject, "body", body)
		return nil
	}

	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
