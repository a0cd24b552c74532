package service

import (
	"context"
	"fmt"
	"strings"

	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/email"
)

// EmailNotificationSender renders notifications as plain text email and
// sends them over SMTP.
type EmailNotificationSender struct {
	SMTP      email.SMTPSettings
	FromEmail string
	FromName  string

	// SendFunc replaces SMTP delivery in tests.
	SendFunc func(context.Context, email.SMTPSettings, email.Message) error
}

func (s *EmailNotificationSender) Send(ctx context.Context, n domain.Notification) error {
	if strings.TrimSpace(n.Email) == "" {
		return fmt.Errorf("notification %s: no recipient", n.Event)
	}
	subject, body, err := renderNotification(n)
	if err != nil {
		return err
	}

	send := s.SendFunc
	if send == nil {
		send = email.Send
	}
	return send(ctx, s.SMTP, email.Message{
		FromName:  s.FromName,
		FromEmail: s.FromEmail,
		ToEmail:   n.Email,
		ToName:    n.Name,
		Subject:   subject,
		TextBody:  body,
	})
}

func renderNotification(n domain.Notification) (subject, body string, err error) {
	greeting := "Hello!"
	if name := strings.TrimSpace(n.Name); name != "" {
		greeting = "Hello " + name + "!"
	}

	switch n.Event {
	case domain.EventEmailVerification:
		return "Verify Your Email Address", strings.Join([]string{
			greeting,
			"",
			"Please click the link below to verify your email address.",
			"",
			n.Data["url"],
			"",
			"If you did not create an account, no further action is required.",
		}, "\n"), nil
	case domain.EventPasswordReset:
		expiry := "This link will expire soon."
		if m := n.Data["expires_minutes"]; m != "" {
			expiry = "This link will expire in " + m + " minutes."
		}
		return "Reset Your Password", strings.Join([]string{
			greeting,
			"",
			"You are receiving this email because we received a password reset request for your account.",
			"",
			n.Data["url"],
			"",
			expiry,
			"",
			"If you did not request a password reset, no further action is required.",
		}, "\n"), nil
	default:
		return "", "", fmt.Errorf("unknown notification event %q", n.Event)
	}
}
