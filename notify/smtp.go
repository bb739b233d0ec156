package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-auth/actiontoken"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SMTPNotifier sends action links over plain SMTP with AUTH PLAIN.
type SMTPNotifier struct {
	host     string
	port     string
	account  string
	password string
	baseURL  string // public base URL the action links point at
	logger   zerolog.Logger
}

func NewSMTPNotifier(host, port, account, password, baseURL string, logger zerolog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

func (n *SMTPNotifier) Deliver(kind actiontoken.Kind, recipientEmail, displayName, rawToken string, expiresAt time.Time) error {
	subject, body := n.compose(kind, displayName, rawToken, expiresAt)

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", n.account),
		fmt.Sprintf("To: %s", recipientEmail),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	auth := smtp.PlainAuth("", n.account, n.password, n.host)
	addr := fmt.Sprintf("%s:%s", n.host, n.port)
	if err := smtp.SendMail(addr, auth, n.account, []string{recipientEmail}, []byte(msg)); err != nil {
		n.logger.Error().Err(err).
			Str("kind", string(kind)).
			Str("recipient", recipientEmail).
			Msg("action email delivery failed")
		return errors.Wrap(err, "[SMTPNotifier.Deliver] smtp.SendMail")
	}
	return nil
}

func (n *SMTPNotifier) compose(kind actiontoken.Kind, displayName, rawToken string, expiresAt time.Time) (subject, body string) {
	name := displayName
	if name == "" {
		name = "there"
	}
	expiry := expiresAt.UTC().Format(time.RFC1123)

	switch kind {
	case actiontoken.KindEmailVerify:
		subject = "Confirm your email address"
		body = fmt.Sprintf("Hi %s,\n\nConfirm your email by opening the link below.\n\n%s/auth/verify/%s\n\nThe link expires %s.",
			name, n.baseURL, rawToken, expiry)
	case actiontoken.KindPasswordReset:
		subject = "Reset your password"
		body = fmt.Sprintf("Hi %s,\n\nReset your password by opening the link below. If you did not request this, ignore this message.\n\n%s/auth/reset/%s\n\nThe link expires %s.",
			name, n.baseURL, rawToken, expiry)
	case actiontoken.KindEmailChange:
		subject = "Confirm your new email address"
		body = fmt.Sprintf("Hi %s,\n\nConfirm your new email address by opening the link below.\n\n%s/auth/email-change/%s\n\nThe link expires %s.",
			name, n.baseURL, rawToken, expiry)
	default:
		subject = "Account action required"
		body = fmt.Sprintf("Hi %s,\n\nYour confirmation code: %s\n\nIt expires %s.", name, rawToken, expiry)
	}
	return subject, body
}
