package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail/v2"

	"studio-backend/internal/config"
)

type SMTPMailer struct {
	opts config.MailOptions
}

// NewSMTPMailer returns nil when SMTP is not configured.
func NewSMTPMailer(opts config.MailOptions) *SMTPMailer {
	if !opts.Enabled() {
		return nil
	}
	return &SMTPMailer{opts: opts}
}

// Send dials once per message. The context deadline bounds the SMTP dial.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.opts.From == "" {
		return fmt.Errorf("smtp not configured (SMTP_FROM)")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.opts.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	d := mail.NewDialer(m.opts.Host, m.opts.Port, m.opts.Username, m.opts.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: m.opts.Host}
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}

	return d.DialAndSend(msg)
}
