// Package mailer renders and delivers transactional mail over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wneessen/go-mail"

	"github.com/example/record-service/config"
	"github.com/example/record-service/internal/usecase"
)

const otpSubject = "Verify your email address"

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif;">
    <p>Hi {{if .FirstName}}{{.FirstName}}{{else}}there{{end}},</p>
    <p>Your verification code is:</p>
    <p style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
    <p>The code expires in {{.ExpiryMinutes}} minutes. If you did not request it, ignore this email.</p>
  </body>
</html>
`))

// Dialer is the part of the go-mail client the mailer uses.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type SMTPMailer struct {
	dialer     Dialer
	from       string
	fromName   string
	maxElapsed time.Duration
}

func NewSMTPClient(cfg *config.Config) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(10 * time.Second),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	if cfg.SMTPSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	return mail.NewClient(cfg.SMTPHost, opts...)
}

func New(dialer Dialer, from, fromName string) *SMTPMailer {
	return &SMTPMailer{dialer: dialer, from: from, fromName: fromName, maxElapsed: 30 * time.Second}
}

func (m *SMTPMailer) SendOTP(ctx context.Context, msg usecase.OTPMessage) error {
	message, err := m.buildOTP(msg)
	if err != nil {
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = m.maxElapsed
	return backoff.Retry(func() error {
		return m.dialer.DialAndSendWithContext(ctx, message)
	}, backoff.WithContext(bo, ctx))
}

func (m *SMTPMailer) buildOTP(msg usecase.OTPMessage) (*mail.Msg, error) {
	message := mail.NewMsg()
	if err := message.FromFormat(m.fromName, m.from); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := message.To(msg.Email); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	message.Subject(otpSubject)
	if err := message.SetBodyHTMLTemplate(otpTemplate, msg); err != nil {
		return nil, fmt.Errorf("render otp mail: %w", err)
	}
	message.AddAlternativeString(mail.TypeTextPlain, plainOTP(msg))
	return message, nil
}

func plainOTP(msg usecase.OTPMessage) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Your verification code is %s.\n", msg.Code)
	fmt.Fprintf(&b, "It expires in %d minutes.\n", msg.ExpiryMinutes)
	return b.String()
}

var _ Dialer = (*mail.Client)(nil)

// NotifyOTP sends in-process. Used when no message bus is available.
func (m *SMTPMailer) NotifyOTP(ctx context.Context, msg usecase.OTPMessage) error {
	return m.SendOTP(ctx, msg)
}
