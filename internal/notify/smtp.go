package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the SMTP relay settings for the email sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// IsConfigured returns true if the relay host and sender address are set
func (c SMTPConfig) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// SMTPEmailSender sends email through a configured SMTP relay.
type SMTPEmailSender struct {
	config SMTPConfig

	// send is swapped in tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailSender creates a new SMTPEmailSender
func NewSMTPEmailSender(config SMTPConfig) *SMTPEmailSender {
	return &SMTPEmailSender{
		config: config,
		send:   smtp.SendMail,
	}
}

// SendEmail delivers one message through the relay. SMTP only confirms
// acceptance, so Delivered is always false here; the delivery record stays
// at sent.
func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) (*SendResult, error) {
	if !s.config.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if to == "" {
		return nil, fmt.Errorf("recipient has no email address")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	// smtp.SendMail has no context support; run it in a goroutine and
	// honor ctx cancellation so a slow relay cannot stall the dispatcher
	// past its send timeout.
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.send(addr, auth, s.config.From, []string{to}, []byte(msg.String()))
	}()

	select {
	case <-ctx.Done():
		return nil, Transient(fmt.Errorf("smtp send timed out: %w", ctx.Err()))
	case err := <-errCh:
		if err != nil {
			return nil, classifySMTPError(err)
		}
	}

	return &SendResult{Delivered: false}, nil
}

// classifySMTPError separates retryable relay failures from permanent
// ones. Network errors and 4xx responses are transient; 5xx responses
// (bad recipient, rejected content) are permanent.
func classifySMTPError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}

	msg := err.Error()
	if len(msg) >= 3 && msg[0] == '4' {
		return Transient(err)
	}
	return err
}
