package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
)

const smtpDialTimeout = 30 * time.Second

// SMTPMailer delivers mail through an SMTP relay. Each Send opens its
// own connection.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	from string
	now  func() time.Time
}

// NewSMTPMailer returns a mailer sending as from through cfg.
func NewSMTPMailer(cfg config.SMTPConfig, from string) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, from: from, now: time.Now}
}

// Send composes msg and delivers it to every To and Cc recipient.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	raw, err := ComposeMessage(m.from, msg, m.now())
	if err != nil {
		return err
	}

	sender, err := mail.ParseAddress(m.from)
	if err != nil {
		return fmt.Errorf("parse from address: %w", err)
	}

	var rcpts []string
	seen := map[string]bool{}
	for _, list := range [][]string{msg.To, msg.Cc} {
		for _, a := range list {
			addr, err := mail.ParseAddress(a)
			if err != nil {
				return fmt.Errorf("parse recipient %q: %w", a, err)
			}
			if !seen[addr.Address] {
				seen[addr.Address] = true
				rcpts = append(rcpts, addr.Address)
			}
		}
	}

	return sendMail(ctx, m.cfg, sender.Address, rcpts, raw)
}

// sendMail speaks SMTP to cfg. Port 465 without StartTLS uses implicit
// TLS; StartTLS upgrades a plain connection; anything else stays plain
// (local relays).
func sendMail(ctx context.Context, cfg config.SMTPConfig, from string, rcpts []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if cfg.Port == 465 && !cfg.StartTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.Host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial SMTP %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create SMTP client on %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}
	if cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if cfg.Username != "" && cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, r := range rcpts {
		if err := client.Rcpt(r); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", r, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}
	return client.Quit()
}
