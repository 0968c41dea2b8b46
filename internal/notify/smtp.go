package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/config"
)

type sendFunc func(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers plain-text email through an SMTP relay.
type SMTPSender struct {
	cfg  config.SMTPConfig
	send sendFunc
}

// NewSMTPSender creates an SMTPSender. UseTLS selects implicit TLS (SMTPS).
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	s := &SMTPSender{cfg: cfg}
	if cfg.UseTLS {
		s.send = sendMailTLS
	} else {
		s.send = func(addr, _ string, auth smtp.Auth, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, auth, from, to, msg)
		}
	}
	return s
}

// Send renders the template and hands the message to the relay.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	subject, body, err := Render(msg)
	if err != nil {
		return Result{}, err
	}

	id := uuid.New().String()
	headers := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + msg.To,
		"Subject: " + subject,
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		fmt.Sprintf("Message-ID: <%s@%s>", id, s.cfg.Host),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
	}, "\r\n")
	raw := []byte(headers + "\r\n\r\n" + strings.ReplaceAll(body, "\n", "\r\n"))

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, s.cfg.Host, auth, s.cfg.From, []string{msg.To}, raw); err != nil {
		return Result{}, fmt.Errorf("smtp send: %w", err)
	}
	return Result{MessageID: id}, nil
}

// sendMailTLS connects with implicit TLS (port 465) and sends a message.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}

// NewFromConfig returns an SMTPSender when notifications are enabled and a relay is
// configured, otherwise a LogSender.
func NewFromConfig(cfg config.NotificationsConfig) Sender {
	if cfg.Enabled && cfg.SMTP.Host != "" {
		return NewSMTPSender(cfg.SMTP)
	}
	return NewLogSender(nil)
}
