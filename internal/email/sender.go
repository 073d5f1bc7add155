// Package email sends transactional mail over SMTP. Without an SMTP host
// configured it logs the message instead, which is what dev mode runs with.
package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/chatdesk/internal/config"
	"github.com/chatdesk/internal/logger"
)

type Sender struct {
	cfg config.SMTPConfig
}

func NewSender(cfg config.SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) SendVerification(ctx context.Context, to, link string) error {
	subject := "Verify your email"
	body := "Welcome! Confirm your address by opening this link:\r\n\r\n" + link + "\r\n"
	return s.send(ctx, to, subject, body)
}

func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	if s.cfg.Host == "" {
		logger.Infof("email (dev, not sent) to=%s subject=%q body=%q", to, subject, body)
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.cfg.From, to, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("email: send to %s: %w", to, err)
		}
		return nil
	}
}
