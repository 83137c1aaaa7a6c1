package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/mealbridge/dispatch-api/config"
)

// Service sends escalation email for cold-chain alerts. Best-effort only.
type Service interface {
	SendAlert(ctx context.Context, to, subject, body string) error
}

type service struct {
	dialer *gomail.Dialer
	from   string
}

func NewService(cfg config.EmailConfig) Service {
	return &service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *service) SendAlert(_ context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}
