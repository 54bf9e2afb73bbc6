package services

import (
	"context"
	"fmt"

	"advancedreminders/internal/reminder"

	"gopkg.in/mail.v2"
)

// dialer is satisfied by *mail.Dialer
type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPService delivers reminders through a plain SMTP relay
type SMTPService struct {
	dialer dialer
}

func NewSMTPService(host string, port int, username, password string) *SMTPService {
	return &SMTPService{dialer: mail.NewDialer(host, port, username, password)}
}

// Send delivers msg. SMTP has no delivery id, so the recipient is returned instead.
func (s *SMTPService) Send(ctx context.Context, msg reminder.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	message := mail.NewMessage()
	message.SetAddressHeader("From", msg.From.Email, msg.From.Name)
	message.SetAddressHeader("To", msg.To.Email, msg.To.Name)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/plain", msg.Text)
	message.AddAlternative("text/html", msg.HTMLBody)

	if err := s.dialer.DialAndSend(message); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", msg.To.Email, err)
	}
	return "smtp:" + msg.To.Email, nil
}
