package services

import (
	"context"
	"fmt"
	"strconv"

	"advancedreminders/internal/reminder"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendClient is the part of the sendgrid client the service uses
type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailService delivers reminders through the SendGrid v3 API
type EmailService struct {
	client sendClient
}

func NewEmailService(apiKey string) *EmailService {
	return &EmailService{client: sendgrid.NewSendClient(apiKey)}
}

// Send delivers msg and returns the SendGrid message id when the API reports one
func (s *EmailService) Send(ctx context.Context, msg reminder.Message) (string, error) {
	from := mail.NewEmail(msg.From.Name, msg.From.Email)
	to := mail.NewEmail(msg.To.Name, msg.To.Email)

	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTMLBody)
	p := message.Personalizations[0]
	p.SetCustomArg("course_id", strconv.FormatInt(msg.CourseID, 10))
	p.SetCustomArg("user_id", strconv.FormatInt(msg.UserID, 10))
	p.SetCustomArg("type", msg.Type.String())

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("sendgrid: %w", err)
	}

	if response.StatusCode >= 400 {
		return "", fmt.Errorf("failed to send email to %s: %d %s", msg.To.Email, response.StatusCode, response.Body)
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 && ids[0] != "" {
		return ids[0], nil
	}
	return strconv.Itoa(response.StatusCode), nil
}
