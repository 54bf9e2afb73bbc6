package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"advancedreminders/internal/models"
	"advancedreminders/internal/reminder"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"
)

var errBoom = errors.New("boom")

func testMessage() reminder.Message {
	return reminder.Message{
		From:     reminder.Address{Name: "No Reply", Email: "noreply@lms.test"},
		To:       reminder.Address{Name: "Ana Silva", Email: "ana@lms.test"},
		Subject:  "Reminder: Math 101",
		HTMLBody: "<p>Hi</p>",
		Text:     "<p>Hi</p>",
		CourseID: 10,
		UserID:   1,
		Type:     models.TriggerActivities,
	}
}

type fakeSendClient struct {
	sent     []*mail.SGMailV3
	response *rest.Response
	err      error
}

func (f *fakeSendClient) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	return f.response, f.err
}

func TestEmailService_Send(t *testing.T) {
	client := &fakeSendClient{response: &rest.Response{
		StatusCode: 202,
		Headers:    map[string][]string{"X-Message-Id": {"abc123"}},
	}}
	s := &EmailService{client: client}

	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	require.Len(t, client.sent, 1)
	sent := client.sent[0]
	assert.Equal(t, "noreply@lms.test", sent.From.Address)
	assert.Equal(t, "Reminder: Math 101", sent.Subject)
	require.Len(t, sent.Personalizations, 1)
	p := sent.Personalizations[0]
	assert.Equal(t, "ana@lms.test", p.To[0].Address)
	assert.Equal(t, map[string]string{"course_id": "10", "user_id": "1", "type": "Activities"}, p.CustomArgs)
}

func TestEmailService_SendWithoutMessageID(t *testing.T) {
	s := &EmailService{client: &fakeSendClient{response: &rest.Response{StatusCode: 202}}}

	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "202", id)
}

func TestEmailService_SendErrors(t *testing.T) {
	s := &EmailService{client: &fakeSendClient{err: errBoom}}
	_, err := s.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, errBoom)

	s = &EmailService{client: &fakeSendClient{response: &rest.Response{StatusCode: 401, Body: "unauthorized"}}}
	_, err = s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestSMTPService_Send(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPService{dialer: d}

	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "smtp:ana@lms.test", id)

	require.Len(t, d.sent, 1)
	msg := d.sent[0]
	assert.Equal(t, []string{"Reminder: Math 101"}, msg.GetHeader("Subject"))
	require.Len(t, msg.GetHeader("From"), 1)
	assert.Contains(t, msg.GetHeader("From")[0], "<noreply@lms.test>")

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/html")
}

func TestSMTPService_SendErrors(t *testing.T) {
	s := &SMTPService{dialer: &fakeDialer{err: errBoom}}
	_, err := s.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, errBoom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &fakeDialer{}
	s = &SMTPService{dialer: d}
	_, err = s.Send(ctx, testMessage())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.sent)
}
