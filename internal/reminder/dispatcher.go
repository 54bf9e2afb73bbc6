package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"advancedreminders/internal/models"

	"github.com/sirupsen/logrus"
)

// Outcome is what happened to one fired trigger
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomePreviewed
	OutcomeRateLimited
	OutcomeNoTemplate
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomePreviewed:
		return "previewed"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeNoTemplate:
		return "no_template"
	default:
		return "failed"
	}
}

// Preview is the email a dry run would have sent
type Preview struct {
	CourseID int64  `json:"course_id"`
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	Type     string `json:"type"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Request is one fired trigger to deliver
type Request struct {
	Type            models.TriggerType
	Course          *models.Course
	User            *models.User
	Settings        models.CourseSettings
	ListHTML        string
	Now             time.Time
	DryRun          bool
	IgnoreRateLimit bool
}

// Result reports the outcome of a dispatch
type Result struct {
	Outcome  Outcome
	Delivery string
	Preview  *Preview
}

// Dispatcher renders, rate limits, sends and records reminders
type Dispatcher struct {
	history  SendHistoryRepository
	mailer   Mailer
	settings Settings
}

func NewDispatcher(history SendHistoryRepository, mailer Mailer, settings Settings) *Dispatcher {
	return &Dispatcher{history: history, mailer: mailer, settings: settings}
}

// Dispatch delivers req unless it is rate limited or has no usable template.
// The send is recorded only after the mailer accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, log logrus.FieldLogger, req Request) (Result, error) {
	log = log.WithField("type", req.Type.String())

	if !(req.DryRun && req.IgnoreRateLimit) {
		limited, err := d.rateLimited(ctx, req)
		if err != nil {
			return Result{Outcome: OutcomeFailed}, err
		}
		if limited {
			log.Infof("interval min not completed - type %s - user %d <%s>", req.Type, req.User.ID, req.User.Email)
			return Result{Outcome: OutcomeRateLimited}, nil
		}
	}

	msg, err := d.render(req)
	if err != nil {
		log.WithError(err).Info("no usable template")
		return Result{Outcome: OutcomeNoTemplate}, nil
	}

	if req.DryRun {
		log.WithField("subject", msg.Subject).Infof("email would be sent to user %d <%s>", req.User.ID, req.User.Email)
		return Result{
			Outcome: OutcomePreviewed,
			Preview: &Preview{
				CourseID: req.Course.ID,
				UserID:   req.User.ID,
				Email:    req.User.Email,
				Type:     req.Type.String(),
				From:     formatAddress(msg.From),
				Subject:  msg.Subject,
				Body:     msg.HTMLBody,
			},
		}, nil
	}

	delivery, err := d.mailer.Send(ctx, msg)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("send %s reminder: %w", req.Type, err)
	}
	log.Infof("Mail Result: %s", delivery)

	err = d.history.Record(ctx, &models.SentEmail{
		CourseID: req.Course.ID,
		UserID:   req.User.ID,
		Type:     req.Type,
		Time:     req.Now.Unix(),
	})
	if err != nil {
		err = fmt.Errorf("%s reminder sent but not recorded: %w", req.Type, err)
	}
	return Result{Outcome: OutcomeSent, Delivery: delivery}, err
}

func (d *Dispatcher) rateLimited(ctx context.Context, req Request) (bool, error) {
	last, err := d.history.LastSent(ctx, req.Course.ID, req.User.ID, req.Type)
	if err != nil {
		return false, err
	}
	if last == nil {
		return false, nil
	}
	interval := time.Duration(req.Settings.ResendIntervals()[req.Type]) * 24 * time.Hour
	return req.Now.Before(last.SentAt().Add(interval)), nil
}

var errEmptyBody = errors.New("empty body")

func (d *Dispatcher) render(req Request) (Message, error) {
	entries, err := parseTemplates(req.Settings.Templates()[req.Type])
	if err != nil {
		return Message{}, err
	}
	text, ok := selectTemplate(entries, req.User.Lang)
	if !ok {
		return Message{}, errEmptyBody
	}

	body := unescape(text.Body)
	if isBlank(body) {
		return Message{}, errEmptyBody
	}

	p := Placeholders{
		List:       req.ListHTML,
		User:       req.User.FullName(),
		CourseLink: fmt.Sprintf("<a href='%s/course/view.php?id=%d'>%s</a>", d.settings.SiteURL, req.Course.ID, req.Course.FullName),
		Course:     req.Course.FullName,
	}
	body = renderBody(body, p)
	subject := renderTitle(unescape(text.Title), p, d.settings.TitlePrefix)

	return Message{
		From:     d.sender(),
		To:       Address{Name: req.User.FullName(), Email: req.User.Email},
		Subject:  subject,
		HTMLBody: body,
		Text:     body,
		CourseID: req.Course.ID,
		UserID:   req.User.ID,
		Type:     req.Type,
	}, nil
}

func (d *Dispatcher) sender() Address {
	if d.settings.SendAsAdmin {
		return d.settings.Admin
	}
	from := d.settings.NoReply
	if name := strings.TrimSpace(d.settings.SendAsName); name != "" {
		from.Name = name
	}
	return from
}

func formatAddress(a Address) string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}
