// Package reminder evaluates the per-course reminder rules for enrolled users
// and dispatches the templated emails, rate limited against the send history.
package reminder

import (
	"context"
	"strings"
	"time"

	"advancedreminders/internal/config"
	"advancedreminders/internal/models"
)

// CourseRepository reads courses, activities and reminder settings
type CourseRepository interface {
	EnabledSettings(ctx context.Context) ([]models.CourseSettings, error)
	GetCourse(ctx context.Context, id int64) (*models.Course, error)
	Activities(ctx context.Context, courseID, userID int64) ([]models.Activity, error)
}

// UserRepository reads users, their course roles and their course activity
type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CourseRoleAssignments(ctx context.Context, courseID int64) ([]models.RoleAssignment, error)
	LastAccess(ctx context.Context, courseID, userID int64) (time.Time, error)
	FirstEnrolment(ctx context.Context, courseID, userID int64) (time.Time, error)
}

// CompletionRepository reads completion tracking
type CompletionRepository interface {
	IsCourseComplete(ctx context.Context, courseID, userID int64) (bool, error)
	ActivityCompletion(ctx context.Context, activityID, userID int64) (models.ActivityCompletion, error)
}

// SendHistoryRepository is the append-only log of sent reminders
type SendHistoryRepository interface {
	LastSent(ctx context.Context, courseID, userID int64, t models.TriggerType) (*models.SentEmail, error)
	Record(ctx context.Context, sent *models.SentEmail) error
}

// Mailer delivers one message and returns a transport-specific delivery handle
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Locker guards against two runs overlapping across processes
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Repositories groups the host data gateway
type Repositories struct {
	Courses     CourseRepository
	Users       UserRepository
	Completions CompletionRepository
	History     SendHistoryRepository
}

// Address is a mail identity
type Address struct {
	Name  string
	Email string
}

// Message is a rendered reminder ready for delivery
type Message struct {
	From     Address
	To       Address
	Subject  string
	HTMLBody string
	Text     string
	CourseID int64
	UserID   int64
	Type     models.TriggerType
}

// Settings is the process-wide configuration of the reminders
type Settings struct {
	Enabled           bool
	MaxInactivityDays string
	SendAsAdmin       bool
	SendAsName        string
	TitlePrefix       string
	SiteURL           string
	NoReply           Address
	Admin             Address
}

const defaultTitlePrefix = "Reminder"

// NewSettings builds Settings from the loaded configuration
func NewSettings(r config.RemindersConfig, m config.MailConfig) Settings {
	return Settings{
		Enabled:           r.Enabled,
		MaxInactivityDays: r.MaxInactivityDays,
		SendAsAdmin:       r.SendAsAdmin,
		SendAsName:        r.SendAsName,
		TitlePrefix:       r.TitlePrefix,
		SiteURL:           strings.TrimRight(r.SiteURL, "/"),
		NoReply:           Address{Name: m.NoReplyName, Email: m.NoReplyEmail},
		Admin:             Address{Name: m.AdminName, Email: m.AdminEmail},
	}
}

// RunOptions are invocation-time overrides for one run.
// IgnoreRateLimit and DisableInactivity only apply to dry runs.
type RunOptions struct {
	Now               time.Time
	Verbose           bool
	IgnoreRateLimit   bool
	DisableInactivity bool
	DryRun            bool
}
