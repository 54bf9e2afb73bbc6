package reminder

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"advancedreminders/internal/models"

	"github.com/sirupsen/logrus"
)

// Subject is one (course, user, settings) triple evaluated at Now
type Subject struct {
	Course             *models.Course
	User               *models.User
	Settings           models.CourseSettings
	Now                time.Time
	InactivityDisabled bool
}

// Evaluation holds the triggers that fired for a subject. Inactivity is
// exclusive: when it fires the lists are always empty.
type Evaluation struct {
	Inactivity       bool
	ActivitiesHTML   string
	NoCompletionHTML string
}

// Fired lists the trigger types to dispatch, in order
func (e Evaluation) Fired() []models.TriggerType {
	if e.Inactivity {
		return []models.TriggerType{models.TriggerInactivity}
	}
	var fired []models.TriggerType
	if e.ActivitiesHTML != "" {
		fired = append(fired, models.TriggerActivities)
	}
	if e.NoCompletionHTML != "" {
		fired = append(fired, models.TriggerNoCompletion)
	}
	return fired
}

// List returns the rendered activity list for t
func (e Evaluation) List(t models.TriggerType) string {
	switch t {
	case models.TriggerActivities:
		return e.ActivitiesHTML
	case models.TriggerNoCompletion:
		return e.NoCompletionHTML
	default:
		return ""
	}
}

// Evaluator decides which triggers fire for a subject
type Evaluator struct {
	courses       CourseRepository
	users         UserRepository
	completions   CompletionRepository
	maxInactivity time.Duration // zero: no cap
	siteURL       string
}

func NewEvaluator(repos Repositories, settings Settings) *Evaluator {
	e := &Evaluator{
		courses:     repos.Courses,
		users:       repos.Users,
		completions: repos.Completions,
		siteURL:     settings.SiteURL,
	}
	if days, ok := models.PositiveDays(settings.MaxInactivityDays); ok {
		e.maxInactivity = models.DaysToDuration(days)
	}
	return e
}

// Evaluate runs the inactivity check and, when it does not fire, the
// overdue activity scan.
func (e *Evaluator) Evaluate(ctx context.Context, log logrus.FieldLogger, s Subject) (Evaluation, error) {
	md := &minDate{e: e, course: s.Course, userID: s.User.ID}

	inactive, err := e.inactivity(ctx, log, s, md)
	if err != nil {
		return Evaluation{}, err
	}
	if inactive {
		return Evaluation{Inactivity: true}, nil
	}
	log.Debug("NOT inactivity")

	activities, noCompletion, err := e.overdue(ctx, log, s, md)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{ActivitiesHTML: activities, NoCompletionHTML: noCompletion}, nil
}

func (e *Evaluator) inactivity(ctx context.Context, log logrus.FieldLogger, s Subject, md *minDate) (bool, error) {
	days, ok := s.Settings.Days(models.TriggerInactivity)
	if !ok {
		log.Debug("mininactivity empty")
		return false, nil
	}
	if s.InactivityDisabled {
		log.Debug("inactivity checking disabled")
		return false, nil
	}

	complete, err := e.completions.IsCourseComplete(ctx, s.Course.ID, s.User.ID)
	if err != nil {
		return false, err
	}
	if complete {
		log.Debug("iscomplete")
		return false, nil
	}

	lastAccess, err := e.users.LastAccess(ctx, s.Course.ID, s.User.ID)
	if err != nil {
		return false, err
	}
	if lastAccess.IsZero() {
		if lastAccess, err = md.get(ctx); err != nil {
			return false, err
		}
	}

	log.WithFields(logrus.Fields{
		"lastaccess": lastAccess.Unix(),
		"now":        s.Now.Unix(),
	}).Debug("inactivity window")

	if !s.Now.After(lastAccess.Add(models.DaysToDuration(days))) {
		return false, nil
	}
	if e.maxInactivity > 0 && !s.Now.Before(lastAccess.Add(e.maxInactivity)) {
		log.Debug("past max inactivity")
		return false, nil
	}
	return true, nil
}

// overdue scans the visible activities and renders the Activities and
// NoCompletion lists. An empty string means the trigger did not fire.
func (e *Evaluator) overdue(ctx context.Context, log logrus.FieldLogger, s Subject, md *minDate) (string, string, error) {
	actDays, actOK := s.Settings.Days(models.TriggerActivities)
	ncDays, ncOK := s.Settings.Days(models.TriggerNoCompletion)
	if !actOK && !ncOK {
		log.Debugf("minactivities/minnocompletion empty %q|%q", s.Settings.MinActivities, s.Settings.MinNoCompletion)
		return "", "", nil
	}
	actWindow := models.DaysToDuration(actDays)
	ncWindow := models.DaysToDuration(ncDays)

	activities, err := e.courses.Activities(ctx, s.Course.ID, s.User.ID)
	if err != nil {
		return "", "", err
	}

	var (
		actItems, ncItems []string
		minIniIncomplete  time.Time
		maxTimeComplete   time.Time
	)
	for _, a := range activities {
		if !a.Visible || !a.UserVisible {
			continue
		}
		alog := log.WithField("activity_id", a.ID)

		ini, ok := a.Reference()
		if !ok {
			if ini, err = md.get(ctx); err != nil {
				return "", "", err
			}
		}
		alog.Debugf("ini = %d", ini.Unix())

		completion, err := e.completions.ActivityCompletion(ctx, a.ID, s.User.ID)
		if err != nil {
			return "", "", err
		}
		if !completion.Incomplete() {
			if done := models.UnixTime(completion.TimeModified); done.After(maxTimeComplete) {
				maxTimeComplete = done
			}
			continue
		}

		alog.Debug("has incomplete")
		if minIniIncomplete.IsZero() || ini.Before(minIniIncomplete) {
			minIniIncomplete = ini
		}

		item := e.activityItem(a)
		if actOK && s.Now.After(ini.Add(actWindow)) {
			alog.Debug("time ok activities")
			actItems = append(actItems, item)
		}
		if ncOK && s.Now.After(ini.Add(ncWindow)) {
			alog.Debug("time ok nocompletion")
			ncItems = append(ncItems, item)
		}
	}

	activitiesHTML := renderList(actItems)

	// Hold the "nothing completed" reminder back until enough time has passed
	// since both the earliest pending deadline and the latest completion.
	noCompletionHTML := ""
	if len(ncItems) > 0 &&
		(minIniIncomplete.IsZero() || s.Now.After(minIniIncomplete.Add(ncWindow))) &&
		(maxTimeComplete.IsZero() || s.Now.After(maxTimeComplete.Add(ncWindow))) {
		noCompletionHTML = renderList(ncItems)
	}

	if activitiesHTML == "" && noCompletionHTML == "" {
		log.Debug("NOT activities")
	}
	return activitiesHTML, noCompletionHTML, nil
}

func (e *Evaluator) activityItem(a models.Activity) string {
	url := fmt.Sprintf("%s/mod/%s/view.php?id=%d", e.siteURL, a.ModName, a.ID)
	return fmt.Sprintf(`<li><a href="%s"><b>%s</b></a></li>`, html.EscapeString(url), a.Name)
}

func renderList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "<ul>" + strings.Join(items, "") + "</ul>"
}

// minDate is max(course start, first active enrolment), looked up once per subject
type minDate struct {
	e      *Evaluator
	course *models.Course
	userID int64

	loaded bool
	value  time.Time
}

func (m *minDate) get(ctx context.Context) (time.Time, error) {
	if m.loaded {
		return m.value, nil
	}
	enrolled, err := m.e.users.FirstEnrolment(ctx, m.course.ID, m.userID)
	if err != nil {
		return time.Time{}, err
	}
	m.value = m.course.Start()
	if enrolled.After(m.value) {
		m.value = enrolled
	}
	m.loaded = true
	return m.value, nil
}
