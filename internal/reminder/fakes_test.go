package reminder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"advancedreminders/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const day = 24 * time.Hour

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type pair struct{ a, b int64 }

// memStore implements every repository interface in memory
type memStore struct {
	settings       []models.CourseSettings
	courses        map[int64]*models.Course
	users          map[int64]*models.User
	roles          map[int64][]models.RoleAssignment
	lastAccess     map[pair]time.Time
	enrolled       map[pair]time.Time
	courseComplete map[pair]bool
	activities     map[int64][]models.Activity
	completions    map[pair]models.ActivityCompletion
	sent           []models.SentEmail

	settingsErr   error
	courseErr     map[int64]error
	activitiesErr error
	recordErr     error
	activityCalls int
}

func newMemStore() *memStore {
	return &memStore{
		courses:        map[int64]*models.Course{},
		users:          map[int64]*models.User{},
		roles:          map[int64][]models.RoleAssignment{},
		lastAccess:     map[pair]time.Time{},
		enrolled:       map[pair]time.Time{},
		courseComplete: map[pair]bool{},
		activities:     map[int64][]models.Activity{},
		completions:    map[pair]models.ActivityCompletion{},
		courseErr:      map[int64]error{},
	}
}

func (m *memStore) repos() Repositories {
	return Repositories{Courses: m, Users: m, Completions: m, History: m}
}

func (m *memStore) EnabledSettings(context.Context) ([]models.CourseSettings, error) {
	if m.settingsErr != nil {
		return nil, m.settingsErr
	}
	var out []models.CourseSettings
	for _, s := range m.settings {
		if s.CourseEnabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetCourse(_ context.Context, id int64) (*models.Course, error) {
	if err := m.courseErr[id]; err != nil {
		return nil, err
	}
	c, ok := m.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %d: %w", id, models.ErrNotFound)
	}
	return c, nil
}

func (m *memStore) Activities(_ context.Context, courseID, _ int64) ([]models.Activity, error) {
	m.activityCalls++
	if m.activitiesErr != nil {
		return nil, m.activitiesErr
	}
	return m.activities[courseID], nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (m *memStore) CourseRoleAssignments(_ context.Context, courseID int64) ([]models.RoleAssignment, error) {
	return m.roles[courseID], nil
}

func (m *memStore) LastAccess(_ context.Context, courseID, userID int64) (time.Time, error) {
	return m.lastAccess[pair{courseID, userID}], nil
}

func (m *memStore) FirstEnrolment(_ context.Context, courseID, userID int64) (time.Time, error) {
	return m.enrolled[pair{courseID, userID}], nil
}

func (m *memStore) IsCourseComplete(_ context.Context, courseID, userID int64) (bool, error) {
	return m.courseComplete[pair{courseID, userID}], nil
}

func (m *memStore) ActivityCompletion(_ context.Context, activityID, userID int64) (models.ActivityCompletion, error) {
	c, ok := m.completions[pair{activityID, userID}]
	if !ok {
		return models.ActivityCompletion{CoursemoduleID: activityID, UserID: userID}, nil
	}
	return c, nil
}

func (m *memStore) LastSent(_ context.Context, courseID, userID int64, t models.TriggerType) (*models.SentEmail, error) {
	var matches []models.SentEmail
	for _, s := range m.sent {
		if s.CourseID == courseID && s.UserID == userID && s.Type == t {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Time < matches[j].Time })
	last := matches[len(matches)-1]
	return &last, nil
}

func (m *memStore) Record(_ context.Context, sent *models.SentEmail) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	sent.ID = int64(len(m.sent) + 1)
	m.sent = append(m.sent, *sent)
	return nil
}

func (m *memStore) sentOf(userID int64) []models.TriggerType {
	var types []models.TriggerType
	for _, s := range m.sent {
		if s.UserID == userID {
			types = append(types, s.Type)
		}
	}
	return types
}

type fakeMailer struct {
	messages []Message
	err      error
}

func (f *fakeMailer) Send(_ context.Context, msg Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, msg)
	return fmt.Sprintf("msg-%d", len(f.messages)), nil
}

type fakeLocker struct {
	held     bool
	err      error
	locked   int
	unlocked int
}

func (f *fakeLocker) TryLock(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.locked++
	return true, nil
}

func (f *fakeLocker) Unlock(context.Context) error {
	f.unlocked++
	return nil
}

var errBoom = errors.New("boom")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSettings() Settings {
	return Settings{
		Enabled:     true,
		TitlePrefix: "Reminder",
		SiteURL:     "https://lms.test",
		NoReply:     Address{Name: "No Reply", Email: "noreply@lms.test"},
		Admin:       Address{Name: "Admin User", Email: "admin@lms.test"},
	}
}

func testCourse() *models.Course {
	return &models.Course{
		ID:               10,
		FullName:         "Math 101",
		Visible:          true,
		EnableCompletion: true,
		StartDate:        testNow.Add(-60 * day).Unix(),
	}
}

func testUser(id int64) *models.User {
	return &models.User{
		ID:        id,
		Username:  fmt.Sprintf("student%d", id),
		Email:     fmt.Sprintf("student%d@lms.test", id),
		FirstName: "Ana",
		LastName:  "Silva",
		Lang:      "en",
		Auth:      "manual",
		Confirmed: true,
	}
}

func templateJSON(body string) datatypes.JSON {
	return datatypes.JSON(fmt.Sprintf(`{"en":{"title":"Reminder: =COURSE=","body":%q}}`, body))
}

func courseSettings() models.CourseSettings {
	return models.CourseSettings{
		CourseID:         10,
		CourseEnabled:    true,
		AllowedRoles:     "student",
		TextInactivity:   templateJSON("We miss you, =USER=. Back to =LINK="),
		TextActivities:   templateJSON("Overdue: =LIST="),
		TextNoCompletion: templateJSON("Nothing completed yet: =LIST="),
	}
}
