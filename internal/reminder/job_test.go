package reminder

import (
	"context"
	"testing"

	"advancedreminders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jobStore holds course 10 with one inactive student (1), one student with an
// overdue activity (2) and a teacher (3).
func jobStore() *memStore {
	store := newMemStore()
	cs := courseSettings()
	cs.MinInactivity = "7"
	cs.MinActivities = "3"
	store.settings = []models.CourseSettings{cs}
	store.courses[10] = testCourse()
	store.roles[10] = []models.RoleAssignment{
		{UserID: 1, ShortName: "student"},
		{UserID: 2, ShortName: "student"},
		{UserID: 3, ShortName: "editingteacher"},
	}
	for _, id := range []int64{1, 2, 3} {
		store.users[id] = testUser(id)
	}
	store.lastAccess[pair{10, 1}] = testNow.Add(-20 * day)
	store.lastAccess[pair{10, 2}] = testNow.Add(-1 * day)
	store.lastAccess[pair{10, 3}] = testNow.Add(-20 * day)
	store.activities[10] = []models.Activity{
		{ID: 5, ModName: "assign", Name: "Essay", Visible: true, UserVisible: true, DueDate: testNow.Add(-10 * day).Unix()},
	}
	store.completions[pair{5, 1}] = models.ActivityCompletion{CompletionState: models.CompletionComplete, TimeModified: testNow.Add(-5 * day).Unix()}
	return store
}

func newTestJob(store *memStore, mailer Mailer) *Job {
	job := NewJob(store.repos(), mailer, testSettings())
	job.SetLogger(quietLogger())
	return job
}

func TestJob_EndToEnd(t *testing.T) {
	store := jobStore()
	mailer := &fakeMailer{}
	job := newTestJob(store, mailer)

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Courses)
	assert.Equal(t, 2, summary.Users)
	assert.Equal(t, 2, summary.Sent)
	assert.Zero(t, summary.Failures)
	assert.NotEmpty(t, summary.RunID)
	assert.Empty(t, summary.Log)

	assert.Equal(t, []models.TriggerType{models.TriggerInactivity}, store.sentOf(1))
	assert.Equal(t, []models.TriggerType{models.TriggerActivities}, store.sentOf(2))
	assert.Empty(t, store.sentOf(3))
	require.Len(t, mailer.messages, 2)
	assert.Equal(t, "Overdue: <ul><li><a href=\"https://lms.test/mod/assign/view.php?id=5\"><b>Essay</b></a></li></ul>", mailer.messages[1].HTMLBody)
}

func TestJob_SecondRunIsRateLimited(t *testing.T) {
	store := jobStore()
	store.settings[0].IntervalInactivity = 7
	store.settings[0].IntervalActivities = 7
	mailer := &fakeMailer{}
	job := newTestJob(store, mailer)

	_, err := job.Run(context.Background(), RunOptions{Now: testNow})
	require.NoError(t, err)

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow.Add(day)})
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Equal(t, 2, summary.RateLimited)
	assert.Len(t, mailer.messages, 2)
	assert.Len(t, store.sent, 2)
}

func TestJob_SuspendedUserGetsNothing(t *testing.T) {
	store := jobStore()
	store.users[1].Suspended = true
	store.users[2].Suspended = true
	mailer := &fakeMailer{}
	job := newTestJob(store, mailer)

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
	require.NoError(t, err)
	assert.Zero(t, summary.Users)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, mailer.messages)
	assert.Empty(t, store.sent)
}

func TestJob_Disabled(t *testing.T) {
	store := jobStore()
	mailer := &fakeMailer{}
	settings := testSettings()
	settings.Enabled = false
	job := NewJob(store.repos(), mailer, settings)
	job.SetLogger(quietLogger())

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Empty(t, mailer.messages)
}

func TestJob_SkippedCourses(t *testing.T) {
	tests := []struct {
		name   string
		adjust func(*memStore)
	}{
		{"nonexistent", func(s *memStore) { delete(s.courses, 10) }},
		{"invisible", func(s *memStore) { s.courses[10].Visible = false }},
		{"completion disabled", func(s *memStore) { s.courses[10].EnableCompletion = false }},
		{"not started", func(s *memStore) { s.courses[10].StartDate = testNow.Add(day).Unix() }},
		{"finished", func(s *memStore) { s.courses[10].EndDate = testNow.Add(-day).Unix() }},
		{"no allowed roles", func(s *memStore) { s.settings[0].AllowedRoles = "" }},
		{"no matching roles", func(s *memStore) { s.settings[0].AllowedRoles = "manager" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := jobStore()
			tt.adjust(store)
			mailer := &fakeMailer{}
			job := newTestJob(store, mailer)

			summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
			require.NoError(t, err)
			assert.Equal(t, 1, summary.SkippedCourses)
			assert.Zero(t, summary.Courses)
			assert.Empty(t, mailer.messages)
		})
	}
}

func TestJob_OnlyEnabledCourses(t *testing.T) {
	store := jobStore()
	store.settings[0].CourseEnabled = false
	mailer := &fakeMailer{}
	job := newTestJob(store, mailer)

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
	require.NoError(t, err)
	assert.Zero(t, summary.Courses)
	assert.Empty(t, mailer.messages)
}

func TestJob_FailingCourseDoesNotStopRun(t *testing.T) {
	store := jobStore()
	other := courseSettings()
	other.CourseID = 20
	store.settings = append([]models.CourseSettings{other}, store.settings...)
	store.courseErr[20] = errBoom
	mailer := &fakeMailer{}
	job := newTestJob(store, mailer)

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 2, summary.Sent)
}

func TestJob_MailerFailureIsCounted(t *testing.T) {
	store := jobStore()
	job := newTestJob(store, &fakeMailer{err: errBoom})

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failures)
	assert.Zero(t, summary.Sent)
	assert.Empty(t, store.sent)
}

func TestJob_SettingsErrorAbortsRun(t *testing.T) {
	store := jobStore()
	store.settingsErr = errBoom
	job := newTestJob(store, &fakeMailer{})

	_, err := job.Run(context.Background(), RunOptions{Now: testNow})
	assert.ErrorIs(t, err, errBoom)
}

func TestJob_CancelledContext(t *testing.T) {
	store := jobStore()
	mailer := &fakeMailer{}
	job := newTestJob(store, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := job.Run(ctx, RunOptions{Now: testNow})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mailer.messages)
}

func TestJob_DryRun(t *testing.T) {
	store := jobStore()
	mailer := &fakeMailer{}
	job := newTestJob(store, mailer)

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow, DryRun: true, Verbose: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Empty(t, mailer.messages)
	assert.Empty(t, store.sent)
	require.Len(t, summary.Previews, 2)
	assert.Equal(t, int64(1), summary.Previews[0].UserID)
	assert.Equal(t, "Inactivity", summary.Previews[0].Type)
	assert.Equal(t, "Reminder: Math 101", summary.Previews[0].Subject)
	assert.Equal(t, int64(2), summary.Previews[1].UserID)
	assert.Equal(t, "Activities", summary.Previews[1].Type)

	assert.Contains(t, summary.Log, "Start course 10")
	assert.Contains(t, summary.Log, "email would be sent to user 1")
	assert.Contains(t, summary.Log, "NOT inactivity", "verbose runs include debug lines")
}

func TestJob_DryRunOptions(t *testing.T) {
	store := jobStore()
	store.settings[0].IntervalActivities = 7
	store.sent = []models.SentEmail{{CourseID: 10, UserID: 2, Type: models.TriggerActivities, Time: testNow.Unix()}}
	job := newTestJob(store, &fakeMailer{})

	summary, err := job.Run(context.Background(), RunOptions{Now: testNow, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RateLimited)
	assert.Len(t, summary.Previews, 1)
	assert.NotContains(t, summary.Log, "NOT inactivity")

	summary, err = job.Run(context.Background(), RunOptions{Now: testNow, DryRun: true, IgnoreRateLimit: true, DisableInactivity: true})
	require.NoError(t, err)
	assert.Zero(t, summary.RateLimited)
	require.Len(t, summary.Previews, 1, "user 1 is only inactive and user 2 is no longer limited")
	assert.Equal(t, int64(2), summary.Previews[0].UserID)
}

func TestJob_Locker(t *testing.T) {
	t.Run("held elsewhere", func(t *testing.T) {
		store := jobStore()
		mailer := &fakeMailer{}
		locker := &fakeLocker{held: true}
		job := newTestJob(store, mailer)
		job.SetLocker(locker)

		summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
		require.NoError(t, err)
		assert.True(t, summary.Skipped)
		assert.Empty(t, mailer.messages)
		assert.Zero(t, locker.unlocked)
	})

	t.Run("acquired and released", func(t *testing.T) {
		store := jobStore()
		locker := &fakeLocker{}
		job := newTestJob(store, &fakeMailer{})
		job.SetLocker(locker)

		summary, err := job.Run(context.Background(), RunOptions{Now: testNow})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Sent)
		assert.Equal(t, 1, locker.locked)
		assert.Equal(t, 1, locker.unlocked)
	})

	t.Run("dry runs do not lock", func(t *testing.T) {
		store := jobStore()
		locker := &fakeLocker{held: true}
		job := newTestJob(store, &fakeMailer{})
		job.SetLocker(locker)

		summary, err := job.Run(context.Background(), RunOptions{Now: testNow, DryRun: true})
		require.NoError(t, err)
		assert.False(t, summary.Skipped)
		assert.Len(t, summary.Previews, 2)
	})

	t.Run("lock error", func(t *testing.T) {
		store := jobStore()
		job := newTestJob(store, &fakeMailer{})
		job.SetLocker(&fakeLocker{err: errBoom})

		_, err := job.Run(context.Background(), RunOptions{Now: testNow})
		assert.ErrorIs(t, err, errBoom)
	})
}
