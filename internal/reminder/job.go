package reminder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"advancedreminders/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Summary reports what one run did
type Summary struct {
	RunID          string    `json:"run_id"`
	Now            time.Time `json:"now"`
	DryRun         bool      `json:"dry_run"`
	Skipped        bool      `json:"skipped"`
	Courses        int       `json:"courses"`
	SkippedCourses int       `json:"skipped_courses"`
	Users          int       `json:"users"`
	Sent           int       `json:"sent"`
	RateLimited    int       `json:"rate_limited"`
	NoTemplate     int       `json:"no_template"`
	Failures       int       `json:"failures"`
	Previews       []Preview `json:"previews"`
	Log            string    `json:"log,omitempty"`
}

// Job is the scheduled reminder pass over every opted-in course
type Job struct {
	repos      Repositories
	settings   Settings
	validator  *UserValidator
	evaluator  *Evaluator
	dispatcher *Dispatcher
	locker     Locker
	log        *logrus.Logger
	clock      func() time.Time
}

func NewJob(repos Repositories, mailer Mailer, settings Settings) *Job {
	return &Job{
		repos:      repos,
		settings:   settings,
		validator:  NewUserValidator(repos.Users),
		evaluator:  NewEvaluator(repos, settings),
		dispatcher: NewDispatcher(repos.History, mailer, settings),
		log:        logrus.StandardLogger(),
		clock:      time.Now,
	}
}

// SetLocker makes real runs skip while another process holds the lock
func (j *Job) SetLocker(l Locker) {
	j.locker = l
}

// SetLogger replaces the base logger
func (j *Job) SetLogger(l *logrus.Logger) {
	j.log = l
}

// Run processes every opted-in course. Per-course and per-user failures are
// logged and counted; only failing to list the courses aborts the run.
func (j *Job) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	now := opts.Now
	if now.IsZero() {
		now = j.clock()
	}

	var buf bytes.Buffer
	r := &run{
		job:     j,
		opts:    opts,
		now:     now,
		summary: &Summary{RunID: uuid.NewString(), Now: now, DryRun: opts.DryRun},
	}
	r.log = j.runLogger(opts, &buf).WithField("run_id", r.summary.RunID)
	defer func() {
		if opts.DryRun {
			r.summary.Log = buf.String()
		}
	}()

	if !j.settings.Enabled {
		r.log.Info("Not enabled")
		r.summary.Skipped = true
		return r.summary, nil
	}

	if j.locker != nil && !opts.DryRun {
		locked, err := j.locker.TryLock(ctx)
		if err != nil {
			return r.summary, fmt.Errorf("acquire run lock: %w", err)
		}
		if !locked {
			r.log.Warn("another run is in progress, skipping")
			r.summary.Skipped = true
			return r.summary, nil
		}
		defer func() {
			if err := j.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				r.log.WithError(err).Error("failed to release run lock")
			}
		}()
	}

	r.log.Debugf("now = %d", now.Unix())

	settings, err := j.repos.Courses.EnabledSettings(ctx)
	if err != nil {
		return r.summary, err
	}
	if len(settings) == 0 {
		r.log.Info("not enabled on any course")
		return r.summary, nil
	}

	for _, cs := range settings {
		if err := ctx.Err(); err != nil {
			return r.summary, err
		}
		r.course(ctx, cs)
	}

	r.log.WithFields(logrus.Fields{
		"courses":  r.summary.Courses,
		"users":    r.summary.Users,
		"sent":     r.summary.Sent,
		"failures": r.summary.Failures,
	}).Info("Finished.")
	return r.summary, nil
}

// runLogger derives the logger of one run. Dry runs write to buf so the
// caller can show the log next to the previews.
func (j *Job) runLogger(opts RunOptions, buf *bytes.Buffer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(j.log.Formatter)
	l.SetLevel(j.log.GetLevel())
	l.ReplaceHooks(j.log.Hooks)
	l.SetOutput(j.log.Out)
	if opts.DryRun {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
		l.SetOutput(buf)
	}
	if opts.Verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

type run struct {
	job     *Job
	opts    RunOptions
	now     time.Time
	log     *logrus.Entry
	summary *Summary
}

func (r *run) skipCourse(log *logrus.Entry, reason string) {
	log.Info(reason)
	r.summary.SkippedCourses++
}

func (r *run) course(ctx context.Context, cs models.CourseSettings) {
	log := r.log.WithField("course_id", cs.CourseID)
	log.Infof("Start course %d", cs.CourseID)

	course, err := r.job.repos.Courses.GetCourse(ctx, cs.CourseID)
	if errors.Is(err, models.ErrNotFound) {
		r.skipCourse(log, "nonexistent course")
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to load course")
		r.summary.Failures++
		return
	}

	switch {
	case !course.Visible:
		r.skipCourse(log, "invisible course")
		return
	case !course.EnableCompletion:
		r.skipCourse(log, "not enable completion on course")
		return
	case r.now.Before(course.Start()):
		r.skipCourse(log, "course has not started")
		return
	case course.EndDate != 0 && r.now.After(course.End()):
		r.skipCourse(log, "course finalized")
		return
	}

	assignments, err := r.job.repos.Users.CourseRoleAssignments(ctx, course.ID)
	if err != nil {
		log.WithError(err).Error("failed to load role assignments")
		r.summary.Failures++
		return
	}
	userIDs := EligibleUsers(cs.AllowedRoles, assignments)
	if len(userIDs) == 0 {
		log.Debug("no enabled roles")
		r.summary.SkippedCourses++
		return
	}

	r.summary.Courses++
	for _, userID := range userIDs {
		r.user(ctx, log.WithField("user_id", userID), course, cs, userID)
	}
}

func (r *run) user(ctx context.Context, log *logrus.Entry, course *models.Course, cs models.CourseSettings, userID int64) {
	user, err := r.job.validator.Validate(ctx, userID)
	if errors.Is(err, ErrUserRejected) {
		log.Info(err.Error())
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to load user")
		r.summary.Failures++
		return
	}
	r.summary.Users++

	eval, err := r.job.evaluator.Evaluate(ctx, log, Subject{
		Course:             course,
		User:               user,
		Settings:           cs,
		Now:                r.now,
		InactivityDisabled: r.opts.DryRun && r.opts.DisableInactivity,
	})
	if err != nil {
		log.WithError(err).Error("failed to evaluate reminders")
		r.summary.Failures++
		return
	}

	for _, t := range eval.Fired() {
		log.Debugf("send_email %s", t)
		res, err := r.job.dispatcher.Dispatch(ctx, log, Request{
			Type:            t,
			Course:          course,
			User:            user,
			Settings:        cs,
			ListHTML:        eval.List(t),
			Now:             r.now,
			DryRun:          r.opts.DryRun,
			IgnoreRateLimit: r.opts.IgnoreRateLimit,
		})
		r.record(res)
		if err != nil {
			log.WithError(err).Errorf("failed to dispatch %s reminder", t)
			r.summary.Failures++
		}
	}
}

func (r *run) record(res Result) {
	switch res.Outcome {
	case OutcomeSent:
		r.summary.Sent++
	case OutcomePreviewed:
		r.summary.Previews = append(r.summary.Previews, *res.Preview)
	case OutcomeRateLimited:
		r.summary.RateLimited++
	case OutcomeNoTemplate:
		r.summary.NoTemplate++
	}
}
