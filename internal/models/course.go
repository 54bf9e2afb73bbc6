package models

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Completion states as stored by the host completion tracking
const (
	CompletionIncomplete   = 0
	CompletionComplete     = 1
	CompletionCompletePass = 2
	CompletionCompleteFail = 3
)

// UnixTime converts a host timestamp in unix seconds. Zero means "not set"
// and maps to the zero time.
func UnixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Course is the host course record
type Course struct {
	ID               int64  `gorm:"primaryKey" json:"id"`
	FullName         string `gorm:"column:fullname" json:"full_name"`
	ShortName        string `gorm:"column:shortname" json:"short_name"`
	Visible          bool   `gorm:"column:visible" json:"visible"`
	EnableCompletion bool   `gorm:"column:enablecompletion" json:"enable_completion"`
	StartDate        int64  `gorm:"column:startdate" json:"start_date"`
	EndDate          int64  `gorm:"column:enddate" json:"end_date"`
}

func (Course) TableName() string {
	return "course"
}

// Start returns the course start instant
func (c Course) Start() time.Time {
	return UnixTime(c.StartDate)
}

// End returns the course end instant, zero when the course has no end date
func (c Course) End() time.Time {
	return UnixTime(c.EndDate)
}

// CourseSettings holds the reminder configuration of one course.
// Thresholds are kept as text because course administrators may leave them
// blank or type something that is not a number; see Days.
type CourseSettings struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID      int64  `gorm:"column:courseid;not null;uniqueIndex" json:"course_id"`
	CourseEnabled bool   `gorm:"column:courseenabled;not null;default:false;index" json:"course_enabled"`
	AllowedRoles  string `gorm:"column:allowedroles;size:255" json:"allowed_roles"`

	MinInactivity   string `gorm:"column:mininactivity;size:10" json:"min_inactivity"`
	MinActivities   string `gorm:"column:minactivities;size:10" json:"min_activities"`
	MinNoCompletion string `gorm:"column:minnocompletion;size:10" json:"min_no_completion"`

	IntervalInactivity   int `gorm:"column:intervalinactivity;not null;default:0" json:"interval_inactivity"`
	IntervalActivities   int `gorm:"column:intervalactivities;not null;default:0" json:"interval_activities"`
	IntervalNoCompletion int `gorm:"column:intervalnocompletion;not null;default:0" json:"interval_no_completion"`

	// Localized templates: {"en": {"title": "...", "body": "..."}, ...}
	TextInactivity   datatypes.JSON `gorm:"column:textinactivity" json:"text_inactivity"`
	TextActivities   datatypes.JSON `gorm:"column:textactivities" json:"text_activities"`
	TextNoCompletion datatypes.JSON `gorm:"column:textnocompletion" json:"text_no_completion"`
}

func (CourseSettings) TableName() string {
	return "local_advancedreminders_cs"
}

// Thresholds returns the raw day thresholds keyed by trigger type
func (s CourseSettings) Thresholds() map[TriggerType]string {
	return map[TriggerType]string{
		TriggerInactivity:   s.MinInactivity,
		TriggerActivities:   s.MinActivities,
		TriggerNoCompletion: s.MinNoCompletion,
	}
}

// ResendIntervals returns the minimum days between two sends, keyed by trigger type
func (s CourseSettings) ResendIntervals() map[TriggerType]int {
	return map[TriggerType]int{
		TriggerInactivity:   s.IntervalInactivity,
		TriggerActivities:   s.IntervalActivities,
		TriggerNoCompletion: s.IntervalNoCompletion,
	}
}

// Templates returns the localized template documents keyed by trigger type
func (s CourseSettings) Templates() map[TriggerType]datatypes.JSON {
	return map[TriggerType]datatypes.JSON{
		TriggerInactivity:   s.TextInactivity,
		TriggerActivities:   s.TextActivities,
		TriggerNoCompletion: s.TextNoCompletion,
	}
}

// Days parses the threshold configured for t. It reports false when the
// value is blank, not a number, or not positive.
func (s CourseSettings) Days(t TriggerType) (float64, bool) {
	return PositiveDays(s.Thresholds()[t])
}

// PositiveDays parses a day count and reports whether it is a positive number
func PositiveDays(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	days, err := strconv.ParseFloat(raw, 64)
	if err != nil || days <= 0 {
		return 0, false
	}
	return days, true
}

// DaysToDuration converts a (possibly fractional) number of days
func DaysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}

// Activity is a completion-tracked course module. The module type comes from
// the host "modules" table; the name and deadlines come from the module's own
// instance table (assign, quiz, ...) and are filled in by the repository.
type Activity struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	CourseID   int64  `gorm:"column:course;index" json:"course_id"`
	Instance   int64  `gorm:"column:instance" json:"instance"`
	ModName    string `gorm:"column:modname" json:"mod_name"`
	Visible    bool   `gorm:"column:visible" json:"visible"`
	Completion int    `gorm:"column:completion" json:"completion"`

	Name                     string `gorm:"-" json:"name"`
	CutoffDate               int64  `gorm:"-" json:"cutoff_date"`
	DueDate                  int64  `gorm:"-" json:"due_date"`
	AllowSubmissionsFromDate int64  `gorm:"-" json:"allow_submissions_from_date"`

	// UserVisible is resolved per user by the repository
	UserVisible bool `gorm:"-" json:"user_visible"`
}

func (Activity) TableName() string {
	return "course_modules"
}

// Reference returns the first deadline set on the activity: cutoff, due,
// then available-from. It reports false when none is set.
func (a Activity) Reference() (time.Time, bool) {
	for _, ts := range []int64{a.CutoffDate, a.DueDate, a.AllowSubmissionsFromDate} {
		if ts != 0 {
			return UnixTime(ts), true
		}
	}
	return time.Time{}, false
}

// ActivityCompletion is the completion state of one activity for one user
type ActivityCompletion struct {
	ID              int64 `gorm:"primaryKey" json:"id"`
	CoursemoduleID  int64 `gorm:"column:coursemoduleid;index" json:"coursemodule_id"`
	UserID          int64 `gorm:"column:userid;index" json:"user_id"`
	CompletionState int   `gorm:"column:completionstate" json:"completion_state"`
	TimeModified    int64 `gorm:"column:timemodified" json:"time_modified"`
}

func (ActivityCompletion) TableName() string {
	return "course_modules_completion"
}

// Incomplete reports whether the activity still has to be done
func (c ActivityCompletion) Incomplete() bool {
	return c.CompletionState == CompletionIncomplete
}

// CourseCompletion is the course-level completion record of a user
type CourseCompletion struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	UserID        int64  `gorm:"column:userid;index" json:"user_id"`
	CourseID      int64  `gorm:"column:course;index" json:"course_id"`
	TimeCompleted *int64 `gorm:"column:timecompleted" json:"time_completed"`
}

func (CourseCompletion) TableName() string {
	return "course_completions"
}
