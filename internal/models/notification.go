package models

import "time"

// SentEmail is one row of the send history. The latest row per
// (course, user, type) gates the next reminder of that type.
type SentEmail struct {
	ID       int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID int64       `gorm:"column:courseid;not null;index:idx_se_course_user_type" json:"course_id"`
	UserID   int64       `gorm:"column:userid;not null;index:idx_se_course_user_type" json:"user_id"`
	Type     TriggerType `gorm:"column:type;not null;index:idx_se_course_user_type" json:"type"`
	Time     int64       `gorm:"column:time;not null" json:"time"` // unix seconds
}

// TableName specifies the table name for the SentEmail model
func (SentEmail) TableName() string {
	return "local_advancedreminders_se"
}

// SentAt returns the send instant
func (s SentEmail) SentAt() time.Time {
	return UnixTime(s.Time)
}
