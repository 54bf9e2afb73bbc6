package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"advancedreminders/internal/models"

	"gorm.io/gorm"
)

// UserRepository reads users, their course roles and their course activity
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser returns the user or ErrNotFound
func (r *UserRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, notFound(err))
	}
	return &user, nil
}

// CourseRoleAssignments lists the role short names held in the course context
func (r *UserRepository) CourseRoleAssignments(ctx context.Context, courseID int64) ([]models.RoleAssignment, error) {
	var assignments []models.RoleAssignment
	err := r.db.WithContext(ctx).
		Table("role_assignments ra").
		Select("ra.userid AS user_id, r.shortname AS short_name").
		Joins("JOIN role r ON r.id = ra.roleid").
		Joins("JOIN context ctx ON ctx.id = ra.contextid").
		Where("ctx.contextlevel = ? AND ctx.instanceid = ?", courseContextLevel, courseID).
		Order("ra.id").
		Scan(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments of course %d: %w", courseID, err)
	}
	return assignments, nil
}

// LastAccess returns the last recorded course access, zero when there is none
func (r *UserRepository) LastAccess(ctx context.Context, courseID, userID int64) (time.Time, error) {
	var ts sql.NullInt64
	err := r.db.WithContext(ctx).
		Table("user_lastaccess").
		Select("MAX(timeaccess)").
		Where("courseid = ? AND userid = ?", courseID, userID).
		Scan(&ts).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last access of user %d: %w", userID, err)
	}
	return models.UnixTime(ts.Int64), nil
}

// FirstEnrolment returns the creation time of the user's earliest active
// enrolment in the course, zero when there is none
func (r *UserRepository) FirstEnrolment(ctx context.Context, courseID, userID int64) (time.Time, error) {
	var ts sql.NullInt64
	err := r.db.WithContext(ctx).
		Table("user_enrolments ue").
		Select("MIN(ue.timecreated)").
		Joins("JOIN enrol e ON e.id = ue.enrolid AND e.courseid = ?", courseID).
		Joins(`JOIN "user" u ON u.id = ue.userid`).
		Where("ue.userid = ? AND ue.status = ? AND e.status = ? AND u.deleted = 0", userID, statusActive, statusActive).
		Scan(&ts).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get first enrolment of user %d: %w", userID, err)
	}
	return models.UnixTime(ts.Int64), nil
}
