package repository

import (
	"context"
	"errors"
	"fmt"

	"advancedreminders/internal/models"

	"gorm.io/gorm"
)

// CompletionRepository reads course and activity completion records
type CompletionRepository struct {
	db *gorm.DB
}

func NewCompletionRepository(db *gorm.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// IsCourseComplete reports whether the user has completed the course
func (r *CompletionRepository) IsCourseComplete(ctx context.Context, courseID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CourseCompletion{}).
		Where("course = ? AND userid = ? AND timecompleted IS NOT NULL", courseID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to get course completion of user %d: %w", userID, err)
	}
	return count > 0, nil
}

// ActivityCompletion returns the user's completion of an activity. A missing
// record means the activity is incomplete.
func (r *CompletionRepository) ActivityCompletion(ctx context.Context, activityID, userID int64) (models.ActivityCompletion, error) {
	var completion models.ActivityCompletion
	err := r.db.WithContext(ctx).
		Where("coursemoduleid = ? AND userid = ?", activityID, userID).
		Take(&completion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ActivityCompletion{
			CoursemoduleID:  activityID,
			UserID:          userID,
			CompletionState: models.CompletionIncomplete,
		}, nil
	}
	if err != nil {
		return models.ActivityCompletion{}, fmt.Errorf("failed to get completion of activity %d: %w", activityID, err)
	}
	return completion, nil
}
