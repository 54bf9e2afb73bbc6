package repository

import (
	"context"
	"errors"
	"fmt"

	"advancedreminders/internal/models"

	"gorm.io/gorm"
)

// HistoryRepository is the append-only log of sent reminders
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// LastSent returns the most recent send of the given type, nil when none
func (r *HistoryRepository) LastSent(ctx context.Context, courseID, userID int64, t models.TriggerType) (*models.SentEmail, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrUnknownTrigger, t)
	}
	var sent models.SentEmail
	err := r.db.WithContext(ctx).
		Where("courseid = ? AND userid = ? AND type = ?", courseID, userID, t).
		Order("time DESC, id DESC").
		Take(&sent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last %s reminder of user %d: %w", t, userID, err)
	}
	return &sent, nil
}

// Record appends a send to the history
func (r *HistoryRepository) Record(ctx context.Context, sent *models.SentEmail) error {
	if !sent.Type.Valid() {
		return fmt.Errorf("%w: %d", models.ErrUnknownTrigger, sent.Type)
	}
	if err := r.db.WithContext(ctx).Create(sent).Error; err != nil {
		return fmt.Errorf("failed to record %s reminder of user %d: %w", sent.Type, sent.UserID, err)
	}
	return nil
}
