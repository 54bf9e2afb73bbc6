// Package repository reads the host LMS tables and maintains the reminder
// send history through GORM.
package repository

import (
	"errors"

	"advancedreminders/internal/models"

	"gorm.io/gorm"
)

// courseContextLevel is the host context level of a course
const courseContextLevel = 50

// Active status shared by enrol instances and user enrolments
const statusActive = 0

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}
