package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"advancedreminders/internal/models"

	"gorm.io/gorm"
)

// CourseRepository reads courses, their activities and the per-course reminder settings
type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// EnabledSettings returns the settings of every course that opted in
func (r *CourseRepository) EnabledSettings(ctx context.Context) ([]models.CourseSettings, error) {
	var settings []models.CourseSettings
	err := r.db.WithContext(ctx).
		Where("courseenabled = ?", true).
		Order("courseid").
		Find(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled course settings: %w", err)
	}
	return settings, nil
}

// GetCourse returns the course or ErrNotFound
func (r *CourseRepository) GetCourse(ctx context.Context, id int64) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get course %d: %w", id, notFound(err))
	}
	return &course, nil
}

// Activities returns the completion-tracked activities of a course. The
// module type comes from "modules", the name and deadlines from each module's
// instance table, and UserVisible is resolved for userID.
func (r *CourseRepository) Activities(ctx context.Context, courseID, userID int64) ([]models.Activity, error) {
	var activities []models.Activity
	err := r.db.WithContext(ctx).
		Table("course_modules cm").
		Select("cm.id, cm.course, cm.instance, cm.visible, cm.completion, m.name AS modname").
		Joins("JOIN modules m ON m.id = cm.module").
		Where("cm.course = ? AND cm.completion <> 0", courseID).
		Order("cm.id").
		Scan(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activities of course %d: %w", courseID, err)
	}
	if len(activities) == 0 {
		return activities, nil
	}

	if err := r.resolveVisibility(ctx, activities, userID); err != nil {
		return nil, err
	}
	if err := r.resolveInstances(ctx, activities); err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *CourseRepository) resolveVisibility(ctx context.Context, activities []models.Activity, userID int64) error {
	ids := make([]int64, 0, len(activities))
	for _, a := range activities {
		ids = append(ids, a.ID)
	}

	var hidden []int64
	err := r.db.WithContext(ctx).
		Table("course_modules_hidden").
		Where("userid = ? AND cmid IN ?", userID, ids).
		Pluck("cmid", &hidden).Error
	if err != nil {
		return fmt.Errorf("failed to resolve activity visibility for user %d: %w", userID, err)
	}

	hiddenSet := make(map[int64]struct{}, len(hidden))
	for _, id := range hidden {
		hiddenSet[id] = struct{}{}
	}
	for i := range activities {
		_, isHidden := hiddenSet[activities[i].ID]
		activities[i].UserVisible = activities[i].Visible && !isHidden
	}
	return nil
}

// moduleTable guards the module names used as table names
var moduleTable = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// resolveInstances loads the name and deadline columns of every activity from
// its module's instance table. Columns a module does not have stay zero.
func (r *CourseRepository) resolveInstances(ctx context.Context, activities []models.Activity) error {
	byModule := make(map[string][]int)
	for i, a := range activities {
		byModule[a.ModName] = append(byModule[a.ModName], i)
	}
	modules := make([]string, 0, len(byModule))
	for mod := range byModule {
		modules = append(modules, mod)
	}
	sort.Strings(modules)

	for _, mod := range modules {
		if !moduleTable.MatchString(mod) {
			continue
		}
		idx := byModule[mod]
		ids := make([]int64, 0, len(idx))
		for _, i := range idx {
			ids = append(ids, activities[i].Instance)
		}

		var rows []map[string]interface{}
		err := r.db.WithContext(ctx).Table(mod).Where("id IN ?", ids).Find(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to load %s instances: %w", mod, err)
		}

		byID := make(map[int64]map[string]interface{}, len(rows))
		for _, row := range rows {
			byID[toInt64(row["id"])] = row
		}
		for _, i := range idx {
			row, ok := byID[activities[i].Instance]
			if !ok {
				continue
			}
			a := &activities[i]
			a.Name = toString(row["name"])
			a.CutoffDate = toInt64(row["cutoffdate"])
			a.DueDate = toInt64(row["duedate"])
			a.AllowSubmissionsFromDate = toInt64(row["allowsubmissionsfromdate"])
		}
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}
