package repository

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/annotation-api/internal/database"
	"github.com/yukikurage/annotation-api/internal/models"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create creates a new task
func (r *GormTaskRepository) Create(task *models.Task) error {
	return errors.WithStack(r.db.Omit(clause.Associations).Create(task).Error)
}

// FindByID finds a task by ID with optional preloading
func (r *GormTaskRepository) FindByID(id uint64, preload ...string) (*models.Task, error) {
	var task models.Task
	query := r.db

	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.First(&task, id).Error; err != nil {
		return nil, errors.Wrapf(err, "find task %d", id)
	}

	return &task, nil
}

// FindByIDForUpdate finds a task and locks its row for the transaction
func (r *GormTaskRepository) FindByIDForUpdate(id uint64) (*models.Task, error) {
	var task models.Task
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, id).Error; err != nil {
		return nil, errors.Wrapf(err, "lock task %d", id)
	}
	return &task, nil
}

func (r *GormTaskRepository) filtered(filter TaskFilter) *gorm.DB {
	query := r.db.Model(&models.Task{})

	if filter.Status != nil {
		query = query.Where("tasks.status = ?", *filter.Status)
	}
	if filter.AssignedUserID != nil {
		assignmentSubQuery := r.db.Model(&models.TaskAssignment{}).
			Select("1").
			Where("task_assignments.task_id = tasks.id").
			Where("task_assignments.user_id = ?", *filter.AssignedUserID).
			Where("task_assignments.is_active = ?", true)
		query = query.Where("EXISTS (?)", assignmentSubQuery)
	}

	return query
}

// List retrieves tasks with filtering and pagination
func (r *GormTaskRepository) List(filter TaskFilter) ([]models.Task, int64, error) {
	var tasks []models.Task

	var total int64
	if err := r.filtered(filter).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count tasks")
	}

	listQuery := r.filtered(filter).
		Scopes(database.Paginate(filter.Page, filter.PageSize)).
		Order("tasks.created_at DESC").
		Order("tasks.id DESC")

	if err := listQuery.Preload("Creator").Find(&tasks).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list tasks")
	}

	return tasks, total, nil
}

func (r *GormTaskRepository) CountByStatus(filter TaskFilter) (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus
		Count  int64
	}
	filter.Status = nil
	if err := r.filtered(filter).
		Select("tasks.status AS status, COUNT(*) AS count").
		Group("tasks.status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "count tasks by status")
	}

	counts := make(map[models.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Update updates a task
func (r *GormTaskRepository) Update(task *models.Task) error {
	return errors.WithStack(r.db.Omit(clause.Associations).Save(task).Error)
}

// Delete removes a task and everything it owns
func (r *GormTaskRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
			return errors.Wrap(err, "delete annotations")
		}
		if err := tx.Where("task_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return errors.Wrap(err, "delete images")
		}
		if err := tx.Where("task_id = ?", id).Delete(&models.TaskAssignment{}).Error; err != nil {
			return errors.Wrap(err, "delete assignments")
		}

		return errors.Wrap(tx.Delete(&models.Task{}, id).Error, "delete task")
	})
}

// UpsertAssignments assigns multiple users to a task
func (r *GormTaskRepository) UpsertAssignments(taskID uint64, userIDs []uint64, role models.AssignmentRole, assignedImages int) error {
	now := time.Now()
	assignments := make([]models.TaskAssignment, len(userIDs))

	for i, userID := range userIDs {
		assignments[i] = models.TaskAssignment{
			TaskID:              taskID,
			UserID:              userID,
			Role:                role,
			IsActive:            true,
			AssignedImagesCount: assignedImages,
			AssignedAt:          now,
		}
	}

	return errors.WithStack(r.db.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"role":                  role,
				"is_active":             true,
				"assigned_images_count": assignedImages,
				"updated_at":            now,
			}),
		}).
		Create(&assignments).Error)
}

// DeactivateAssignments removes user assignments from a task without losing their counters
func (r *GormTaskRepository) DeactivateAssignments(taskID uint64, userIDs []uint64) error {
	return errors.WithStack(r.db.Model(&models.TaskAssignment{}).
		Where("task_id = ? AND user_id IN ?", taskID, userIDs).
		Update("is_active", false).Error)
}

// FindAssignment finds a specific task assignment
func (r *GormTaskRepository) FindAssignment(taskID, userID uint64) (*models.TaskAssignment, error) {
	var assignment models.TaskAssignment
	if err := r.db.Where("task_id = ? AND user_id = ?", taskID, userID).
		First(&assignment).Error; err != nil {
		return nil, errors.Wrapf(err, "find assignment %d/%d", taskID, userID)
	}
	return &assignment, nil
}

func (r *GormTaskRepository) FindActiveAssignment(taskID, userID uint64, role models.AssignmentRole) (*models.TaskAssignment, error) {
	var assignment models.TaskAssignment
	if err := r.db.Where("task_id = ? AND user_id = ? AND role = ? AND is_active = ?", taskID, userID, role, true).
		First(&assignment).Error; err != nil {
		return nil, errors.Wrapf(err, "find active %s assignment %d/%d", role, taskID, userID)
	}
	return &assignment, nil
}

// ListAssignments lists a task's assignments with users loaded
func (r *GormTaskRepository) ListAssignments(taskID uint64) ([]models.TaskAssignment, error) {
	var assignments []models.TaskAssignment
	if err := r.db.Preload("User").
		Where("task_id = ?", taskID).
		Order("assigned_at ASC").Order("user_id ASC").
		Find(&assignments).Error; err != nil {
		return nil, errors.Wrapf(err, "list assignments of task %d", taskID)
	}
	return assignments, nil
}

// UpdateAssignment updates an assignment
func (r *GormTaskRepository) UpdateAssignment(assignment *models.TaskAssignment) error {
	return errors.WithStack(r.db.Omit(clause.Associations).Save(assignment).Error)
}

func (r *GormTaskRepository) SetAssignedImagesCount(taskID uint64, count int) error {
	return errors.WithStack(r.db.Model(&models.TaskAssignment{}).
		Where("task_id = ? AND role = ?", taskID, models.AssignmentRoleAnnotator).
		Update("assigned_images_count", count).Error)
}
