package repository

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/annotation-api/internal/database"
	"github.com/yukikurage/annotation-api/internal/models"
)

// GormAnnotationRepository is a GORM implementation of AnnotationRepository
type GormAnnotationRepository struct {
	db *gorm.DB
}

// NewAnnotationRepository creates a new AnnotationRepository
func NewAnnotationRepository(db *gorm.DB) AnnotationRepository {
	return &GormAnnotationRepository{db: db}
}

// currentIDs selects the latest row ID per (image, annotator) among rows
// matching scope. IDs grow monotonically, so the highest ID is the most
// recently created row.
func (r *GormAnnotationRepository) currentIDs(scope func(*gorm.DB) *gorm.DB) *gorm.DB {
	return r.db.Model(&models.Annotation{}).
		Select("MAX(annotations.id)").
		Scopes(scope).
		Group("annotations.image_id, annotations.annotator_id")
}

func byImage(imageID uint64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("annotations.image_id = ?", imageID) }
}

func byTask(taskID uint64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("annotations.task_id = ?", taskID) }
}

func allRows(db *gorm.DB) *gorm.DB { return db }

// Create creates a new annotation
func (r *GormAnnotationRepository) Create(annotation *models.Annotation) error {
	return errors.WithStack(r.db.Omit(clause.Associations).Create(annotation).Error)
}

// FindByID finds an annotation by ID with optional preloading
func (r *GormAnnotationRepository) FindByID(id uint64, preload ...string) (*models.Annotation, error) {
	var annotation models.Annotation
	query := r.db
	for _, p := range preload {
		query = query.Preload(p)
	}
	if err := query.First(&annotation, id).Error; err != nil {
		return nil, errors.Wrapf(err, "find annotation %d", id)
	}
	return &annotation, nil
}

// Update updates an annotation
func (r *GormAnnotationRepository) Update(annotation *models.Annotation) error {
	return errors.WithStack(r.db.Omit(clause.Associations).Save(annotation).Error)
}

// Delete deletes an annotation
func (r *GormAnnotationRepository) Delete(id uint64) error {
	return errors.Wrapf(r.db.Delete(&models.Annotation{}, id).Error, "delete annotation %d", id)
}

// DeleteRejectedByAuthor deletes an author's rejected rows on an image
func (r *GormAnnotationRepository) DeleteRejectedByAuthor(imageID, authorID uint64) (int64, error) {
	result := r.db.
		Where("image_id = ? AND annotator_id = ? AND status = ?", imageID, authorID, models.AnnotationStatusRejected).
		Delete(&models.Annotation{})
	if result.Error != nil {
		return 0, errors.Wrapf(result.Error, "delete rejected annotations of image %d", imageID)
	}
	return result.RowsAffected, nil
}

// ListCurrentByImage returns the latest row of each annotator on an image
func (r *GormAnnotationRepository) ListCurrentByImage(imageID uint64) ([]models.Annotation, error) {
	var annotations []models.Annotation
	if err := r.db.
		Where("id IN (?)", r.currentIDs(byImage(imageID))).
		Order("id ASC").
		Find(&annotations).Error; err != nil {
		return nil, errors.Wrapf(err, "list current annotations of image %d", imageID)
	}
	return annotations, nil
}

func (r *GormAnnotationRepository) ListForExport(taskID uint64, statuses []models.AnnotationStatus, currentOnly bool) ([]models.Annotation, error) {
	query := r.db.Preload("Annotator").Preload("Reviewer").Where("annotations.task_id = ?", taskID)
	if currentOnly {
		query = query.Where("annotations.id IN (?)", r.currentIDs(byTask(taskID)))
	}
	if len(statuses) > 0 {
		query = query.Where("annotations.status IN ?", statuses)
	}

	var annotations []models.Annotation
	if err := query.Order("annotations.image_id ASC").Order("annotations.id ASC").Find(&annotations).Error; err != nil {
		return nil, errors.Wrapf(err, "list annotations of task %d for export", taskID)
	}
	return annotations, nil
}

func (r *GormAnnotationRepository) CurrentIDs(taskID uint64) ([]uint64, error) {
	var ids []uint64
	if err := r.currentIDs(byTask(taskID)).Pluck("MAX(annotations.id)", &ids).Error; err != nil {
		return nil, errors.Wrapf(err, "list current annotation ids of task %d", taskID)
	}
	return ids, nil
}

func (r *GormAnnotationRepository) filtered(filter AnnotationFilter) *gorm.DB {
	query := r.db.Model(&models.Annotation{})

	if filter.ImageID != nil {
		query = query.Where("annotations.image_id = ?", *filter.ImageID)
	}
	if filter.TaskID != nil {
		query = query.Where("annotations.task_id = ?", *filter.TaskID)
	}
	if filter.AnnotatorID != nil {
		query = query.Where("annotations.annotator_id = ?", *filter.AnnotatorID)
	}
	if filter.Status != nil {
		query = query.Where("annotations.status = ?", *filter.Status)
	}
	if filter.ReviewerUserID != nil {
		reviewerSubQuery := r.db.Model(&models.TaskAssignment{}).
			Select("1").
			Where("task_assignments.task_id = annotations.task_id").
			Where("task_assignments.user_id = ?", *filter.ReviewerUserID).
			Where("task_assignments.role = ?", models.AssignmentRoleReviewer).
			Where("task_assignments.is_active = ?", true)
		query = query.Where("EXISTS (?)", reviewerSubQuery)
	}
	if filter.CurrentOnly {
		scope := allRows
		if filter.ImageID != nil {
			scope = byImage(*filter.ImageID)
		} else if filter.TaskID != nil {
			scope = byTask(*filter.TaskID)
		}
		query = query.Where("annotations.id IN (?)", r.currentIDs(scope))
	}

	return query
}

// List retrieves annotations with filtering and pagination
func (r *GormAnnotationRepository) List(filter AnnotationFilter) ([]models.Annotation, int64, error) {
	var total int64
	if err := r.filtered(filter).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count annotations")
	}

	listQuery := r.filtered(filter).
		Scopes(database.Paginate(filter.Page, filter.PageSize)).
		Preload("Annotator").
		Preload("Reviewer").
		Order("annotations.id DESC")

	var annotations []models.Annotation
	if err := listQuery.Find(&annotations).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list annotations")
	}
	return annotations, total, nil
}

func (r *GormAnnotationRepository) StatusCountsByAnnotator(taskID uint64) ([]AnnotatorStatusCount, error) {
	var rows []AnnotatorStatusCount
	if err := r.db.Model(&models.Annotation{}).
		Select("annotator_id, status, COUNT(*) AS count").
		Where("id IN (?)", r.currentIDs(byTask(taskID))).
		Group("annotator_id, status").
		Order("annotator_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "count annotation statuses of task %d", taskID)
	}
	return rows, nil
}

func (r *GormAnnotationRepository) ReviewCounts(reviewerID *uint64, since time.Time) (map[models.AnnotationStatus]int64, error) {
	query := r.db.Model(&models.Annotation{}).
		Select("status, COUNT(*) AS count").
		Where("reviewer_id IS NOT NULL AND reviewed_at >= ?", since).
		Where("status IN ?", []models.AnnotationStatus{models.AnnotationStatusApproved, models.AnnotationStatusRejected})
	if reviewerID != nil {
		query = query.Where("reviewer_id = ?", *reviewerID)
	}

	var rows []struct {
		Status models.AnnotationStatus
		Count  int64
	}
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "count review decisions")
	}

	counts := make(map[models.AnnotationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
