package repository

import (
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/annotation-api/internal/database"
	"github.com/yukikurage/annotation-api/internal/models"
)

// GormImageRepository is a GORM implementation of ImageRepository
type GormImageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new ImageRepository
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &GormImageRepository{db: db}
}

// Create creates a new image
func (r *GormImageRepository) Create(image *models.Image) error {
	return errors.WithStack(r.db.Omit(clause.Associations).Create(image).Error)
}

// FindByID finds an image by ID
func (r *GormImageRepository) FindByID(id uint64) (*models.Image, error) {
	var image models.Image
	if err := r.db.First(&image, id).Error; err != nil {
		return nil, errors.Wrapf(err, "find image %d", id)
	}
	return &image, nil
}

// FindByIDForUpdate takes a row lock on the image. sqlite ignores the
// locking clause and serializes writers instead.
func (r *GormImageRepository) FindByIDForUpdate(id uint64) (*models.Image, error) {
	var image models.Image
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&image, id).Error; err != nil {
		return nil, errors.Wrapf(err, "lock image %d", id)
	}
	return &image, nil
}

// ListByTask lists a task's images in upload order
func (r *GormImageRepository) ListByTask(taskID uint64, page, pageSize int) ([]models.Image, int64, error) {
	query := r.db.Model(&models.Image{}).Where("task_id = ?", taskID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrapf(err, "count images of task %d", taskID)
	}

	listQuery := r.db.Where("task_id = ?", taskID).Scopes(database.Paginate(page, pageSize)).Order("id ASC")

	var images []models.Image
	if err := listQuery.Find(&images).Error; err != nil {
		return nil, 0, errors.Wrapf(err, "list images of task %d", taskID)
	}
	return images, total, nil
}

// Update updates an image
func (r *GormImageRepository) Update(image *models.Image) error {
	return errors.WithStack(r.db.Omit(clause.Associations).Save(image).Error)
}

// Delete deletes an image
func (r *GormImageRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
			return errors.Wrapf(err, "delete annotations of image %d", id)
		}
		return errors.Wrapf(tx.Delete(&models.Image{}, id).Error, "delete image %d", id)
	})
}

// Counters returns the total, annotated and reviewed image counts of a task
func (r *GormImageRepository) Counters(taskID uint64) (total, annotated, reviewed int64, err error) {
	var row struct {
		Total     int64
		Annotated int64
		Reviewed  int64
	}
	err = r.db.Model(&models.Image{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN is_annotated THEN 1 ELSE 0 END), 0) AS annotated, "+
				"COALESCE(SUM(CASE WHEN is_reviewed THEN 1 ELSE 0 END), 0) AS reviewed").
		Where("task_id = ?", taskID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "count images of task %d", taskID)
	}
	return row.Total, row.Annotated, row.Reviewed, nil
}

func (r *GormImageRepository) CountByStatus(taskID uint64) (map[models.ImageStatus]int64, error) {
	var rows []struct {
		AnnotationStatus models.ImageStatus
		Count            int64
	}
	if err := r.db.Model(&models.Image{}).
		Select("annotation_status, COUNT(*) AS count").
		Where("task_id = ?", taskID).
		Group("annotation_status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "count image statuses of task %d", taskID)
	}

	counts := make(map[models.ImageStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.AnnotationStatus] = row.Count
	}
	return counts, nil
}

// CountCompletedBy scans the completed sets in Go; JSON containment
// differs across the supported dialects.
func (r *GormImageRepository) CountCompletedBy(taskID, userID uint64) (int64, error) {
	var sets []datatypes.JSONSlice[uint64]
	if err := r.db.Model(&models.Image{}).
		Where("task_id = ?", taskID).
		Pluck("completed_by_users", &sets).Error; err != nil {
		return 0, errors.Wrapf(err, "load completed sets of task %d", taskID)
	}

	var count int64
	for _, set := range sets {
		for _, id := range set {
			if id == userID {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r *GormImageRepository) SetRequiredCountWhereUnset(taskID uint64, required int) error {
	return errors.WithStack(r.db.Model(&models.Image{}).
		Where("task_id = ? AND required_annotation_count = 0", taskID).
		Update("required_annotation_count", required).Error)
}

func (r *GormImageRepository) FilePaths(taskID uint64) ([]string, error) {
	var rows []struct {
		FilePath      string
		ThumbnailPath string
	}
	if err := r.db.Model(&models.Image{}).
		Select("file_path, thumbnail_path").
		Where("task_id = ?", taskID).
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "load file paths of task %d", taskID)
	}

	paths := make([]string, 0, len(rows)*2)
	for _, row := range rows {
		if row.FilePath != "" {
			paths = append(paths, row.FilePath)
		}
		if row.ThumbnailPath != "" {
			paths = append(paths, row.ThumbnailPath)
		}
	}
	return paths, nil
}
