package repository

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/yukikurage/annotation-api/internal/database"
	"github.com/yukikurage/annotation-api/internal/models"
)

// GormExportJobRepository is a GORM implementation of ExportJobRepository
type GormExportJobRepository struct {
	db *gorm.DB
}

// NewExportJobRepository creates a new ExportJobRepository
func NewExportJobRepository(db *gorm.DB) ExportJobRepository {
	return &GormExportJobRepository{db: db}
}

// Create creates a new export job
func (r *GormExportJobRepository) Create(job *models.ExportJob) error {
	return errors.WithStack(r.db.Create(job).Error)
}

// FindByID finds an export job by ID
func (r *GormExportJobRepository) FindByID(id string) (*models.ExportJob, error) {
	var job models.ExportJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, errors.Wrapf(err, "find export job %s", id)
	}
	return &job, nil
}

// Update saves every column of a job
func (r *GormExportJobRepository) Update(job *models.ExportJob) error {
	return errors.WithStack(r.db.Save(job).Error)
}

// Claim marks an unclaimed processing job as owned by workerID. It reports
// false when another worker got there first.
func (r *GormExportJobRepository) Claim(id, workerID string, at time.Time) (bool, error) {
	result := r.db.Model(&models.ExportJob{}).
		Where("id = ? AND status = ? AND worker_id = ?", id, models.ExportStatusProcessing, "").
		Updates(map[string]interface{}{
			"worker_id":  workerID,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "claim export job %s", id)
	}
	return result.RowsAffected == 1, nil
}

// UpdateProgress sets the progress percentage
func (r *GormExportJobRepository) UpdateProgress(id string, progress int) error {
	return errors.Wrapf(r.db.Model(&models.ExportJob{}).
		Where("id = ?", id).
		Update("progress", progress).Error, "update progress of export job %s", id)
}

// ListStale lists processing jobs that are unclaimed or were claimed before cutoff
func (r *GormExportJobRepository) ListStale(cutoff time.Time) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	if err := r.db.
		Where("status = ?", models.ExportStatusProcessing).
		Where("worker_id = ? OR started_at < ?", "", cutoff).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "list stale export jobs")
	}
	return jobs, nil
}

// Release clears the claim on a processing job
func (r *GormExportJobRepository) Release(id string) error {
	return errors.Wrapf(r.db.Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", id, models.ExportStatusProcessing).
		Updates(map[string]interface{}{"worker_id": "", "progress": 0}).Error, "release export job %s", id)
}

// ListByUser lists a user's jobs, newest first
func (r *GormExportJobRepository) ListByUser(userID uint64, taskID *uint64, page, pageSize int) ([]models.ExportJob, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("user_id = ?", userID)
		if taskID != nil {
			db = db.Where("task_id = ?", *taskID)
		}
		return db
	}

	var total int64
	if err := r.db.Model(&models.ExportJob{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count export jobs")
	}

	query := r.db.Scopes(scope, database.Paginate(page, pageSize)).Order("created_at DESC")

	var jobs []models.ExportJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list export jobs")
	}
	return jobs, total, nil
}
