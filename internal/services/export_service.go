package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/export"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
	"github.com/yukikurage/annotation-api/internal/telemetry"
)

var (
	ErrExportDenied        = apierrors.New(apierrors.KindForbidden, "only administrators, engineers and reviewers can export annotations")
	ErrUnsupportedFormat   = apierrors.New(apierrors.KindValidation, "unsupported export format")
	ErrInvalidStatusFilter = apierrors.New(apierrors.KindValidation, "invalid annotation status in filter")
	ErrExportFileMissing   = apierrors.New(apierrors.KindNotFound, "export file not found")
	ErrExportNotReady      = apierrors.New(apierrors.KindConflict, "export is not completed")
)

// Export progress milestones
const (
	progressClaimed     = 10
	progressImages      = 30
	progressAnnotations = 50
	progressEncoded     = 80
	progressDone        = 100
)

// Dispatcher hands a job ID to whatever runs export workers
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// ExportService owns the ExportJob records. Requests only create the record
// and dispatch it; Process does the work on a worker and reports every
// outcome through the record.
type ExportService struct {
	store      repository.Store
	dispatcher Dispatcher
	images     afero.Fs
	exports    afero.Fs
	now        func() time.Time
}

// NewExportService reads original images from images and writes archives to exports.
func NewExportService(store repository.Store, images, exports afero.Fs) *ExportService {
	return &ExportService{
		store:   store,
		images:  images,
		exports: exports,
		now:     time.Now,
	}
}

// SetDispatcher wires the worker pool. It is separate from the constructor
// because the pool's handler is the service's own Process method.
func (s *ExportService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// RequestExportInput represents an export request
type RequestExportInput struct {
	TaskID        uint64
	Actor         models.Actor
	Format        models.ExportFormat
	IncludeImages bool
	StatusFilter  []models.AnnotationStatus
}

// Formats lists the formats a job may request.
func (s *ExportService) Formats() []export.FormatInfo {
	return export.Formats()
}

// Request validates everything up front, stores a processing job and
// dispatches it. It never waits for the export itself.
func (s *ExportService) Request(ctx context.Context, input RequestExportInput) (*models.ExportJob, error) {
	if !input.Actor.HasRole(models.RoleAdmin, models.RoleEngineer, models.RoleReviewer) {
		return nil, ErrExportDenied
	}

	task, err := s.store.Tasks().FindByID(input.TaskID)
	if err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}

	visible, err := canViewTask(s.store, input.Actor, task.ID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrTaskAccessDenied
	}

	if !export.Supported(input.Format) {
		return nil, ErrUnsupportedFormat
	}
	for _, status := range input.StatusFilter {
		if !status.Valid() {
			return nil, ErrInvalidStatusFilter
		}
	}

	job := &models.ExportJob{
		ID:            uuid.NewString(),
		TaskID:        task.ID,
		UserID:        input.Actor.ID,
		Format:        input.Format,
		IncludeImages: input.IncludeImages,
		StatusFilter:  input.StatusFilter,
		Status:        models.ExportStatusProcessing,
		Message:       "queued",
	}
	if err := s.store.ExportJobs().Create(job); err != nil {
		return nil, fmt.Errorf("failed to create export job: %w", err)
	}

	log.WithFields(log.Fields{
		"job_id":  job.ID,
		"task_id": task.ID,
		"format":  job.Format,
		"user_id": input.Actor.ID,
	}).Info("export requested")

	// An undelivered job stays unclaimed and is picked up by stale recovery.
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
			log.WithError(err).WithField("job_id", job.ID).Warn("failed to dispatch export job")
		}
	}

	return job, nil
}

// Process runs one job on a worker. A job claimed by another worker is
// skipped; any failure is recorded on the job.
func (s *ExportService) Process(ctx context.Context, jobID, workerID string) {
	logger := log.WithFields(log.Fields{"job_id": jobID, "worker_id": workerID})

	claimed, err := s.store.ExportJobs().Claim(jobID, workerID, s.now())
	if err != nil {
		logger.WithError(err).Error("failed to claim export job")
		return
	}
	if !claimed {
		logger.Debug("export job already claimed")
		return
	}

	job, err := s.store.ExportJobs().FindByID(jobID)
	if err != nil {
		logger.WithError(err).Error("failed to load export job")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("export aborted: %v", r)
			s.fail(job, err)
			logger.WithError(err).Error("export panicked")
		}
	}()

	logger.WithField("format", job.Format).Info("export started")
	if err := s.run(ctx, job); err != nil {
		s.fail(job, err)
		logger.WithError(err).Error("export failed")
		return
	}
	logger.WithField("size", job.FileSize).Info("export completed")
}

func (s *ExportService) run(ctx context.Context, job *models.ExportJob) error {
	jobs := s.store.ExportJobs()
	if err := jobs.UpdateProgress(job.ID, progressClaimed); err != nil {
		return err
	}

	task, err := s.store.Tasks().FindByID(job.TaskID)
	if err != nil {
		return translateNotFound(err, ErrTaskNotFound)
	}

	images, _, err := s.store.Images().ListByTask(task.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	if err := jobs.UpdateProgress(job.ID, progressImages); err != nil {
		return err
	}

	records, err := s.loadRecords(job)
	if err != nil {
		return err
	}
	if err := jobs.UpdateProgress(job.ID, progressAnnotations); err != nil {
		return err
	}

	encoder, err := export.EncoderFor(job.Format)
	if err != nil {
		return err
	}
	snap := &export.Snapshot{Task: *task, Images: images, Records: records}
	entries, err := encoder.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", job.Format, err)
	}
	if err := jobs.UpdateProgress(job.ID, progressEncoded); err != nil {
		return err
	}

	var files []export.ImageFile
	if job.IncludeImages {
		names := export.ImageNames(images)
		for _, image := range images {
			if ok, _ := afero.Exists(s.images, image.FilePath); !ok {
				log.WithFields(log.Fields{"job_id": job.ID, "image_id": image.ID}).Warn("image file missing, left out of export")
				continue
			}
			files = append(files, export.ImageFile{Source: image.FilePath, Name: names[image.ID]})
		}
	}

	name := job.ID + ".zip"
	size, err := s.writeArchive(ctx, name, entries, files)
	if err != nil {
		return err
	}

	now := s.now()
	job.Status = models.ExportStatusCompleted
	job.Progress = progressDone
	job.Message = fmt.Sprintf("exported %d images", len(images))
	job.FilePath = name
	job.FileSize = size
	job.CompletedAt = &now
	if err := jobs.Update(job); err != nil {
		_ = s.exports.Remove(name)
		return err
	}

	telemetry.ExportFinished(ctx, string(job.Format), false)
	return nil
}

// loadRecords returns the current rows matching the job's status filter.
// The JSON format also carries history rows, flagged as not current.
func (s *ExportService) loadRecords(job *models.ExportJob) ([]export.Record, error) {
	currentIDs, err := s.store.Annotations().CurrentIDs(job.TaskID)
	if err != nil {
		return nil, fmt.Errorf("load current annotations: %w", err)
	}
	current := make(map[uint64]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		current[id] = struct{}{}
	}

	withHistory := job.Format == models.ExportFormatJSON
	annotations, err := s.store.Annotations().ListForExport(job.TaskID, job.StatusFilter, !withHistory)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}

	records := make([]export.Record, 0, len(annotations))
	for _, annotation := range annotations {
		_, isCurrent := current[annotation.ID]
		records = append(records, export.Record{Annotation: annotation, Current: isCurrent})
	}
	return records, nil
}

// writeArchive writes to a temporary name first so a partial archive is
// never visible under the final name.
func (s *ExportService) writeArchive(ctx context.Context, name string, entries []export.Entry, files []export.ImageFile) (int64, error) {
	tmp := name + ".tmp"
	out, err := s.exports.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	if err := export.WriteZip(ctx, out, entries, s.images, files); err != nil {
		out.Close()
		_ = s.exports.Remove(tmp)
		return 0, err
	}
	if err := out.Close(); err != nil {
		_ = s.exports.Remove(tmp)
		return 0, fmt.Errorf("close archive: %w", err)
	}
	if err := s.exports.Rename(tmp, name); err != nil {
		_ = s.exports.Remove(tmp)
		return 0, fmt.Errorf("publish archive: %w", err)
	}

	stat, err := s.exports.Stat(name)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	return stat.Size(), nil
}

func (s *ExportService) fail(job *models.ExportJob, cause error) {
	now := s.now()
	job.Status = models.ExportStatusFailed
	job.Message = cause.Error()
	job.FilePath = ""
	job.FileSize = 0
	job.CompletedAt = &now
	if err := s.store.ExportJobs().Update(job); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Error("failed to record export failure")
	}
	telemetry.ExportFinished(context.Background(), string(job.Format), true)
}

// Progress returns the job record
func (s *ExportService) Progress(jobID string, actor models.Actor) (*models.ExportJob, error) {
	job, err := s.store.ExportJobs().FindByID(jobID)
	if err != nil {
		return nil, translateNotFound(err, ErrExportJobNotFound)
	}
	if job.UserID != actor.ID && !actor.IsStaff() {
		return nil, ErrExportJobNotFound
	}
	return job, nil
}

// File returns the completed archive. A completed job whose file has gone
// missing from storage is reported as not found.
func (s *ExportService) File(jobID string, actor models.Actor) (*models.ExportJob, afero.File, error) {
	job, err := s.Progress(jobID, actor)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != models.ExportStatusCompleted {
		return nil, nil, ErrExportNotReady
	}

	f, err := s.exports.Open(job.FilePath)
	if err != nil {
		return nil, nil, ErrExportFileMissing
	}
	return job, f, nil
}

// History lists the actor's own jobs, newest first
func (s *ExportService) History(actor models.Actor, taskID *uint64, page, pageSize int) ([]models.ExportJob, int64, error) {
	jobs, total, err := s.store.ExportJobs().ListByUser(actor.ID, taskID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list export jobs: %w", err)
	}
	return jobs, total, nil
}

// RecoverStale releases processing jobs nobody owns or whose claim is older
// than staleAfter, removes any leftover partial archive and returns their
// IDs for re-dispatch.
func (s *ExportService) RecoverStale(staleAfter time.Duration) ([]string, error) {
	jobs, err := s.store.ExportJobs().ListStale(s.now().Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale export jobs: %w", err)
	}

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if err := s.store.ExportJobs().Release(job.ID); err != nil {
			return nil, fmt.Errorf("failed to release export job %s: %w", job.ID, err)
		}
		_ = s.exports.Remove(job.ID + ".zip.tmp")
		ids = append(ids, job.ID)
	}

	if len(ids) > 0 {
		log.WithField("count", len(ids)).Info("recovered stale export jobs")
	}
	return ids, nil
}
