package services

import (
	"fmt"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
)

// Aggregator derives image, task and assignment state from the persisted
// annotation rows. It is the only writer of those derived fields and always
// recomputes from current rows, so running it twice is harmless. Callers
// pass the transaction the triggering write ran in.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates a new Aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// RecomputeForAnnotator refreshes an image after one annotator's rows
// changed, then the owning task and that annotator's assignment.
func (a *Aggregator) RecomputeForAnnotator(tx repository.Store, imageID, annotatorID uint64) (*models.Image, error) {
	image, err := a.recomputeImage(tx, imageID)
	if err != nil {
		return nil, err
	}
	if _, err := a.recomputeTask(tx, image.TaskID, false); err != nil {
		return nil, err
	}
	if err := a.recomputeAssignment(tx, image.TaskID, annotatorID); err != nil {
		return nil, err
	}
	return image, nil
}

// RecomputeForReview refreshes an image after review decisions and lets
// the task advance to reviewed.
func (a *Aggregator) RecomputeForReview(tx repository.Store, imageID uint64) (*models.Image, error) {
	image, err := a.recomputeImage(tx, imageID)
	if err != nil {
		return nil, err
	}
	if _, err := a.recomputeTask(tx, image.TaskID, true); err != nil {
		return nil, err
	}
	return image, nil
}

// RecomputeTask refreshes a task's counters after images were added or removed.
func (a *Aggregator) RecomputeTask(tx repository.Store, taskID uint64) (*models.Task, error) {
	task, err := a.recomputeTask(tx, taskID, false)
	if err != nil {
		return nil, err
	}

	assignments, err := tx.Tasks().ListAssignments(taskID)
	if err != nil {
		return nil, err
	}
	for _, assignment := range assignments {
		if assignment.Role != models.AssignmentRoleAnnotator {
			continue
		}
		if err := a.recomputeAssignment(tx, taskID, assignment.UserID); err != nil {
			return nil, err
		}
	}
	return task, nil
}

func (a *Aggregator) recomputeImage(tx repository.Store, imageID uint64) (*models.Image, error) {
	image, err := tx.Images().FindByIDForUpdate(imageID)
	if err != nil {
		return nil, translateNotFound(err, ErrImageNotFound)
	}

	current, err := tx.Annotations().ListCurrentByImage(imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current annotations: %w", err)
	}

	counted := mapset.NewThreadUnsafeSet[uint64]()
	for _, annotation := range current {
		if annotation.Status.Counted() {
			counted.Add(annotation.AnnotatorID)
		}
	}

	completed := mapset.NewThreadUnsafeSet[uint64](image.CompletedByUsers...)
	newcomers := counted.Difference(completed).ToSlice()
	slices.Sort(newcomers)
	image.CompletedByUsers = append(image.CompletedByUsers, newcomers...)

	now := a.now()
	image.AnnotationCount = counted.Cardinality()
	image.AnnotationStatus = deriveImageStatus(current)

	if image.AnnotationCount >= image.Threshold() {
		if !image.IsAnnotated {
			image.AnnotatedAt = &now
		}
		image.IsAnnotated = true
		if image.AnnotationStatus == models.ImageStatusInProgress || image.AnnotationStatus == models.ImageStatusUnannotated {
			image.AnnotationStatus = models.ImageStatusPendingReview
		}
	}

	reviewed := allApproved(current)
	if reviewed && !image.IsReviewed {
		image.ReviewedAt = &now
	} else if !reviewed {
		image.ReviewedAt = nil
	}
	image.IsReviewed = reviewed

	if err := tx.Images().Update(image); err != nil {
		return nil, fmt.Errorf("failed to update image: %w", err)
	}
	return image, nil
}

// deriveImageStatus applies the first matching rule over the current rows.
func deriveImageStatus(current []models.Annotation) models.ImageStatus {
	if len(current) == 0 {
		return models.ImageStatusUnannotated
	}

	statuses := mapset.NewThreadUnsafeSet[models.AnnotationStatus]()
	for _, annotation := range current {
		statuses.Add(annotation.Status)
	}

	switch {
	case statuses.Contains(models.AnnotationStatusSubmitted):
		return models.ImageStatusPendingReview
	case statuses.Cardinality() == 1 && statuses.Contains(models.AnnotationStatusApproved):
		return models.ImageStatusApproved
	case statuses.Contains(models.AnnotationStatusRejected):
		return models.ImageStatusRejected
	default:
		return models.ImageStatusInProgress
	}
}

func allApproved(current []models.Annotation) bool {
	if len(current) == 0 {
		return false
	}
	for _, annotation := range current {
		if annotation.Status != models.AnnotationStatusApproved {
			return false
		}
	}
	return true
}

func (a *Aggregator) recomputeTask(tx repository.Store, taskID uint64, afterReview bool) (*models.Task, error) {
	task, err := tx.Tasks().FindByIDForUpdate(taskID)
	if err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}

	total, annotated, reviewed, err := tx.Images().Counters(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}

	task.TotalImages = int(total)
	task.AnnotatedImages = int(annotated)
	task.ReviewedImages = int(reviewed)

	previous := task.Status
	task.Status = nextTaskStatus(task.Status, task.TotalImages, task.AnnotatedImages, task.ReviewedImages, afterReview)

	if err := tx.Tasks().Update(task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if err := tx.Tasks().SetAssignedImagesCount(taskID, task.TotalImages); err != nil {
		return nil, fmt.Errorf("failed to update assignments: %w", err)
	}

	if previous != task.Status {
		log.WithFields(log.Fields{
			"task_id": taskID,
			"from":    previous,
			"to":      task.Status,
		}).Info("task status advanced")
	}
	return task, nil
}

// nextTaskStatus only ever moves a task forward.
func nextTaskStatus(status models.TaskStatus, total, annotated, reviewed int, afterReview bool) models.TaskStatus {
	switch {
	case total > 0 && annotated == total &&
		(status == models.TaskStatusAssigned || status == models.TaskStatusInProgress):
		status = models.TaskStatusCompleted
	case annotated > 0 && status == models.TaskStatusAssigned:
		status = models.TaskStatusInProgress
	}

	if afterReview && status == models.TaskStatusCompleted && total > 0 && reviewed == total {
		status = models.TaskStatusReviewed
	}
	return status
}

func (a *Aggregator) recomputeAssignment(tx repository.Store, taskID, userID uint64) error {
	assignment, err := tx.Tasks().FindAssignment(taskID, userID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load assignment: %w", err)
	}

	completed, err := tx.Images().CountCompletedBy(taskID, userID)
	if err != nil {
		return err
	}
	if assignment.CompletedImagesCount == int(completed) {
		return nil
	}

	assignment.CompletedImagesCount = int(completed)
	if err := tx.Tasks().UpdateAssignment(assignment); err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	return nil
}
