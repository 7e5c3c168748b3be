package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/payload"
	"github.com/yukikurage/annotation-api/internal/repository"
	"github.com/yukikurage/annotation-api/internal/telemetry"
)

var (
	ErrAdminCannotAnnotate    = apierrors.New(apierrors.KindForbidden, "administrators review annotations and cannot author them")
	ErrNotAssignedAnnotator   = apierrors.New(apierrors.KindForbidden, "user is not assigned to this task as an annotator")
	ErrNotAnnotationAuthor    = apierrors.New(apierrors.KindForbidden, "only the author can edit annotation fields")
	ErrReviewPermission       = apierrors.New(apierrors.KindForbidden, "user cannot review annotations of this task")
	ErrAnnotationDeleteDenied = apierrors.New(apierrors.KindForbidden, "only the author or an administrator can delete an annotation")
	ErrAnnotationHidden       = apierrors.New(apierrors.KindForbidden, "user cannot view this annotation")
	ErrKindNotAllowed         = apierrors.New(apierrors.KindValidation, "annotation kind is not enabled for this task")
	ErrLabelNotAllowed        = apierrors.New(apierrors.KindValidation, "label is not permitted for this task")
	ErrInvalidStatus          = apierrors.New(apierrors.KindValidation, "invalid annotation status")
)

// AnnotationService stores individual annotation rows. It owns no derived
// state; every write hands the image to the Aggregator in the same
// transaction.
type AnnotationService struct {
	store      repository.Store
	aggregator *Aggregator
	payloads   *payload.Validator
	now        func() time.Time
}

// NewAnnotationService creates a new AnnotationService
func NewAnnotationService(store repository.Store, aggregator *Aggregator, payloads *payload.Validator) *AnnotationService {
	return &AnnotationService{
		store:      store,
		aggregator: aggregator,
		payloads:   payloads,
		now:        time.Now,
	}
}

// SubmitAnnotationInput represents one annotator's submission for an image
type SubmitAnnotationInput struct {
	ImageID uint64
	Actor   models.Actor
	Kind    models.AnnotationKind
	Label   string
	Data    map[string]any
	Notes   string
	// Draft stores the row as a draft instead of submitting it
	Draft bool
}

// UpdateAnnotationInput holds the optional fields of an annotation edit
type UpdateAnnotationInput struct {
	Label       *string
	Data        map[string]any
	Notes       *string
	Status      *models.AnnotationStatus
	ReviewNotes *string
}

// ListAnnotationsInput represents filters for listing annotations
type ListAnnotationsInput struct {
	Actor       models.Actor
	ImageID     *uint64
	TaskID      *uint64
	AnnotatorID *uint64
	Status      *models.AnnotationStatus
	CurrentOnly bool
	Page        int
	PageSize    int
}

// ImageAnnotations is an image header with the annotations the caller may see
type ImageAnnotations struct {
	Image       models.Image
	Annotations []models.Annotation
}

// Submit always appends a new row; earlier rows by the same annotator stay
// as history and the newest one becomes current.
func (s *AnnotationService) Submit(input SubmitAnnotationInput) (*models.Annotation, error) {
	if input.Actor.IsAdmin() {
		return nil, ErrAdminCannotAnnotate
	}

	image, err := s.store.Images().FindByID(input.ImageID)
	if err != nil {
		return nil, translateNotFound(err, ErrImageNotFound)
	}

	task, err := s.store.Tasks().FindByID(image.TaskID)
	if err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}

	if input.Actor.Role == models.RoleAnnotator {
		assigned, err := hasActiveAssignment(s.store, task.ID, input.Actor.ID, models.AssignmentRoleAnnotator)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, ErrNotAssignedAnnotator
		}
	}

	if !input.Kind.Valid() || !task.AllowsKind(input.Kind) {
		return nil, ErrKindNotAllowed
	}
	label := strings.TrimSpace(input.Label)
	if !task.AllowsLabel(label) {
		return nil, ErrLabelNotAllowed
	}

	data, err := s.payloads.Normalize(input.Kind, input.Data, task.RankingMax)
	if err != nil {
		return nil, invalid("invalid annotation payload", err)
	}

	status := models.AnnotationStatusSubmitted
	if input.Draft {
		status = models.AnnotationStatusDraft
	}

	annotation := &models.Annotation{
		ImageID:     image.ID,
		TaskID:      task.ID,
		AnnotatorID: input.Actor.ID,
		Kind:        input.Kind,
		Label:       label,
		Data:        datatypes.JSONMap(data),
		Notes:       input.Notes,
		Status:      status,
	}

	err = s.store.Transaction(func(tx repository.Store) error {
		if err := tx.Annotations().Create(annotation); err != nil {
			return fmt.Errorf("failed to create annotation: %w", err)
		}
		_, err := s.aggregator.RecomputeForAnnotator(tx, image.ID, input.Actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	telemetry.AnnotationSubmitted(context.Background(), string(input.Kind), input.Draft)
	return annotation, nil
}

// Update lets the author edit label, data and notes, and promote their own
// draft to submitted. Review fields are reserved for reviewers.
func (s *AnnotationService) Update(annotationID uint64, actor models.Actor, input UpdateAnnotationInput) (*models.Annotation, error) {
	annotation, err := s.store.Annotations().FindByID(annotationID)
	if err != nil {
		return nil, translateNotFound(err, ErrAnnotationNotFound)
	}

	task, err := s.store.Tasks().FindByID(annotation.TaskID)
	if err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}

	isAuthor := annotation.AnnotatorID == actor.ID
	editsFields := input.Label != nil || input.Data != nil || input.Notes != nil
	if editsFields && !isAuthor {
		return nil, ErrNotAnnotationAuthor
	}

	if input.Status != nil && !input.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	authorSubmitsDraft := isAuthor && input.Status != nil &&
		annotation.Status == models.AnnotationStatusDraft &&
		*input.Status == models.AnnotationStatusSubmitted
	reviewEdit := input.ReviewNotes != nil || (input.Status != nil && !authorSubmitsDraft)
	if reviewEdit {
		allowed, err := canReviewTask(s.store, actor, task.ID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrReviewPermission
		}
	}

	if input.Label != nil {
		label := strings.TrimSpace(*input.Label)
		if !task.AllowsLabel(label) {
			return nil, ErrLabelNotAllowed
		}
		annotation.Label = label
	}
	if input.Data != nil {
		data, err := s.payloads.Normalize(annotation.Kind, input.Data, task.RankingMax)
		if err != nil {
			return nil, invalid("invalid annotation payload", err)
		}
		annotation.Data = datatypes.JSONMap(data)
	}
	if input.Notes != nil {
		annotation.Notes = *input.Notes
	}
	if input.Status != nil {
		annotation.Status = *input.Status
	}
	if reviewEdit {
		now := s.now()
		reviewerID := actor.ID
		annotation.ReviewerID = &reviewerID
		annotation.ReviewedAt = &now
		if input.ReviewNotes != nil {
			annotation.ReviewNotes = *input.ReviewNotes
		}
	}

	err = s.store.Transaction(func(tx repository.Store) error {
		if err := tx.Annotations().Update(annotation); err != nil {
			return fmt.Errorf("failed to update annotation: %w", err)
		}
		if reviewEdit {
			_, err := s.aggregator.RecomputeForReview(tx, annotation.ImageID)
			return err
		}
		_, err := s.aggregator.RecomputeForAnnotator(tx, annotation.ImageID, annotation.AnnotatorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return annotation, nil
}

// Delete removes an annotation. Only its author or an administrator may delete it.
func (s *AnnotationService) Delete(annotationID uint64, actor models.Actor) error {
	annotation, err := s.store.Annotations().FindByID(annotationID)
	if err != nil {
		return translateNotFound(err, ErrAnnotationNotFound)
	}

	if annotation.AnnotatorID != actor.ID && !actor.IsAdmin() {
		return ErrAnnotationDeleteDenied
	}

	return s.store.Transaction(func(tx repository.Store) error {
		if err := tx.Annotations().Delete(annotation.ID); err != nil {
			return fmt.Errorf("failed to delete annotation: %w", err)
		}
		_, err := s.aggregator.RecomputeForAnnotator(tx, annotation.ImageID, annotation.AnnotatorID)
		return err
	})
}

// DeleteRejectedForAuthor removes the caller's rejected rows on an image.
// Nothing to delete is a success with a zero count.
func (s *AnnotationService) DeleteRejectedForAuthor(imageID uint64, actor models.Actor) (int64, error) {
	if _, err := s.store.Images().FindByID(imageID); err != nil {
		return 0, translateNotFound(err, ErrImageNotFound)
	}

	var removed int64
	err := s.store.Transaction(func(tx repository.Store) error {
		count, err := tx.Annotations().DeleteRejectedByAuthor(imageID, actor.ID)
		if err != nil {
			return fmt.Errorf("failed to delete rejected annotations: %w", err)
		}
		removed = count
		if count == 0 {
			return nil
		}
		_, err = s.aggregator.RecomputeForAnnotator(tx, imageID, actor.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Get returns an annotation with its annotator and reviewer loaded
func (s *AnnotationService) Get(annotationID uint64, actor models.Actor) (*models.Annotation, error) {
	annotation, err := s.store.Annotations().FindByID(annotationID, "Annotator", "Reviewer")
	if err != nil {
		return nil, translateNotFound(err, ErrAnnotationNotFound)
	}

	visible, err := s.canSee(actor, annotation)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrAnnotationHidden
	}
	return annotation, nil
}

// List applies role visibility: annotators see their own rows, reviewers
// the rows of tasks they review, staff everything.
func (s *AnnotationService) List(input ListAnnotationsInput) ([]models.Annotation, int64, error) {
	filter := repository.AnnotationFilter{
		ImageID:     input.ImageID,
		TaskID:      input.TaskID,
		AnnotatorID: input.AnnotatorID,
		Status:      input.Status,
		CurrentOnly: input.CurrentOnly,
		Page:        input.Page,
		PageSize:    input.PageSize,
	}
	s.applyVisibility(input.Actor, &filter)

	annotations, total, err := s.store.Annotations().List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list annotations: %w", err)
	}
	return annotations, total, nil
}

// ForImage returns the image header and the annotations on it the caller may see.
func (s *AnnotationService) ForImage(imageID uint64, actor models.Actor) (*ImageAnnotations, error) {
	image, err := s.store.Images().FindByID(imageID)
	if err != nil {
		return nil, translateNotFound(err, ErrImageNotFound)
	}

	visible, err := canViewTask(s.store, actor, image.TaskID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrTaskAccessDenied
	}

	annotations, _, err := s.List(ListAnnotationsInput{Actor: actor, ImageID: &image.ID})
	if err != nil {
		return nil, err
	}
	return &ImageAnnotations{Image: *image, Annotations: annotations}, nil
}

func (s *AnnotationService) applyVisibility(actor models.Actor, filter *repository.AnnotationFilter) {
	switch actor.Role {
	case models.RoleAnnotator:
		id := actor.ID
		filter.AnnotatorID = &id
	case models.RoleReviewer:
		id := actor.ID
		filter.ReviewerUserID = &id
	}
}

func (s *AnnotationService) canSee(actor models.Actor, annotation *models.Annotation) (bool, error) {
	switch actor.Role {
	case models.RoleAnnotator:
		return annotation.AnnotatorID == actor.ID, nil
	case models.RoleReviewer:
		return hasActiveAssignment(s.store, annotation.TaskID, actor.ID, models.AssignmentRoleReviewer)
	default:
		return true, nil
	}
}
