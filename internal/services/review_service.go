package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
	"github.com/yukikurage/annotation-api/internal/telemetry"
)

var (
	ErrInvalidDecision   = apierrors.New(apierrors.KindValidation, "decision must be approved or rejected")
	ErrNothingToReview   = apierrors.New(apierrors.KindEmptyCollection, "image has no annotations to review")
	ErrReviewerNotActive = apierrors.New(apierrors.KindForbidden, "only administrators and assigned reviewers can review this task")
)

// ReviewService applies review decisions and hands the affected image to
// the Aggregator within the same transaction.
type ReviewService struct {
	store      repository.Store
	aggregator *Aggregator
	now        func() time.Time
}

// NewReviewService creates a new ReviewService
func NewReviewService(store repository.Store, aggregator *Aggregator) *ReviewService {
	return &ReviewService{store: store, aggregator: aggregator, now: time.Now}
}

// ReviewResult carries the reviewed rows and the recomputed image
type ReviewResult struct {
	Image       *models.Image
	Annotations []models.Annotation
}

func validDecision(decision models.AnnotationStatus) bool {
	return decision == models.AnnotationStatusApproved || decision == models.AnnotationStatusRejected
}

// ReviewOne records a decision on a single annotation.
func (s *ReviewService) ReviewOne(annotationID uint64, actor models.Actor, decision models.AnnotationStatus, notes string) (*ReviewResult, error) {
	if !validDecision(decision) {
		return nil, ErrInvalidDecision
	}

	annotation, err := s.store.Annotations().FindByID(annotationID)
	if err != nil {
		return nil, translateNotFound(err, ErrAnnotationNotFound)
	}

	if err := s.authorize(actor, annotation.TaskID); err != nil {
		return nil, err
	}

	result := &ReviewResult{}
	err = s.store.Transaction(func(tx repository.Store) error {
		s.decide(annotation, actor, decision, notes)
		if err := tx.Annotations().Update(annotation); err != nil {
			return fmt.Errorf("failed to update annotation: %w", err)
		}
		image, err := s.aggregator.RecomputeForReview(tx, annotation.ImageID)
		if err != nil {
			return err
		}
		result.Image = image
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Annotations = []models.Annotation{*annotation}
	telemetry.ReviewsApplied(context.Background(), string(decision), 1)
	return result, nil
}

// ReviewImage applies one decision to every current annotation on an image.
// An image without annotations is an error, unlike rejected-row cleanup.
func (s *ReviewService) ReviewImage(imageID uint64, actor models.Actor, decision models.AnnotationStatus, notes string) (*ReviewResult, error) {
	if !validDecision(decision) {
		return nil, ErrInvalidDecision
	}

	image, err := s.store.Images().FindByID(imageID)
	if err != nil {
		return nil, translateNotFound(err, ErrImageNotFound)
	}

	if err := s.authorize(actor, image.TaskID); err != nil {
		return nil, err
	}

	result := &ReviewResult{}
	err = s.store.Transaction(func(tx repository.Store) error {
		current, err := tx.Annotations().ListCurrentByImage(imageID)
		if err != nil {
			return fmt.Errorf("failed to load current annotations: %w", err)
		}
		if len(current) == 0 {
			return ErrNothingToReview
		}

		for i := range current {
			s.decide(&current[i], actor, decision, notes)
			if err := tx.Annotations().Update(&current[i]); err != nil {
				return fmt.Errorf("failed to update annotation %d: %w", current[i].ID, err)
			}
		}

		recomputed, err := s.aggregator.RecomputeForReview(tx, imageID)
		if err != nil {
			return err
		}
		result.Image = recomputed
		result.Annotations = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"image_id":    imageID,
		"reviewer_id": actor.ID,
		"decision":    decision,
		"count":       len(result.Annotations),
	}).Info("image reviewed")

	telemetry.ReviewsApplied(context.Background(), string(decision), len(result.Annotations))
	return result, nil
}

func (s *ReviewService) authorize(actor models.Actor, taskID uint64) error {
	allowed, err := canReviewTask(s.store, actor, taskID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrReviewerNotActive
	}
	return nil
}

func (s *ReviewService) decide(annotation *models.Annotation, actor models.Actor, decision models.AnnotationStatus, notes string) {
	now := s.now()
	reviewerID := actor.ID
	annotation.Status = decision
	annotation.ReviewerID = &reviewerID
	annotation.ReviewNotes = notes
	annotation.ReviewedAt = &now
}
