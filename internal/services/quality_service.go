package services

import (
	"fmt"
	"time"

	"github.com/yukikurage/annotation-api/internal/constants"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
)

var ErrQualityAccessDenied = apierrors.New(apierrors.KindForbidden, "only reviewers, administrators and engineers can read quality data")

// QualityService serves read-only quality control views over annotations.
type QualityService struct {
	store repository.Store
	now   func() time.Time
}

// NewQualityService creates a new QualityService
func NewQualityService(store repository.Store) *QualityService {
	return &QualityService{store: store, now: time.Now}
}

// PendingReviewsInput represents filters for the review queue
type PendingReviewsInput struct {
	Actor       models.Actor
	TaskID      *uint64
	AnnotatorID *uint64
	Page        int
	PageSize    int
}

// AnnotatorQuality counts one annotator's current annotations by status
type AnnotatorQuality struct {
	UserID    uint64
	Username  string
	FullName  string
	Draft     int64
	Submitted int64
	Approved  int64
	Rejected  int64
}

// TaskQuality summarises review outcomes for a task
type TaskQuality struct {
	TaskID         uint64
	TotalImages    int
	ImagesByStatus map[models.ImageStatus]int64
	Approved       int64
	Rejected       int64
	Pending        int64
	ApprovalRate   float64
	Annotators     []AnnotatorQuality
}

// ReviewStats counts review decisions over a trailing window
type ReviewStats struct {
	ReviewerID *uint64
	Days       int
	Since      time.Time
	Approved   int64
	Rejected   int64
	Total      int64
}

// PendingReviews lists current submitted annotations awaiting a decision.
func (s *QualityService) PendingReviews(input PendingReviewsInput) ([]models.Annotation, int64, error) {
	if !input.Actor.HasRole(models.RoleAdmin, models.RoleEngineer, models.RoleReviewer) {
		return nil, 0, ErrQualityAccessDenied
	}

	status := models.AnnotationStatusSubmitted
	filter := repository.AnnotationFilter{
		TaskID:      input.TaskID,
		AnnotatorID: input.AnnotatorID,
		Status:      &status,
		CurrentOnly: true,
		Page:        input.Page,
		PageSize:    input.PageSize,
	}
	if input.Actor.Role == models.RoleReviewer {
		id := input.Actor.ID
		filter.ReviewerUserID = &id
	}

	annotations, total, err := s.store.Annotations().List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	return annotations, total, nil
}

// TaskMetrics summarizes review outcomes for a task, per annotator
func (s *QualityService) TaskMetrics(taskID uint64, actor models.Actor) (*TaskQuality, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleEngineer, models.RoleReviewer) {
		return nil, ErrQualityAccessDenied
	}

	task, err := s.store.Tasks().FindByID(taskID)
	if err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}

	visible, err := canViewTask(s.store, actor, task.ID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrTaskAccessDenied
	}

	byStatus, err := s.store.Images().CountByStatus(task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}

	counts, err := s.store.Annotations().StatusCountsByAnnotator(task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count annotations: %w", err)
	}

	quality := &TaskQuality{
		TaskID:         task.ID,
		TotalImages:    task.TotalImages,
		ImagesByStatus: byStatus,
	}

	perAnnotator := make(map[uint64]*AnnotatorQuality)
	var order []uint64
	for _, row := range counts {
		entry, ok := perAnnotator[row.AnnotatorID]
		if !ok {
			entry = &AnnotatorQuality{UserID: row.AnnotatorID}
			perAnnotator[row.AnnotatorID] = entry
			order = append(order, row.AnnotatorID)
		}
		switch row.Status {
		case models.AnnotationStatusDraft:
			entry.Draft += row.Count
		case models.AnnotationStatusSubmitted:
			entry.Submitted += row.Count
			quality.Pending += row.Count
		case models.AnnotationStatusApproved:
			entry.Approved += row.Count
			quality.Approved += row.Count
		case models.AnnotationStatusRejected:
			entry.Rejected += row.Count
			quality.Rejected += row.Count
		}
	}

	if decided := quality.Approved + quality.Rejected; decided > 0 {
		quality.ApprovalRate = float64(quality.Approved) / float64(decided)
	}

	users, err := s.store.Users().FindByIDs(order)
	if err != nil {
		return nil, fmt.Errorf("failed to load annotators: %w", err)
	}
	for _, user := range users {
		if entry, ok := perAnnotator[user.ID]; ok {
			entry.Username = user.Username
			entry.FullName = user.FullName
		}
	}

	quality.Annotators = make([]AnnotatorQuality, 0, len(order))
	for _, id := range order {
		quality.Annotators = append(quality.Annotators, *perAnnotator[id])
	}
	return quality, nil
}

// ReviewStats counts decisions made in the last days days. Reviewers only
// see their own numbers; staff may pick a reviewer or see everyone's.
func (s *QualityService) ReviewStats(actor models.Actor, days int, reviewerID *uint64) (*ReviewStats, error) {
	switch actor.Role {
	case models.RoleReviewer:
		id := actor.ID
		reviewerID = &id
	case models.RoleAdmin, models.RoleEngineer:
	default:
		return nil, ErrQualityAccessDenied
	}

	if days <= 0 {
		days = constants.DefaultReviewStatsDays
	}
	since := s.now().AddDate(0, 0, -days)

	counts, err := s.store.Annotations().ReviewCounts(reviewerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	stats := &ReviewStats{
		ReviewerID: reviewerID,
		Days:       days,
		Since:      since,
		Approved:   counts[models.AnnotationStatusApproved],
		Rejected:   counts[models.AnnotationStatusRejected],
	}
	stats.Total = stats.Approved + stats.Rejected
	return stats, nil
}
