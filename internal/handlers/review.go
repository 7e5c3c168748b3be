package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yukikurage/annotation-api/internal/dto"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/utils"
)

// ReviewHandler serves review decisions and the quality-control reads.
type ReviewHandler struct {
	reviewService  *services.ReviewService
	qualityService *services.QualityService
}

func NewReviewHandler(reviewService *services.ReviewService, qualityService *services.QualityService) *ReviewHandler {
	return &ReviewHandler{
		reviewService:  reviewService,
		qualityService: qualityService,
	}
}

type reviewRequest struct {
	Status      models.AnnotationStatus `json:"status" binding:"required"`
	ReviewNotes string                  `json:"review_notes"`
}

// ReviewAnnotation applies a decision to one annotation
func (h *ReviewHandler) ReviewAnnotation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	annotationID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.reviewService.ReviewOne(annotationID, actor, req.Status, req.ReviewNotes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToReviewResponse(result))
}

// ReviewImage applies one decision to every current annotation on an image
func (h *ReviewHandler) ReviewImage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	imageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.reviewService.ReviewImage(imageID, actor, req.Status, req.ReviewNotes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToReviewResponse(result))
}

// PendingReviews lists submitted annotations waiting for review
func (h *ReviewHandler) PendingReviews(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := optionalUintQuery(c, "task_id")
	if !ok {
		return
	}
	annotatorID, ok := optionalUintQuery(c, "annotator_id")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	annotations, total, err := h.qualityService.PendingReviews(services.PendingReviewsInput{
		Actor:       actor,
		TaskID:      taskID,
		AnnotatorID: annotatorID,
		Page:        params.Page,
		PageSize:    params.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAnnotationListResponse(annotations, params, total))
}

// TaskMetrics returns review metrics for a task
func (h *ReviewHandler) TaskMetrics(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "task_id")
	if !ok {
		return
	}

	quality, err := h.qualityService.TaskMetrics(taskID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskQualityDTO(quality))
}

// ReviewStats counts recent decisions. Query: days, reviewer_id.
func (h *ReviewHandler) ReviewStats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	reviewerID, ok := optionalUintQuery(c, "reviewer_id")
	if !ok {
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "0"))
	if err != nil {
		apierrors.BadRequest(c, "Invalid days")
		return
	}

	stats, err := h.qualityService.ReviewStats(actor, days, reviewerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToReviewStatsDTO(stats))
}
