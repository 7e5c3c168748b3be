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

type AnnotationHandler struct {
	annotationService *services.AnnotationService
}

func NewAnnotationHandler(annotationService *services.AnnotationService) *AnnotationHandler {
	return &AnnotationHandler{annotationService: annotationService}
}

// CreateAnnotation submits a new annotation row. "status": "draft" stores a
// draft; any other status is stored as submitted.
func (h *AnnotationHandler) CreateAnnotation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	type CreateAnnotationRequest struct {
		ImageID uint64                  `json:"image_id" binding:"required"`
		Kind    models.AnnotationKind   `json:"annotation_type" binding:"required"`
		Label   string                  `json:"label"`
		Data    map[string]interface{}  `json:"data"`
		Notes   string                  `json:"notes"`
		Status  models.AnnotationStatus `json:"status"`
	}

	var req CreateAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	annotation, err := h.annotationService.Submit(services.SubmitAnnotationInput{
		ImageID: req.ImageID,
		Actor:   actor,
		Kind:    req.Kind,
		Label:   req.Label,
		Data:    req.Data,
		Notes:   req.Notes,
		Draft:   req.Status == models.AnnotationStatusDraft,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToAnnotationDTO(*annotation))
}

// ListAnnotations lists annotations visible to the caller.
// Filters: image_id, task_id, annotator_id, status, current_only.
func (h *AnnotationHandler) ListAnnotations(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	imageID, ok := optionalUintQuery(c, "image_id")
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

	var status *models.AnnotationStatus
	if raw := c.Query("status"); raw != "" {
		s := models.AnnotationStatus(raw)
		if !s.Valid() {
			apierrors.BadRequest(c, "Invalid status")
			return
		}
		status = &s
	}
	currentOnly, _ := strconv.ParseBool(c.DefaultQuery("current_only", "false"))

	params := utils.GetPaginationParams(c)
	annotations, total, err := h.annotationService.List(services.ListAnnotationsInput{
		Actor:       actor,
		ImageID:     imageID,
		TaskID:      taskID,
		AnnotatorID: annotatorID,
		Status:      status,
		CurrentOnly: currentOnly,
		Page:        params.Page,
		PageSize:    params.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAnnotationListResponse(annotations, params, total))
}

// GetAnnotation returns one annotation
func (h *AnnotationHandler) GetAnnotation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	annotationID, ok := idParam(c, "id")
	if !ok {
		return
	}

	annotation, err := h.annotationService.Get(annotationID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAnnotationDTO(*annotation))
}

// UpdateAnnotation edits an annotation. Authors edit label, data and notes
// and may submit their own draft; reviewers set status and review notes.
func (h *AnnotationHandler) UpdateAnnotation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	annotationID, ok := idParam(c, "id")
	if !ok {
		return
	}

	type UpdateAnnotationRequest struct {
		Label       *string                  `json:"label"`
		Data        map[string]interface{}   `json:"data"`
		Notes       *string                  `json:"notes"`
		Status      *models.AnnotationStatus `json:"status"`
		ReviewNotes *string                  `json:"review_notes"`
	}

	var req UpdateAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	annotation, err := h.annotationService.Update(annotationID, actor, services.UpdateAnnotationInput{
		Label:       req.Label,
		Data:        req.Data,
		Notes:       req.Notes,
		Status:      req.Status,
		ReviewNotes: req.ReviewNotes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAnnotationDTO(*annotation))
}

// DeleteAnnotation deletes an annotation
func (h *AnnotationHandler) DeleteAnnotation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	annotationID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.annotationService.Delete(annotationID, actor); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Annotation deleted successfully"})
}

// ImageAnnotations returns an image header with the annotations the caller may see
func (h *AnnotationHandler) ImageAnnotations(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	imageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	result, err := h.annotationService.ForImage(imageID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToImageAnnotationsResponse(result))
}

// DeleteRejected removes the caller's rejected annotations on an image so
// they can annotate it again. Nothing to remove is not an error.
func (h *AnnotationHandler) DeleteRejected(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	imageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	removed, err := h.annotationService.DeleteRejectedForAuthor(imageID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": removed})
}
