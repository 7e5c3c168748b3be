package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yukikurage/annotation-api/internal/dto"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/utils"
)

type ExportHandler struct {
	exportService *services.ExportService
}

func NewExportHandler(exportService *services.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// RequestExport creates an export job and returns it right away with 202.
func (h *ExportHandler) RequestExport(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	type ExportRequest struct {
		TaskID        uint64                    `json:"task_id" binding:"required"`
		Format        models.ExportFormat       `json:"format" binding:"required"`
		IncludeImages bool                      `json:"include_images"`
		StatusFilter  []models.AnnotationStatus `json:"status_filter"`
	}

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	job, err := h.exportService.Request(c.Request.Context(), services.RequestExportInput{
		TaskID:        req.TaskID,
		Actor:         actor,
		Format:        req.Format,
		IncludeImages: req.IncludeImages,
		StatusFilter:  req.StatusFilter,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.ToExportJobDTO(*job))
}

// Formats lists the supported export formats
func (h *ExportHandler) Formats(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ExportFormatsResponse{Formats: h.exportService.Formats()})
}

// History lists the caller's export jobs, newest first. Query: task_id.
func (h *ExportHandler) History(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := optionalUintQuery(c, "task_id")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	jobs, total, err := h.exportService.History(actor, taskID, params.Page, params.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToExportHistoryResponse(jobs, params, total))
}

// Status returns the progress of an export job
func (h *ExportHandler) Status(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	job, err := h.exportService.Progress(c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToExportJobDTO(*job))
}

// Download streams a finished export archive
func (h *ExportHandler) Download(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	job, f, err := h.exportService.File(c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		apierrors.InternalError(c, "Failed to read export file")
		return
	}

	name := fmt.Sprintf("task_%d_%s_%s.zip", job.TaskID, job.Format, job.ID[:8])
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("Content-Type", "application/zip")
	http.ServeContent(c.Writer, c.Request, name, stat.ModTime(), f)
}
