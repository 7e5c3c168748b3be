package dto

import (
	"time"

	"github.com/yukikurage/annotation-api/internal/export"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/utils"
)

// ExportJobDTO represents an export job in API responses
type ExportJobDTO struct {
	ID            string                    `json:"id"`
	TaskID        uint64                    `json:"task_id"`
	Format        models.ExportFormat       `json:"format"`
	IncludeImages bool                      `json:"include_images"`
	StatusFilter  []models.AnnotationStatus `json:"status_filter"`
	Status        models.ExportStatus       `json:"status"`
	Message       string                    `json:"message"`
	Progress      int                       `json:"progress"`
	FileSize      int64                     `json:"file_size"`
	Attempts      int                       `json:"attempts"`
	StartedAt     *time.Time                `json:"started_at"`
	CompletedAt   *time.Time                `json:"completed_at"`
	CreatedAt     time.Time                 `json:"created_at"`
}

type ExportHistoryResponse struct {
	Jobs       []ExportJobDTO           `json:"jobs"`
	Pagination utils.PaginationResponse `json:"pagination"`
}

type ExportFormatsResponse struct {
	Formats []export.FormatInfo `json:"formats"`
}

func ToExportJobDTO(job models.ExportJob) ExportJobDTO {
	filter := []models.AnnotationStatus(job.StatusFilter)
	if filter == nil {
		filter = []models.AnnotationStatus{}
	}
	return ExportJobDTO{
		ID:            job.ID,
		TaskID:        job.TaskID,
		Format:        job.Format,
		IncludeImages: job.IncludeImages,
		StatusFilter:  filter,
		Status:        job.Status,
		Message:       job.Message,
		Progress:      job.Progress,
		FileSize:      job.FileSize,
		Attempts:      job.Attempts,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		CreatedAt:     job.CreatedAt,
	}
}

func ToExportHistoryResponse(jobs []models.ExportJob, params utils.PaginationParams, total int64) ExportHistoryResponse {
	out := make([]ExportJobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = ToExportJobDTO(job)
	}
	return ExportHistoryResponse{Jobs: out, Pagination: params.Response(total)}
}

// AnnotatorQualityDTO carries one annotator's status counts on a task
type AnnotatorQualityDTO struct {
	UserID    uint64 `json:"user_id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Draft     int64  `json:"draft"`
	Submitted int64  `json:"submitted"`
	Approved  int64  `json:"approved"`
	Rejected  int64  `json:"rejected"`
}

type TaskQualityDTO struct {
	TaskID         uint64                       `json:"task_id"`
	TotalImages    int                          `json:"total_images"`
	ImagesByStatus map[models.ImageStatus]int64 `json:"images_by_status"`
	Approved       int64                        `json:"approved"`
	Rejected       int64                        `json:"rejected"`
	Pending        int64                        `json:"pending"`
	ApprovalRate   float64                      `json:"approval_rate"`
	Annotators     []AnnotatorQualityDTO        `json:"annotators"`
}

type ReviewStatsDTO struct {
	ReviewerID *uint64   `json:"reviewer_id"`
	Days       int       `json:"days"`
	Since      time.Time `json:"since"`
	Approved   int64     `json:"approved"`
	Rejected   int64     `json:"rejected"`
	Total      int64     `json:"total"`
}

func ToTaskQualityDTO(q *services.TaskQuality) TaskQualityDTO {
	annotators := make([]AnnotatorQualityDTO, len(q.Annotators))
	for i, a := range q.Annotators {
		annotators[i] = AnnotatorQualityDTO{
			UserID:    a.UserID,
			Username:  a.Username,
			FullName:  a.FullName,
			Draft:     a.Draft,
			Submitted: a.Submitted,
			Approved:  a.Approved,
			Rejected:  a.Rejected,
		}
	}
	return TaskQualityDTO{
		TaskID:         q.TaskID,
		TotalImages:    q.TotalImages,
		ImagesByStatus: q.ImagesByStatus,
		Approved:       q.Approved,
		Rejected:       q.Rejected,
		Pending:        q.Pending,
		ApprovalRate:   q.ApprovalRate,
		Annotators:     annotators,
	}
}

func ToReviewStatsDTO(s *services.ReviewStats) ReviewStatsDTO {
	return ReviewStatsDTO{
		ReviewerID: s.ReviewerID,
		Days:       s.Days,
		Since:      s.Since,
		Approved:   s.Approved,
		Rejected:   s.Rejected,
		Total:      s.Total,
	}
}
