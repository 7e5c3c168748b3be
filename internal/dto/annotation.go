package dto

import (
	"time"

	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/utils"
)

// ImageDTO represents an image in API responses
type ImageDTO struct {
	ID                      uint64                   `json:"id"`
	TaskID                  uint64                   `json:"task_id"`
	Filename                string                   `json:"filename"`
	OriginalFilename        string                   `json:"original_filename"`
	FolderPath              string                   `json:"folder_path"`
	FileSize                int64                    `json:"file_size"`
	Width                   int                      `json:"width"`
	Height                  int                      `json:"height"`
	HasThumbnail            bool                     `json:"has_thumbnail"`
	AnnotationCount         int                      `json:"annotation_count"`
	RequiredAnnotationCount int                      `json:"required_annotation_count"`
	CompletedByUsers        []uint64                 `json:"completed_by_users"`
	IsAnnotated             bool                     `json:"is_annotated"`
	IsReviewed              bool                     `json:"is_reviewed"`
	AnnotationStatus        models.ImageStatus       `json:"annotation_status"`
	MyStatus                *models.AnnotationStatus `json:"my_status,omitempty"`
	AnnotatedAt             *time.Time               `json:"annotated_at"`
	ReviewedAt              *time.Time               `json:"reviewed_at"`
	CreatedAt               time.Time                `json:"created_at"`
}

type ImageListResponse struct {
	Images     []ImageDTO               `json:"images"`
	Pagination utils.PaginationResponse `json:"pagination"`
}

// AnnotationDTO represents an annotation in API responses
type AnnotationDTO struct {
	ID          uint64                  `json:"id"`
	ImageID     uint64                  `json:"image_id"`
	TaskID      uint64                  `json:"task_id"`
	AnnotatorID uint64                  `json:"annotator_id"`
	Annotator   *UserDTO                `json:"annotator,omitempty"`
	ReviewerID  *uint64                 `json:"reviewer_id"`
	Reviewer    *UserDTO                `json:"reviewer,omitempty"`
	Kind        models.AnnotationKind   `json:"annotation_type"`
	Label       string                  `json:"label"`
	Data        map[string]interface{}  `json:"data"`
	Notes       string                  `json:"notes"`
	Status      models.AnnotationStatus `json:"status"`
	ReviewNotes string                  `json:"review_notes"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	ReviewedAt  *time.Time              `json:"reviewed_at"`
}

type AnnotationListResponse struct {
	Annotations []AnnotationDTO          `json:"annotations"`
	Pagination  utils.PaginationResponse `json:"pagination"`
}

// ImageAnnotationsResponse is an image header with its visible annotations
type ImageAnnotationsResponse struct {
	Image       ImageDTO        `json:"image"`
	Annotations []AnnotationDTO `json:"annotations"`
}

// ReviewResponse reports the reviewed annotations and the image afterwards
type ReviewResponse struct {
	Image       ImageDTO        `json:"image"`
	Annotations []AnnotationDTO `json:"annotations"`
	Reviewed    int             `json:"reviewed"`
}

func ToImageDTO(image models.Image) ImageDTO {
	completed := []uint64(image.CompletedByUsers)
	if completed == nil {
		completed = []uint64{}
	}
	return ImageDTO{
		ID:                      image.ID,
		TaskID:                  image.TaskID,
		Filename:                image.Filename,
		OriginalFilename:        image.OriginalFilename,
		FolderPath:              image.FolderPath,
		FileSize:                image.FileSize,
		Width:                   image.Width,
		Height:                  image.Height,
		HasThumbnail:            image.ThumbnailPath != "",
		AnnotationCount:         image.AnnotationCount,
		RequiredAnnotationCount: image.RequiredAnnotationCount,
		CompletedByUsers:        completed,
		IsAnnotated:             image.IsAnnotated,
		IsReviewed:              image.IsReviewed,
		AnnotationStatus:        image.AnnotationStatus,
		AnnotatedAt:             image.AnnotatedAt,
		ReviewedAt:              image.ReviewedAt,
		CreatedAt:               image.CreatedAt,
	}
}

func ToImageListResponse(items []services.ImageListItem, params utils.PaginationParams, total int64) ImageListResponse {
	images := make([]ImageDTO, len(items))
	for i, item := range items {
		images[i] = ToImageDTO(item.Image)
		images[i].MyStatus = item.MyStatus
	}
	return ImageListResponse{Images: images, Pagination: params.Response(total)}
}

func ToAnnotationDTO(annotation models.Annotation) AnnotationDTO {
	dto := AnnotationDTO{
		ID:          annotation.ID,
		ImageID:     annotation.ImageID,
		TaskID:      annotation.TaskID,
		AnnotatorID: annotation.AnnotatorID,
		Annotator:   toUserRef(annotation.Annotator),
		ReviewerID:  annotation.ReviewerID,
		Kind:        annotation.Kind,
		Label:       annotation.Label,
		Data:        annotation.Data,
		Notes:       annotation.Notes,
		Status:      annotation.Status,
		ReviewNotes: annotation.ReviewNotes,
		CreatedAt:   annotation.CreatedAt,
		UpdatedAt:   annotation.UpdatedAt,
		ReviewedAt:  annotation.ReviewedAt,
	}
	if annotation.Reviewer != nil {
		dto.Reviewer = toUserRef(*annotation.Reviewer)
	}
	if dto.Data == nil {
		dto.Data = map[string]interface{}{}
	}
	return dto
}

func ToAnnotationDTOs(annotations []models.Annotation) []AnnotationDTO {
	out := make([]AnnotationDTO, len(annotations))
	for i, annotation := range annotations {
		out[i] = ToAnnotationDTO(annotation)
	}
	return out
}

func ToAnnotationListResponse(annotations []models.Annotation, params utils.PaginationParams, total int64) AnnotationListResponse {
	return AnnotationListResponse{
		Annotations: ToAnnotationDTOs(annotations),
		Pagination:  params.Response(total),
	}
}

func ToImageAnnotationsResponse(result *services.ImageAnnotations) ImageAnnotationsResponse {
	return ImageAnnotationsResponse{
		Image:       ToImageDTO(result.Image),
		Annotations: ToAnnotationDTOs(result.Annotations),
	}
}

func ToReviewResponse(result *services.ReviewResult) ReviewResponse {
	resp := ReviewResponse{
		Annotations: ToAnnotationDTOs(result.Annotations),
		Reviewed:    len(result.Annotations),
	}
	if result.Image != nil {
		resp.Image = ToImageDTO(*result.Image)
	}
	return resp
}
