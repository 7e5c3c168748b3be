package export

import (
	"time"

	"github.com/yukikurage/annotation-api/internal/models"
)

type jsonDocument struct {
	Task        jsonTask         `json:"task"`
	Images      []jsonImage      `json:"images"`
	Annotations []jsonAnnotation `json:"annotations"`
}

type jsonTask struct {
	ID                          uint64                  `json:"id"`
	Title                       string                  `json:"title"`
	Description                 string                  `json:"description"`
	Instructions                string                  `json:"instructions"`
	Status                      models.TaskStatus       `json:"status"`
	AnnotationKinds             []models.AnnotationKind `json:"annotation_kinds"`
	Labels                      []string                `json:"labels"`
	RequiredAnnotationsPerImage int                     `json:"required_annotations_per_image"`
	TotalImages                 int                     `json:"total_images"`
	AnnotatedImages             int                     `json:"annotated_images"`
	ReviewedImages              int                     `json:"reviewed_images"`
	CreatedAt                   time.Time               `json:"created_at"`
}

type jsonImage struct {
	ID               uint64             `json:"id"`
	Filename         string             `json:"filename"`
	OriginalFilename string             `json:"original_filename"`
	FolderPath       string             `json:"folder_path"`
	Width            int                `json:"width"`
	Height           int                `json:"height"`
	AnnotationCount  int                `json:"annotation_count"`
	IsAnnotated      bool               `json:"is_annotated"`
	IsReviewed       bool               `json:"is_reviewed"`
	AnnotationStatus models.ImageStatus `json:"annotation_status"`
	CreatedAt        time.Time          `json:"created_at"`
}

type jsonAnnotation struct {
	ID          uint64                  `json:"id"`
	ImageID     uint64                  `json:"image_id"`
	Kind        models.AnnotationKind   `json:"annotation_type"`
	Label       string                  `json:"label"`
	Data        map[string]any          `json:"data"`
	Status      models.AnnotationStatus `json:"status"`
	IsCurrent   bool                    `json:"is_current"`
	Notes       string                  `json:"notes"`
	ReviewNotes string                  `json:"review_notes"`
	AnnotatorID uint64                  `json:"annotator_id"`
	ReviewerID  *uint64                 `json:"reviewer_id"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	ReviewedAt  *time.Time              `json:"reviewed_at"`
}

// jsonEncoder dumps every record of the snapshot, history rows included.
type jsonEncoder struct{}

func (jsonEncoder) Encode(snap *Snapshot) ([]Entry, error) {
	task := snap.Task
	doc := jsonDocument{
		Task: jsonTask{
			ID:                          task.ID,
			Title:                       task.Title,
			Description:                 task.Description,
			Instructions:                task.Instructions,
			Status:                      task.Status,
			AnnotationKinds:             append([]models.AnnotationKind{}, task.AnnotationKinds...),
			Labels:                      append([]string{}, task.Labels...),
			RequiredAnnotationsPerImage: task.RequiredAnnotationsPerImage,
			TotalImages:                 task.TotalImages,
			AnnotatedImages:             task.AnnotatedImages,
			ReviewedImages:              task.ReviewedImages,
			CreatedAt:                   task.CreatedAt,
		},
		Images:      make([]jsonImage, 0, len(snap.Images)),
		Annotations: make([]jsonAnnotation, 0, len(snap.Records)),
	}

	for _, image := range snap.Images {
		doc.Images = append(doc.Images, jsonImage{
			ID:               image.ID,
			Filename:         image.Filename,
			OriginalFilename: image.OriginalFilename,
			FolderPath:       image.FolderPath,
			Width:            image.Width,
			Height:           image.Height,
			AnnotationCount:  image.AnnotationCount,
			IsAnnotated:      image.IsAnnotated,
			IsReviewed:       image.IsReviewed,
			AnnotationStatus: image.AnnotationStatus,
			CreatedAt:        image.CreatedAt,
		})
	}

	for _, record := range snap.Records {
		a := record.Annotation
		doc.Annotations = append(doc.Annotations, jsonAnnotation{
			ID:          a.ID,
			ImageID:     a.ImageID,
			Kind:        a.Kind,
			Label:       a.Label,
			Data:        a.Data,
			Status:      a.Status,
			IsCurrent:   record.Current,
			Notes:       a.Notes,
			ReviewNotes: a.ReviewNotes,
			AnnotatorID: a.AnnotatorID,
			ReviewerID:  a.ReviewerID,
			CreatedAt:   a.CreatedAt,
			UpdatedAt:   a.UpdatedAt,
			ReviewedAt:  a.ReviewedAt,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return []Entry{{Name: "annotations.json", Data: data}}, nil
}
