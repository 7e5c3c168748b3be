package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// ImageStatus is the human readable aggregate of an image's current annotations.
type ImageStatus string

const (
	ImageStatusUnannotated   ImageStatus = "unannotated"
	ImageStatusPendingReview ImageStatus = "pending-review"
	ImageStatusApproved      ImageStatus = "approved"
	ImageStatusRejected      ImageStatus = "rejected"
	ImageStatusInProgress    ImageStatus = "in-progress"
)

type Image struct {
	ID                      uint64                      `gorm:"primarykey" json:"id"`
	TaskID                  uint64                      `gorm:"not null;index" json:"task_id"`
	Filename                string                      `gorm:"type:varchar(255);not null" json:"filename"`
	OriginalFilename        string                      `gorm:"type:varchar(255)" json:"original_filename"`
	FilePath                string                      `gorm:"type:varchar(512);not null" json:"file_path"`
	FolderPath              string                      `gorm:"type:varchar(512)" json:"folder_path"`
	FileSize                int64                       `json:"file_size"`
	Width                   int                         `json:"width"`
	Height                  int                         `json:"height"`
	ThumbnailPath           string                      `gorm:"type:varchar(512)" json:"thumbnail_path"`
	AnnotationCount         int                         `gorm:"not null;default:0" json:"annotation_count"`
	RequiredAnnotationCount int                         `gorm:"not null;default:0" json:"required_annotation_count"`
	CompletedByUsers        datatypes.JSONSlice[uint64] `json:"completed_by_users"`
	IsAnnotated             bool                        `gorm:"not null;default:false" json:"is_annotated"`
	IsReviewed              bool                        `gorm:"not null;default:false" json:"is_reviewed"`
	AnnotationStatus        ImageStatus                 `gorm:"type:varchar(20);not null;default:'unannotated'" json:"annotation_status"`
	AnnotatedAt             *time.Time                  `json:"annotated_at"`
	ReviewedAt              *time.Time                  `json:"reviewed_at"`
	CreatedAt               time.Time                   `json:"created_at"`
	UpdatedAt               time.Time                   `json:"updated_at"`

	// Relations
	Task        Task         `gorm:"foreignKey:TaskID" json:"-"`
	Annotations []Annotation `gorm:"foreignKey:ImageID" json:"-"`
}

func (img Image) CompletedBy(userID uint64) bool {
	return slices.Contains(img.CompletedByUsers, userID)
}

// Threshold is the number of distinct annotators required before the image
// counts as annotated.
func (img Image) Threshold() int {
	if img.RequiredAnnotationCount < 1 {
		return 1
	}
	return img.RequiredAnnotationCount
}

// DisplayName is the name used for the image inside export archives.
func (img Image) DisplayName() string {
	if img.OriginalFilename != "" {
		return img.OriginalFilename
	}
	return img.Filename
}
