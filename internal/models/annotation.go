package models

import (
	"time"

	"gorm.io/datatypes"
)

type AnnotationStatus string

const (
	AnnotationStatusDraft     AnnotationStatus = "draft"
	AnnotationStatusSubmitted AnnotationStatus = "submitted"
	AnnotationStatusApproved  AnnotationStatus = "approved"
	AnnotationStatusRejected  AnnotationStatus = "rejected"
)

func (s AnnotationStatus) Valid() bool {
	switch s {
	case AnnotationStatusDraft, AnnotationStatusSubmitted, AnnotationStatusApproved, AnnotationStatusRejected:
		return true
	}
	return false
}

// Counted reports whether an annotation in this status counts its author
// toward the image's consensus threshold.
func (s AnnotationStatus) Counted() bool {
	return s == AnnotationStatusSubmitted || s == AnnotationStatusApproved
}

// Annotation is one annotator's labeling of one image. Rows are append-only
// per (image, annotator): the row with the highest ID is the current one.
type Annotation struct {
	ID          uint64            `gorm:"primarykey" json:"id"`
	ImageID     uint64            `gorm:"not null;index" json:"image_id"`
	TaskID      uint64            `gorm:"not null;index" json:"task_id"`
	AnnotatorID uint64            `gorm:"not null;index" json:"annotator_id"`
	ReviewerID  *uint64           `json:"reviewer_id"`
	Kind        AnnotationKind    `gorm:"type:varchar(20);not null" json:"kind"`
	Label       string            `gorm:"type:varchar(255)" json:"label"`
	Data        datatypes.JSONMap `json:"data"`
	Notes       string            `gorm:"type:text" json:"notes"`
	Status      AnnotationStatus  `gorm:"type:varchar(20);not null;default:'submitted'" json:"status"`
	ReviewNotes string            `gorm:"type:text" json:"review_notes"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ReviewedAt  *time.Time        `json:"reviewed_at"`

	// Relations
	Image     Image `gorm:"foreignKey:ImageID" json:"-"`
	Annotator User  `gorm:"foreignKey:AnnotatorID" json:"annotator,omitempty"`
	Reviewer  *User `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
}
