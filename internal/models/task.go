package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusReviewed   TaskStatus = "reviewed"
	TaskStatusRejected   TaskStatus = "rejected"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusReviewed, TaskStatusRejected:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

type AnnotationKind string

const (
	KindBoundingBox    AnnotationKind = "bbox"
	KindPolygon        AnnotationKind = "polygon"
	KindKeypoint       AnnotationKind = "keypoint"
	KindClassification AnnotationKind = "classification"
	KindRegression     AnnotationKind = "regression"
	KindRanking        AnnotationKind = "ranking"
)

var AnnotationKinds = []AnnotationKind{
	KindBoundingBox, KindPolygon, KindKeypoint, KindClassification, KindRegression, KindRanking,
}

func (k AnnotationKind) Valid() bool {
	return slices.Contains(AnnotationKinds, k)
}

// Task is a unit of annotation work. TotalImages, AnnotatedImages and
// ReviewedImages are derived counters owned by the aggregator.
type Task struct {
	ID                          uint64                              `gorm:"primarykey" json:"id"`
	Title                       string                              `gorm:"not null" json:"title"`
	Description                 string                              `gorm:"type:text" json:"description"`
	Instructions                string                              `gorm:"type:text" json:"instructions"`
	Status                      TaskStatus                          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Priority                    TaskPriority                        `gorm:"type:varchar(20);not null;default:'medium'" json:"priority"`
	AnnotationKinds             datatypes.JSONSlice[AnnotationKind] `json:"annotation_kinds"`
	Labels                      datatypes.JSONSlice[string]         `json:"labels"`
	RankingMax                  int                                 `gorm:"not null;default:0" json:"ranking_max"`
	RequiredAnnotationsPerImage int                                 `gorm:"not null;default:1" json:"required_annotations_per_image"`
	AutoAssignImages            bool                                `gorm:"not null;default:false" json:"auto_assign_images"`
	Deadline                    *time.Time                          `json:"deadline"`
	CreatorID                   uint64                              `gorm:"not null;index" json:"creator_id"`
	TotalImages                 int                                 `gorm:"not null;default:0" json:"total_images"`
	AnnotatedImages             int                                 `gorm:"not null;default:0" json:"annotated_images"`
	ReviewedImages              int                                 `gorm:"not null;default:0" json:"reviewed_images"`
	CreatedAt                   time.Time                           `json:"created_at"`
	UpdatedAt                   time.Time                           `json:"updated_at"`

	// Relations
	Creator     User             `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Assignments []TaskAssignment `gorm:"foreignKey:TaskID" json:"assignments,omitempty"`
	Images      []Image          `gorm:"foreignKey:TaskID" json:"-"`
}

// AllowsKind reports whether kind may be submitted; a task without
// configured kinds accepts all of them.
func (t Task) AllowsKind(kind AnnotationKind) bool {
	return len(t.AnnotationKinds) == 0 || slices.Contains(t.AnnotationKinds, kind)
}

// AllowsLabel reports whether label may be used; a task without
// configured labels accepts any label.
func (t Task) AllowsLabel(label string) bool {
	return len(t.Labels) == 0 || slices.Contains(t.Labels, label)
}
