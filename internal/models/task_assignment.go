package models

import (
	"time"
)

type AssignmentRole string

const (
	AssignmentRoleAnnotator AssignmentRole = "annotator"
	AssignmentRoleReviewer  AssignmentRole = "reviewer"
)

func (r AssignmentRole) Valid() bool {
	return r == AssignmentRoleAnnotator || r == AssignmentRoleReviewer
}

// TaskAssignment joins a user to a task. The image counters are maintained
// by the aggregator, never by user input.
type TaskAssignment struct {
	TaskID               uint64         `gorm:"primarykey" json:"task_id"`
	UserID               uint64         `gorm:"primarykey" json:"user_id"`
	Role                 AssignmentRole `gorm:"type:varchar(20);not null;default:'annotator'" json:"role"`
	IsActive             bool           `gorm:"not null;default:true" json:"is_active"`
	AssignedImagesCount  int            `gorm:"not null;default:0" json:"assigned_images_count"`
	CompletedImagesCount int            `gorm:"not null;default:0" json:"completed_images_count"`
	AssignedAt           time.Time      `json:"assigned_at"`
	StartedAt            *time.Time     `json:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`

	// Relations
	Task Task `gorm:"foreignKey:TaskID" json:"task,omitempty"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
