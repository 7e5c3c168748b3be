package models

import (
	"time"

	"gorm.io/datatypes"
)

type ExportFormat string

const (
	ExportFormatPascalVOC ExportFormat = "pascal_voc"
	ExportFormatCOCO      ExportFormat = "coco"
	ExportFormatYOLO      ExportFormat = "yolo"
	ExportFormatJSON      ExportFormat = "json"
	ExportFormatCSV       ExportFormat = "csv"
	ExportFormatXLSX      ExportFormat = "xlsx"
)

type ExportStatus string

const (
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusCompleted  ExportStatus = "completed"
	ExportStatusFailed     ExportStatus = "failed"
)

// ExportJob is the durable record of one export request. Only the export
// service mutates it. It carries no foreign keys so job history survives
// task deletion.
type ExportJob struct {
	ID            string                                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TaskID        uint64                                `gorm:"not null;index" json:"task_id"`
	UserID        uint64                                `gorm:"not null" json:"user_id"`
	Format        ExportFormat                          `gorm:"type:varchar(20);not null" json:"format"`
	IncludeImages bool                                  `gorm:"not null;default:false" json:"include_images"`
	StatusFilter  datatypes.JSONSlice[AnnotationStatus] `json:"status_filter"`
	Status        ExportStatus                          `gorm:"type:varchar(20);not null;default:'processing'" json:"status"`
	Message       string                                `gorm:"type:text" json:"message"`
	Progress      int                                   `gorm:"not null;default:0" json:"progress"`
	FilePath      string                                `gorm:"type:varchar(512)" json:"file_path"`
	FileSize      int64                                 `json:"file_size"`
	WorkerID      string                                `gorm:"type:varchar(64);not null;default:''" json:"-"`
	Attempts      int                                   `gorm:"not null;default:0" json:"attempts"`
	StartedAt     *time.Time                            `json:"started_at"`
	CompletedAt   *time.Time                            `json:"completed_at"`
	CreatedAt     time.Time                             `json:"created_at"`
	UpdatedAt     time.Time                             `json:"updated_at"`
}
