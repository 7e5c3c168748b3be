package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JSON columns are written as empty collections rather than SQL NULL so
// they always scan back cleanly.

func (t *Task) BeforeSave(*gorm.DB) error {
	if t.AnnotationKinds == nil {
		t.AnnotationKinds = datatypes.JSONSlice[AnnotationKind]{}
	}
	if t.Labels == nil {
		t.Labels = datatypes.JSONSlice[string]{}
	}
	return nil
}

func (img *Image) BeforeSave(*gorm.DB) error {
	if img.CompletedByUsers == nil {
		img.CompletedByUsers = datatypes.JSONSlice[uint64]{}
	}
	return nil
}

func (a *Annotation) BeforeSave(*gorm.DB) error {
	if a.Data == nil {
		a.Data = datatypes.JSONMap{}
	}
	return nil
}

func (j *ExportJob) BeforeSave(*gorm.DB) error {
	if j.StatusFilter == nil {
		j.StatusFilter = datatypes.JSONSlice[AnnotationStatus]{}
	}
	return nil
}
