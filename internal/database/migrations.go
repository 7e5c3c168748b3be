package database

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AddIndexes adds the composite indexes the aggregation and export queries rely on.
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns []string
	}{
		// Current-annotation lookups group by (image, annotator)
		{"annotations", "idx_annotations_image_annotator", []string{"image_id", "annotator_id"}},
		{"annotations", "idx_annotations_task_status", []string{"task_id", "status"}},
		{"annotations", "idx_annotations_reviewer_reviewed_at", []string{"reviewer_id", "reviewed_at"}},

		// Task counters
		{"images", "idx_images_task_annotated", []string{"task_id", "is_annotated"}},
		{"images", "idx_images_task_reviewed", []string{"task_id", "is_reviewed"}},

		// Assignment lookups by user
		{"task_assignments", "idx_task_assignments_user_role", []string{"user_id", "role", "is_active"}},

		// Export history and recovery
		{"export_jobs", "idx_export_jobs_user_created", []string{"user_id", "created_at"}},
		{"export_jobs", "idx_export_jobs_status_worker", []string{"status", "worker_id"}},
	}

	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.table, idx.name) {
			log.WithField("index", idx.name).Debug("index already exists, skipping")
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, strings.Join(idx.columns, ", "))
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.WithFields(log.Fields{"index": idx.name, "table": idx.table}).Info("created index")
	}

	return nil
}
