package repository

import (
	"time"

	"github.com/yukikurage/annotation-api/internal/models"
)

// Store bundles the repositories so services can run several of them
// inside one transaction.
type Store interface {
	Users() UserRepository
	Tasks() TaskRepository
	Images() ImageRepository
	Annotations() AnnotationRepository
	ExportJobs() ExportJobRepository

	// Transaction runs fn against a Store bound to a single database transaction.
	Transaction(fn func(tx Store) error) error
}

// TaskRepository defines the interface for task and assignment data access
type TaskRepository interface {
	// Create creates a new task
	Create(task *models.Task) error

	// FindByID finds a task by ID with optional preloading
	FindByID(id uint64, preload ...string) (*models.Task, error)

	// FindByIDForUpdate finds a task and locks its row for the rest of the transaction
	FindByIDForUpdate(id uint64) (*models.Task, error)

	// List retrieves tasks with filtering and pagination
	List(filter TaskFilter) ([]models.Task, int64, error)

	// CountByStatus counts visible tasks grouped by status
	CountByStatus(filter TaskFilter) (map[models.TaskStatus]int64, error)

	// Update updates a task
	Update(task *models.Task) error

	// Delete removes a task with its images, annotations and assignments
	Delete(id uint64) error

	// UpsertAssignments assigns users to a task with a role, reactivating inactive rows
	UpsertAssignments(taskID uint64, userIDs []uint64, role models.AssignmentRole, assignedImages int) error

	// DeactivateAssignments marks assignments inactive
	DeactivateAssignments(taskID uint64, userIDs []uint64) error

	// FindAssignment finds a specific task assignment
	FindAssignment(taskID, userID uint64) (*models.TaskAssignment, error)

	// FindActiveAssignment finds an active assignment with the given role
	FindActiveAssignment(taskID, userID uint64, role models.AssignmentRole) (*models.TaskAssignment, error)

	// ListAssignments lists the assignments of a task with their users
	ListAssignments(taskID uint64) ([]models.TaskAssignment, error)

	// UpdateAssignment saves an assignment
	UpdateAssignment(assignment *models.TaskAssignment) error

	// SetAssignedImagesCount sets the assigned image count on every annotator assignment
	SetAssignedImagesCount(taskID uint64, count int) error
}

// TaskFilter holds filtering options for listing tasks
type TaskFilter struct {
	Status *models.TaskStatus
	// AssignedUserID restricts to tasks with an active assignment for this user
	AssignedUserID *uint64
	Page           int
	PageSize       int
}

// ImageRepository defines the interface for image data access
type ImageRepository interface {
	Create(image *models.Image) error
	FindByID(id uint64) (*models.Image, error)

	// FindByIDForUpdate finds an image and locks its row for the rest of the transaction
	FindByIDForUpdate(id uint64) (*models.Image, error)

	// ListByTask lists a task's images ordered by ID
	ListByTask(taskID uint64, page, pageSize int) ([]models.Image, int64, error)

	Update(image *models.Image) error

	// Delete removes an image and its annotations
	Delete(id uint64) error

	// Counters returns total, annotated and reviewed image counts for a task
	Counters(taskID uint64) (total, annotated, reviewed int64, err error)

	// CountByStatus counts a task's images grouped by aggregate status
	CountByStatus(taskID uint64) (map[models.ImageStatus]int64, error)

	// CountCompletedBy counts a task's images whose completed set contains userID
	CountCompletedBy(taskID, userID uint64) (int64, error)

	// SetRequiredCountWhereUnset copies a requirement onto images that do not have one yet
	SetRequiredCountWhereUnset(taskID uint64, required int) error

	// FilePaths returns the stored file and thumbnail paths of a task's images
	FilePaths(taskID uint64) ([]string, error)
}

// AnnotationRepository defines the interface for annotation data access
type AnnotationRepository interface {
	Create(annotation *models.Annotation) error
	FindByID(id uint64, preload ...string) (*models.Annotation, error)
	Update(annotation *models.Annotation) error
	Delete(id uint64) error

	// DeleteRejectedByAuthor removes an author's rejected rows on one image and returns how many were removed
	DeleteRejectedByAuthor(imageID, authorID uint64) (int64, error)

	// ListCurrentByImage returns the latest row per annotator on an image
	ListCurrentByImage(imageID uint64) ([]models.Annotation, error)

	// ListForExport returns a task's annotations ordered by image and ID with users preloaded
	ListForExport(taskID uint64, statuses []models.AnnotationStatus, currentOnly bool) ([]models.Annotation, error)

	// CurrentIDs returns the IDs of the current rows of a task
	CurrentIDs(taskID uint64) ([]uint64, error)

	// List retrieves annotations with filtering and pagination
	List(filter AnnotationFilter) ([]models.Annotation, int64, error)

	// StatusCountsByAnnotator counts a task's current annotations per annotator and status
	StatusCountsByAnnotator(taskID uint64) ([]AnnotatorStatusCount, error)

	// ReviewCounts counts review decisions made since a point in time
	ReviewCounts(reviewerID *uint64, since time.Time) (map[models.AnnotationStatus]int64, error)
}

// AnnotationFilter holds filtering options for listing annotations
type AnnotationFilter struct {
	ImageID     *uint64
	TaskID      *uint64
	AnnotatorID *uint64
	Status      *models.AnnotationStatus
	// ReviewerUserID restricts to tasks the user actively reviews
	ReviewerUserID *uint64
	CurrentOnly    bool
	Page           int
	PageSize       int
}

type AnnotatorStatusCount struct {
	AnnotatorID uint64
	Status      models.AnnotationStatus
	Count       int64
}

// ExportJobRepository defines the interface for export job data access
type ExportJobRepository interface {
	Create(job *models.ExportJob) error
	FindByID(id string) (*models.ExportJob, error)
	Update(job *models.ExportJob) error

	// Claim marks an unclaimed processing job as owned by workerID. It reports
	// false when another worker got there first.
	Claim(id, workerID string, at time.Time) (bool, error)

	// UpdateProgress records a progress milestone
	UpdateProgress(id string, progress int) error

	// ListStale lists processing jobs that are unclaimed or were claimed before cutoff
	ListStale(cutoff time.Time) ([]models.ExportJob, error)

	// Release clears the claim on a processing job
	Release(id string) error

	// ListByUser lists a user's jobs newest first
	ListByUser(userID uint64, taskID *uint64, page, pageSize int) ([]models.ExportJob, int64, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByUsername finds a user by username
	FindByUsername(username string) (*models.User, error)

	// FindByIDs loads users by ID
	FindByIDs(ids []uint64) ([]models.User, error)

	// CountActiveByIDs counts how many of the given user IDs exist and are active
	CountActiveByIDs(ids []uint64) (int64, error)
}
