package dto

import (
	"time"

	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/utils"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID       uint64      `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email,omitempty"`
	FullName string      `json:"full_name,omitempty"`
	Role     models.Role `json:"role"`
	IsActive bool        `json:"is_active"`
}

// TaskAssignmentDTO represents a task assignment in API responses
type TaskAssignmentDTO struct {
	User                 UserDTO               `json:"user"`
	Role                 models.AssignmentRole `json:"role"`
	IsActive             bool                  `json:"is_active"`
	AssignedImagesCount  int                   `json:"assigned_images_count"`
	CompletedImagesCount int                   `json:"completed_images_count"`
	AssignedAt           time.Time             `json:"assigned_at"`
	StartedAt            *time.Time            `json:"started_at"`
	CompletedAt          *time.Time            `json:"completed_at"`
}

// TaskDTO represents a task in API responses
type TaskDTO struct {
	ID                          uint64                  `json:"id"`
	Title                       string                  `json:"title"`
	Description                 string                  `json:"description"`
	Instructions                string                  `json:"instructions"`
	Status                      models.TaskStatus       `json:"status"`
	Priority                    models.TaskPriority     `json:"priority"`
	AnnotationKinds             []models.AnnotationKind `json:"annotation_kinds"`
	Labels                      []string                `json:"labels"`
	RankingMax                  int                     `json:"ranking_max"`
	RequiredAnnotationsPerImage int                     `json:"required_annotations_per_image"`
	AutoAssignImages            bool                    `json:"auto_assign_images"`
	Deadline                    *time.Time              `json:"deadline"`
	CreatorID                   uint64                  `json:"creator_id"`
	AssigneeID                  *uint64                 `json:"assignee_id"`
	TotalImages                 int                     `json:"total_images"`
	AnnotatedImages             int                     `json:"annotated_images"`
	ReviewedImages              int                     `json:"reviewed_images"`
	CreatedAt                   time.Time               `json:"created_at"`
	UpdatedAt                   time.Time               `json:"updated_at"`
	Creator                     *UserDTO                `json:"creator,omitempty"`
	Assignments                 []TaskAssignmentDTO     `json:"assignments,omitempty"`
}

// TaskListItemDTO represents a task in list responses (minimal data)
type TaskListItemDTO struct {
	ID              uint64              `json:"id"`
	Title           string              `json:"title"`
	Status          models.TaskStatus   `json:"status"`
	Priority        models.TaskPriority `json:"priority"`
	Deadline        *time.Time          `json:"deadline"`
	CreatorID       uint64              `json:"creator_id"`
	Creator         *UserDTO            `json:"creator,omitempty"`
	TotalImages     int                 `json:"total_images"`
	AnnotatedImages int                 `json:"annotated_images"`
	ReviewedImages  int                 `json:"reviewed_images"`
	CreatedAt       time.Time           `json:"created_at"`
}

// TaskListResponse represents a paginated list of tasks
type TaskListResponse struct {
	Tasks      []TaskListItemDTO        `json:"tasks"`
	Pagination utils.PaginationResponse `json:"pagination"`
}

// TaskStatsDTO summarises the caller's visible tasks
type TaskStatsDTO struct {
	Total    int64                       `json:"total"`
	ByStatus map[models.TaskStatus]int64 `json:"by_status"`
}

// Conversion functions

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
		IsActive: user.IsActive,
	}
}

func toUserRef(user models.User) *UserDTO {
	if user.ID == 0 {
		return nil
	}
	u := UserDTO{ID: user.ID, Username: user.Username, FullName: user.FullName, Role: user.Role, IsActive: user.IsActive}
	return &u
}

func ToTaskAssignmentDTO(assignment models.TaskAssignment) TaskAssignmentDTO {
	dto := TaskAssignmentDTO{
		User:                 UserDTO{ID: assignment.UserID},
		Role:                 assignment.Role,
		IsActive:             assignment.IsActive,
		AssignedImagesCount:  assignment.AssignedImagesCount,
		CompletedImagesCount: assignment.CompletedImagesCount,
		AssignedAt:           assignment.AssignedAt,
		StartedAt:            assignment.StartedAt,
		CompletedAt:          assignment.CompletedAt,
	}
	if user := toUserRef(assignment.User); user != nil {
		dto.User = *user
	}
	return dto
}

// ToTaskDTO converts a Task model to TaskDTO
func ToTaskDTO(task models.Task) TaskDTO {
	dto := TaskDTO{
		ID:                          task.ID,
		Title:                       task.Title,
		Description:                 task.Description,
		Instructions:                task.Instructions,
		Status:                      task.Status,
		Priority:                    task.Priority,
		AnnotationKinds:             task.AnnotationKinds,
		Labels:                      task.Labels,
		RankingMax:                  task.RankingMax,
		RequiredAnnotationsPerImage: task.RequiredAnnotationsPerImage,
		AutoAssignImages:            task.AutoAssignImages,
		Deadline:                    task.Deadline,
		CreatorID:                   task.CreatorID,
		AssigneeID:                  assigneeID(task.Assignments),
		TotalImages:                 task.TotalImages,
		AnnotatedImages:             task.AnnotatedImages,
		ReviewedImages:              task.ReviewedImages,
		CreatedAt:                   task.CreatedAt,
		UpdatedAt:                   task.UpdatedAt,
		Creator:                     toUserRef(task.Creator),
	}

	if len(task.Assignments) > 0 {
		dto.Assignments = make([]TaskAssignmentDTO, len(task.Assignments))
		for i, assignment := range task.Assignments {
			dto.Assignments[i] = ToTaskAssignmentDTO(assignment)
		}
	}

	return dto
}

// assigneeID is the earliest active annotator assignment, exposed for
// clients that still expect a single assignee.
func assigneeID(assignments []models.TaskAssignment) *uint64 {
	var first *models.TaskAssignment
	for i := range assignments {
		a := &assignments[i]
		if !a.IsActive || a.Role != models.AssignmentRoleAnnotator {
			continue
		}
		if first == nil || a.AssignedAt.Before(first.AssignedAt) {
			first = a
		}
	}
	if first == nil {
		return nil
	}
	id := first.UserID
	return &id
}

// ToTaskListItemDTO converts a Task model to TaskListItemDTO
func ToTaskListItemDTO(task models.Task) TaskListItemDTO {
	return TaskListItemDTO{
		ID:              task.ID,
		Title:           task.Title,
		Status:          task.Status,
		Priority:        task.Priority,
		Deadline:        task.Deadline,
		CreatorID:       task.CreatorID,
		Creator:         toUserRef(task.Creator),
		TotalImages:     task.TotalImages,
		AnnotatedImages: task.AnnotatedImages,
		ReviewedImages:  task.ReviewedImages,
		CreatedAt:       task.CreatedAt,
	}
}

// ToTaskListResponse converts a page of tasks
func ToTaskListResponse(tasks []models.Task, params utils.PaginationParams, total int64) TaskListResponse {
	items := make([]TaskListItemDTO, len(tasks))
	for i, task := range tasks {
		items[i] = ToTaskListItemDTO(task)
	}
	return TaskListResponse{
		Tasks:      items,
		Pagination: params.Response(total),
	}
}

func ToTaskStatsDTO(stats *services.TaskStats) TaskStatsDTO {
	return TaskStatsDTO{Total: stats.Total, ByStatus: stats.ByStatus}
}
