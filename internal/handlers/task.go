package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"

	"github.com/yukikurage/annotation-api/internal/dto"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/middleware"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// ListTasks returns the tasks visible to the current user.
// Can filter by status.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var status *models.TaskStatus
	if raw := c.Query("status"); raw != "" {
		s := models.TaskStatus(raw)
		if !s.Valid() {
			apierrors.BadRequest(c, "Invalid status")
			return
		}
		status = &s
	}

	params := utils.GetPaginationParams(c)
	tasks, total, err := h.taskService.ListTasks(services.ListTasksInput{
		Actor:    actor,
		Status:   status,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskListResponse(tasks, params, total))
}

// GetTask returns a specific task by ID.
// Task is already loaded with relations by RequireTaskAccess middleware.
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, ok := middleware.GetTask(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// CreateTask creates a new task
func (h *TaskHandler) CreateTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	type CreateTaskRequest struct {
		Title                       string                  `json:"title" binding:"required"`
		Description                 string                  `json:"description"`
		Instructions                string                  `json:"instructions"`
		Priority                    models.TaskPriority     `json:"priority"`
		AnnotationKinds             []models.AnnotationKind `json:"annotation_kinds"`
		Labels                      []string                `json:"labels"`
		RankingMax                  int                     `json:"ranking_max"`
		RequiredAnnotationsPerImage int                     `json:"required_annotations_per_image"`
		AutoAssignImages            bool                    `json:"auto_assign_images"`
		Deadline                    *time.Time              `json:"deadline"`
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.CreateTask(services.CreateTaskInput{
		Actor:                       actor,
		Title:                       req.Title,
		Description:                 req.Description,
		Instructions:                req.Instructions,
		Priority:                    req.Priority,
		AnnotationKinds:             req.AnnotationKinds,
		Labels:                      req.Labels,
		RankingMax:                  req.RankingMax,
		RequiredAnnotationsPerImage: req.RequiredAnnotationsPerImage,
		AutoAssignImages:            req.AutoAssignImages,
		Deadline:                    req.Deadline,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// UpdateTask updates an existing task. Only the fields present in the body
// change; "deadline": null clears the deadline.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	type UpdateTaskRequest struct {
		Title                       *string                 `json:"title"`
		Description                 *string                 `json:"description"`
		Instructions                *string                 `json:"instructions"`
		Status                      *models.TaskStatus      `json:"status"`
		Priority                    *models.TaskPriority    `json:"priority"`
		AnnotationKinds             []models.AnnotationKind `json:"annotation_kinds"`
		Labels                      []string                `json:"labels"`
		RankingMax                  *int                    `json:"ranking_max"`
		RequiredAnnotationsPerImage *int                    `json:"required_annotations_per_image"`
		AutoAssignImages            *bool                   `json:"auto_assign_images"`
		Deadline                    *time.Time              `json:"deadline"`
	}

	body, err := c.GetRawData()
	if err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	var req UpdateTaskRequest
	var present map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	if err := json.Unmarshal(body, &present); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	raw, hasDeadline := present["deadline"]

	task, err := h.taskService.UpdateTask(taskID, actor, services.UpdateTaskInput{
		Title:                       req.Title,
		Description:                 req.Description,
		Instructions:                req.Instructions,
		Status:                      req.Status,
		Priority:                    req.Priority,
		AnnotationKinds:             req.AnnotationKinds,
		Labels:                      req.Labels,
		RankingMax:                  req.RankingMax,
		RequiredAnnotationsPerImage: req.RequiredAnnotationsPerImage,
		AutoAssignImages:            req.AutoAssignImages,
		Deadline:                    req.Deadline,
		ClearDeadline:               hasDeadline && string(raw) == "null",
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// DeleteTask deletes a task with its images, annotations and assignments
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(taskID, actor); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// AssignTask assigns a single annotator given by the assignee_id query parameter
func (h *TaskHandler) AssignTask(c *gin.Context) {
	assigneeID, ok := optionalUintQuery(c, "assignee_id")
	if !ok {
		return
	}
	if assigneeID == nil {
		apierrors.BadRequest(c, "assignee_id is required")
		return
	}
	h.assign(c, []uint64{*assigneeID}, models.AssignmentRoleAnnotator)
}

// AssignMultiple assigns several users with one role
func (h *TaskHandler) AssignMultiple(c *gin.Context) {
	type AssignUsersRequest struct {
		UserIDs []uint64              `json:"user_ids" binding:"required"`
		Role    models.AssignmentRole `json:"role"`
	}

	var req AssignUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	h.assign(c, req.UserIDs, req.Role)
}

func (h *TaskHandler) assign(c *gin.Context, userIDs []uint64, role models.AssignmentRole) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	task, err := h.taskService.AssignUsers(services.AssignUsersInput{
		TaskID:  taskID,
		Actor:   actor,
		UserIDs: userIDs,
		Role:    role,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Users assigned successfully",
		"task":    dto.ToTaskDTO(*task),
	})
}

// UnassignTask deactivates user assignments on a task
func (h *TaskHandler) UnassignTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	type UnassignUsersRequest struct {
		UserIDs []uint64 `json:"user_ids" binding:"required"`
	}

	var req UnassignUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	if err := h.taskService.UnassignUsers(taskID, actor, req.UserIDs); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Users unassigned successfully",
	})
}

// ListAssignments lists the assignments of a task
func (h *TaskHandler) ListAssignments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	assignments, err := h.taskService.ListAssignments(taskID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]dto.TaskAssignmentDTO, len(assignments))
	for i, assignment := range assignments {
		out[i] = dto.ToTaskAssignmentDTO(assignment)
	}
	c.JSON(http.StatusOK, gin.H{"assignments": out})
}

// StartTask marks the task as started by the calling assignee
func (h *TaskHandler) StartTask(c *gin.Context) {
	h.advance(c, h.taskService.StartTask)
}

// CompleteTask marks the task as completed by the calling assignee
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	h.advance(c, h.taskService.CompleteTask)
}

func (h *TaskHandler) advance(c *gin.Context, op func(uint64, models.Actor) (*models.Task, error)) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	task, err := op(taskID, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// Stats counts the caller's visible tasks per status
func (h *TaskHandler) Stats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	stats, err := h.taskService.Stats(actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskStatsDTO(stats))
}
