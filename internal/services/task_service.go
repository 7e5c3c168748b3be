package services

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yukikurage/annotation-api/internal/constants"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
)

var (
	ErrNotTaskAssignee     = apierrors.New(apierrors.KindForbidden, "only an active assignee can perform this action")
	ErrNoUserIDsProvided   = apierrors.New(apierrors.KindValidation, "at least one user ID is required")
	ErrTitleRequired       = apierrors.New(apierrors.KindValidation, "title is required")
	ErrInvalidTaskStatus   = apierrors.New(apierrors.KindValidation, "invalid task status")
	ErrInvalidPriority     = apierrors.New(apierrors.KindValidation, "invalid task priority")
	ErrInvalidKind         = apierrors.New(apierrors.KindValidation, "invalid annotation kind")
	ErrInvalidRequirement  = apierrors.New(apierrors.KindValidation, "required annotations per image must be at least 1")
	ErrInvalidRankingMax   = apierrors.New(apierrors.KindValidation, "ranking max cannot be negative")
	ErrInvalidAssignRole   = apierrors.New(apierrors.KindValidation, "assignment role must be annotator or reviewer")
	ErrInvalidTaskAssignee = apierrors.New(apierrors.KindNotFound, "one or more users do not exist or are inactive")
	ErrTaskNotStarted      = apierrors.New(apierrors.KindConflict, "task must be started before it can be completed")
)

// TaskService handles task business logic and assignment tracking
type TaskService struct {
	store      repository.Store
	aggregator *Aggregator
	files      FileStorage
	now        func() time.Time
}

// NewTaskService creates a new TaskService
func NewTaskService(store repository.Store, aggregator *Aggregator, files FileStorage) *TaskService {
	return &TaskService{
		store:      store,
		aggregator: aggregator,
		files:      files,
		now:        time.Now,
	}
}

// ListTasksInput represents filters for listing tasks
type ListTasksInput struct {
	Actor    models.Actor
	Status   *models.TaskStatus
	Page     int
	PageSize int
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Actor                       models.Actor
	Title                       string
	Description                 string
	Instructions                string
	Priority                    models.TaskPriority
	AnnotationKinds             []models.AnnotationKind
	Labels                      []string
	RankingMax                  int
	RequiredAnnotationsPerImage int
	AutoAssignImages            bool
	Deadline                    *time.Time
}

// UpdateTaskInput represents input for updating a task
type UpdateTaskInput struct {
	Title                       *string
	Description                 *string
	Instructions                *string
	Status                      *models.TaskStatus
	Priority                    *models.TaskPriority
	AnnotationKinds             []models.AnnotationKind
	Labels                      []string
	RankingMax                  *int
	RequiredAnnotationsPerImage *int
	AutoAssignImages            *bool
	Deadline                    *time.Time
	ClearDeadline               bool
}

// AssignUsersInput represents input for assigning users to a task
type AssignUsersInput struct {
	TaskID  uint64
	Actor   models.Actor
	UserIDs []uint64
	Role    models.AssignmentRole
}

// TaskStats summarises the tasks visible to a user
type TaskStats struct {
	Total    int64
	ByStatus map[models.TaskStatus]int64
}

// visibility restricts non-staff users to tasks they are assigned to
func visibility(actor models.Actor) *uint64 {
	if actor.IsStaff() {
		return nil
	}
	id := actor.ID
	return &id
}

// ListTasks returns the tasks visible to the actor
func (s *TaskService) ListTasks(input ListTasksInput) ([]models.Task, int64, error) {
	filter := repository.TaskFilter{
		Status:         input.Status,
		AssignedUserID: visibility(input.Actor),
		Page:           input.Page,
		PageSize:       input.PageSize,
	}

	tasks, total, err := s.store.Tasks().List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, total, nil
}

// GetTask returns a task with related data
func (s *TaskService) GetTask(taskID uint64) (*models.Task, error) {
	task, err := s.store.Tasks().FindByID(taskID, "Creator", "Assignments", "Assignments.User")
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	return task, nil
}

// AuthorizeView loads a task and verifies the actor may see it
func (s *TaskService) AuthorizeView(taskID uint64, actor models.Actor) (*models.Task, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	visible, err := canViewTask(s.store, actor, task.ID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrTaskAccessDenied
	}

	return task, nil
}

// CreateTask creates a new task in the pending state
func (s *TaskService) CreateTask(input CreateTaskInput) (*models.Task, error) {
	if !input.Actor.IsStaff() {
		return nil, ErrStaffOnly
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	if input.Priority == "" {
		input.Priority = models.TaskPriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, ErrInvalidPriority
	}

	kinds, err := normalizeKinds(input.AnnotationKinds)
	if err != nil {
		return nil, err
	}

	if input.RequiredAnnotationsPerImage == 0 {
		input.RequiredAnnotationsPerImage = 1
	}
	if input.RequiredAnnotationsPerImage < 1 {
		return nil, ErrInvalidRequirement
	}
	if input.RankingMax < 0 {
		return nil, ErrInvalidRankingMax
	}

	task := &models.Task{
		Title:                       title,
		Description:                 input.Description,
		Instructions:                input.Instructions,
		Status:                      models.TaskStatusPending,
		Priority:                    input.Priority,
		AnnotationKinds:             kinds,
		Labels:                      normalizeLabels(input.Labels),
		RankingMax:                  input.RankingMax,
		RequiredAnnotationsPerImage: input.RequiredAnnotationsPerImage,
		AutoAssignImages:            input.AutoAssignImages,
		Deadline:                    input.Deadline,
		CreatorID:                   input.Actor.ID,
	}
	applyRankingDefault(task)

	if err := s.store.Tasks().Create(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return s.GetTask(task.ID)
}

// UpdateTask updates an existing task. An explicit status is applied as is:
// manual edits are the correction path around the automatic transitions.
func (s *TaskService) UpdateTask(taskID uint64, actor models.Actor, input UpdateTaskInput) (*models.Task, error) {
	if !actor.IsStaff() {
		return nil, ErrStaffOnly
	}

	task, err := s.store.Tasks().FindByID(taskID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Instructions != nil {
		task.Instructions = *input.Instructions
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, ErrInvalidTaskStatus
		}
		if task.Status != *input.Status {
			log.WithFields(log.Fields{
				"task_id":  task.ID,
				"from":     task.Status,
				"to":       *input.Status,
				"actor_id": actor.ID,
			}).Info("task status set manually")
		}
		task.Status = *input.Status
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, ErrInvalidPriority
		}
		task.Priority = *input.Priority
	}
	if input.AnnotationKinds != nil {
		kinds, err := normalizeKinds(input.AnnotationKinds)
		if err != nil {
			return nil, err
		}
		task.AnnotationKinds = kinds
	}
	if input.Labels != nil {
		task.Labels = normalizeLabels(input.Labels)
	}
	if input.RankingMax != nil {
		if *input.RankingMax < 0 {
			return nil, ErrInvalidRankingMax
		}
		task.RankingMax = *input.RankingMax
	}
	if input.RequiredAnnotationsPerImage != nil {
		if *input.RequiredAnnotationsPerImage < 1 {
			return nil, ErrInvalidRequirement
		}
		task.RequiredAnnotationsPerImage = *input.RequiredAnnotationsPerImage
	}
	if input.AutoAssignImages != nil {
		task.AutoAssignImages = *input.AutoAssignImages
	}
	if input.ClearDeadline {
		task.Deadline = nil
	} else if input.Deadline != nil {
		task.Deadline = input.Deadline
	}
	applyRankingDefault(task)

	if err := s.store.Tasks().Update(task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return s.GetTask(task.ID)
}

// DeleteTask removes a task with its images, annotations and assignments.
// Stored files are removed after the rows are gone.
func (s *TaskService) DeleteTask(taskID uint64, actor models.Actor) error {
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}

	if _, err := s.store.Tasks().FindByID(taskID); err != nil {
		if isNotFound(err) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to find task: %w", err)
	}

	paths, err := s.store.Images().FilePaths(taskID)
	if err != nil {
		return fmt.Errorf("failed to load image files: %w", err)
	}

	if err := s.store.Tasks().Delete(taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	removeFiles(s.files, paths)
	return nil
}

// AssignUsers assigns users to a task with a role. Images without a
// requirement inherit the task's, and a pending task becomes assigned.
func (s *TaskService) AssignUsers(input AssignUsersInput) (*models.Task, error) {
	if !input.Actor.IsStaff() {
		return nil, ErrStaffOnly
	}
	if len(input.UserIDs) == 0 {
		return nil, ErrNoUserIDsProvided
	}
	if input.Role == "" {
		input.Role = models.AssignmentRoleAnnotator
	}
	if !input.Role.Valid() {
		return nil, ErrInvalidAssignRole
	}

	task, err := s.store.Tasks().FindByID(input.TaskID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	userIDs := uniqueUint64(input.UserIDs)

	count, err := s.store.Users().CountActiveByIDs(userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to verify users: %w", err)
	}
	if int(count) != len(userIDs) {
		return nil, ErrInvalidTaskAssignee
	}

	err = s.store.Transaction(func(tx repository.Store) error {
		locked, err := tx.Tasks().FindByIDForUpdate(task.ID)
		if err != nil {
			return translateNotFound(err, ErrTaskNotFound)
		}

		assigned := 0
		if input.Role == models.AssignmentRoleAnnotator {
			assigned = locked.TotalImages
		}
		if err := tx.Tasks().UpsertAssignments(locked.ID, userIDs, input.Role, assigned); err != nil {
			return fmt.Errorf("failed to assign users: %w", err)
		}
		if err := tx.Images().SetRequiredCountWhereUnset(locked.ID, locked.RequiredAnnotationsPerImage); err != nil {
			return fmt.Errorf("failed to set image requirements: %w", err)
		}

		if locked.Status == models.TaskStatusPending {
			locked.Status = models.TaskStatusAssigned
			if err := tx.Tasks().Update(locked); err != nil {
				return fmt.Errorf("failed to update task status: %w", err)
			}
		}

		_, err = s.aggregator.RecomputeTask(tx, locked.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.GetTask(task.ID)
}

// UnassignUsers deactivates assignments; their counters are kept
func (s *TaskService) UnassignUsers(taskID uint64, actor models.Actor, userIDs []uint64) error {
	if !actor.IsStaff() {
		return ErrStaffOnly
	}
	if len(userIDs) == 0 {
		return ErrNoUserIDsProvided
	}

	if _, err := s.store.Tasks().FindByID(taskID); err != nil {
		if isNotFound(err) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to find task: %w", err)
	}

	if err := s.store.Tasks().DeactivateAssignments(taskID, uniqueUint64(userIDs)); err != nil {
		return fmt.Errorf("failed to unassign users: %w", err)
	}

	return nil
}

// ListAssignments returns every assignment on a task the actor can view
func (s *TaskService) ListAssignments(taskID uint64, actor models.Actor) ([]models.TaskAssignment, error) {
	if _, err := s.AuthorizeView(taskID, actor); err != nil {
		return nil, err
	}

	assignments, err := s.store.Tasks().ListAssignments(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

// StartTask records that an assignee started working. An assigned task
// moves to in progress; later states are left alone.
func (s *TaskService) StartTask(taskID uint64, actor models.Actor) (*models.Task, error) {
	return s.advance(taskID, actor, func(task *models.Task, assignment *models.TaskAssignment, now time.Time) error {
		if assignment.StartedAt == nil {
			assignment.StartedAt = &now
		}
		if task.Status == models.TaskStatusAssigned {
			task.Status = models.TaskStatusInProgress
		}
		return nil
	})
}

// CompleteTask records that an assignee finished. Only an in progress task
// moves to completed; an assigned task must be started first.
func (s *TaskService) CompleteTask(taskID uint64, actor models.Actor) (*models.Task, error) {
	return s.advance(taskID, actor, func(task *models.Task, assignment *models.TaskAssignment, now time.Time) error {
		if task.Status == models.TaskStatusPending || task.Status == models.TaskStatusAssigned {
			return ErrTaskNotStarted
		}
		if assignment.StartedAt == nil {
			assignment.StartedAt = &now
		}
		assignment.CompletedAt = &now
		if task.Status == models.TaskStatusInProgress {
			task.Status = models.TaskStatusCompleted
		}
		return nil
	})
}

func (s *TaskService) advance(taskID uint64, actor models.Actor, apply func(*models.Task, *models.TaskAssignment, time.Time) error) (*models.Task, error) {
	if _, err := s.store.Tasks().FindByID(taskID); err != nil {
		if isNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	err := s.store.Transaction(func(tx repository.Store) error {
		assignment, err := tx.Tasks().FindActiveAssignment(taskID, actor.ID, models.AssignmentRoleAnnotator)
		if err != nil {
			if isNotFound(err) {
				return ErrNotTaskAssignee
			}
			return fmt.Errorf("failed to verify assignment: %w", err)
		}

		task, err := tx.Tasks().FindByIDForUpdate(taskID)
		if err != nil {
			return translateNotFound(err, ErrTaskNotFound)
		}

		previous := task.Status
		if err := apply(task, assignment, s.now()); err != nil {
			return err
		}

		if err := tx.Tasks().UpdateAssignment(assignment); err != nil {
			return fmt.Errorf("failed to update assignment: %w", err)
		}
		if previous != task.Status {
			if err := tx.Tasks().Update(task); err != nil {
				return fmt.Errorf("failed to update task status: %w", err)
			}
			log.WithFields(log.Fields{
				"task_id":  taskID,
				"from":     previous,
				"to":       task.Status,
				"actor_id": actor.ID,
			}).Info("task status advanced by assignee")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetTask(taskID)
}

// Stats counts the actor's visible tasks per status
func (s *TaskService) Stats(actor models.Actor) (*TaskStats, error) {
	counts, err := s.store.Tasks().CountByStatus(repository.TaskFilter{AssignedUserID: visibility(actor)})
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	stats := &TaskStats{ByStatus: counts}
	for _, count := range counts {
		stats.Total += count
	}
	return stats, nil
}

func normalizeKinds(kinds []models.AnnotationKind) ([]models.AnnotationKind, error) {
	result := make([]models.AnnotationKind, 0, len(kinds))
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, ErrInvalidKind
		}
		if !containsKind(result, kind) {
			result = append(result, kind)
		}
	}
	return result, nil
}

func containsKind(kinds []models.AnnotationKind, kind models.AnnotationKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func normalizeLabels(labels []string) []string {
	result := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		result = append(result, label)
	}
	return result
}

func applyRankingDefault(task *models.Task) {
	if task.RankingMax == 0 && containsKind(task.AnnotationKinds, models.KindRanking) {
		task.RankingMax = constants.DefaultRankingMax
	}
}

// removeFiles deletes stored files best effort; the rows are already gone.
func removeFiles(files FileStorage, paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := files.Delete(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("failed to remove stored file")
		}
	}
}
