package services

import (
	"fmt"

	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
)

// hasActiveAssignment reports whether the user holds an active assignment
// with the given role on the task.
func hasActiveAssignment(store repository.Store, taskID, userID uint64, role models.AssignmentRole) (bool, error) {
	_, err := store.Tasks().FindActiveAssignment(taskID, userID, role)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify assignment: %w", err)
}

// canViewTask: staff see every task, everyone else needs an active assignment.
func canViewTask(store repository.Store, actor models.Actor, taskID uint64) (bool, error) {
	if actor.IsStaff() {
		return true, nil
	}
	assignment, err := store.Tasks().FindAssignment(taskID, actor.ID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to verify assignment: %w", err)
	}
	return assignment.IsActive, nil
}

// canReviewTask applies one rule to single and bulk review: administrators
// always, reviewers only on tasks they are actively assigned to review.
func canReviewTask(store repository.Store, actor models.Actor, taskID uint64) (bool, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleReviewer:
		return hasActiveAssignment(store, taskID, actor.ID, models.AssignmentRoleReviewer)
	default:
		return false, nil
	}
}

// uniqueUint64 removes duplicate values from a slice of uint64
func uniqueUint64(values []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(values))
	result := make([]uint64, 0, len(values))

	for _, v := range values {
		if _, exists := seen[v]; exists {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}
