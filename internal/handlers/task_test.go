package handlers

import (
	"fmt"
	"net/http"

	"github.com/yukikurage/annotation-api/internal/dto"
	"github.com/yukikurage/annotation-api/internal/models"
)

func (suite *HandlerTestSuite) TestCreateTask() {
	w := suite.as(suite.annotator, http.MethodPost, "/api/tasks", map[string]interface{}{"title": "Mine"})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.engineer, http.MethodPost, "/api/tasks", map[string]interface{}{"description": "no title"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.engineer, http.MethodPost, "/api/tasks", map[string]interface{}{
		"title":            "Birds",
		"annotation_kinds": []string{"mesh"},
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.engineer, http.MethodPost, "/api/tasks", map[string]interface{}{
		"title":            "Birds",
		"priority":         "high",
		"annotation_kinds": []string{"bbox", "ranking"},
		"labels":           []string{"gull", "tern"},
		"deadline":         "2030-01-02T15:04:05Z",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var task dto.TaskDTO
	suite.decode(w, &task)
	suite.Equal("Birds", task.Title)
	suite.Equal(models.TaskStatusPending, task.Status)
	suite.Equal(models.TaskPriorityHigh, task.Priority)
	suite.Equal([]string{"gull", "tern"}, task.Labels)
	suite.Equal(1, task.RequiredAnnotationsPerImage)
	suite.Require().NotNil(task.Deadline)
	suite.Equal(suite.engineer.ID, task.CreatorID)
}

func (suite *HandlerTestSuite) TestListAndGetTasks() {
	visible := suite.createTask(1, suite.annotator)
	hidden := suite.createTask(1, suite.annotator2)

	w := suite.as(suite.annotator, http.MethodGet, "/api/tasks", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var list dto.TaskListResponse
	suite.decode(w, &list)
	suite.Require().Len(list.Tasks, 1)
	suite.Equal(visible, list.Tasks[0].ID)
	suite.Equal(int64(1), list.Pagination.Total)

	w = suite.as(suite.engineer, http.MethodGet, "/api/tasks?status=assigned&page_size=1", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.decode(w, &list)
	suite.Len(list.Tasks, 1)
	suite.Equal(int64(2), list.Pagination.Total)
	suite.Equal(2, list.Pagination.TotalPages)

	w = suite.as(suite.engineer, http.MethodGet, "/api/tasks?status=archived", nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/tasks/%d", visible), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var task dto.TaskDTO
	suite.decode(w, &task)
	suite.Equal(visible, task.ID)
	suite.Len(task.Assignments, 1)

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/tasks/%d", hidden), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, "/api/tasks/9999", nil)
	suite.Equal(http.StatusNotFound, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, "/api/tasks/abc", nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, "/api/tasks/stats", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var stats dto.TaskStatsDTO
	suite.decode(w, &stats)
	suite.Equal(int64(1), stats.Total)
	suite.Equal(int64(1), stats.ByStatus[models.TaskStatusAssigned])
}

func (suite *HandlerTestSuite) TestUpdateTask() {
	taskID := suite.createTask(1)
	url := fmt.Sprintf("/api/tasks/%d", taskID)

	w := suite.as(suite.engineer, http.MethodPut, url, map[string]interface{}{
		"title":    "Renamed",
		"deadline": "2030-01-02T15:04:05Z",
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var task dto.TaskDTO
	suite.decode(w, &task)
	suite.Equal("Renamed", task.Title)
	suite.NotNil(task.Deadline)

	// Absent fields are left alone; an explicit null clears the deadline.
	w = suite.as(suite.engineer, http.MethodPut, url, map[string]interface{}{"deadline": nil})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.decode(w, &task)
	suite.Equal("Renamed", task.Title)
	suite.Nil(task.Deadline)

	w = suite.as(suite.engineer, http.MethodPut, url, map[string]interface{}{"status": "archived"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.reviewer, http.MethodPut, url, map[string]interface{}{"title": "x"})
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *HandlerTestSuite) TestAssignAndUnassign() {
	taskID := suite.createTask(1)

	w := suite.as(suite.engineer, http.MethodPost, fmt.Sprintf("/api/tasks/%d/assign", taskID), nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.engineer, http.MethodPost,
		fmt.Sprintf("/api/tasks/%d/assign?assignee_id=%d", taskID, suite.annotator.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.as(suite.engineer, http.MethodPost, fmt.Sprintf("/api/tasks/%d/assign-multiple", taskID),
		map[string]interface{}{"user_ids": []uint64{9999}})
	suite.Equal(http.StatusNotFound, w.Code)

	w = suite.as(suite.annotator, http.MethodPost, fmt.Sprintf("/api/tasks/%d/assign-multiple", taskID),
		map[string]interface{}{"user_ids": []uint64{suite.annotator2.ID}})
	suite.Equal(http.StatusForbidden, w.Code)

	suite.assignReviewer(taskID, suite.reviewer)

	w = suite.as(suite.engineer, http.MethodGet, fmt.Sprintf("/api/tasks/%d/assignments", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Assignments []dto.TaskAssignmentDTO `json:"assignments"`
	}
	suite.decode(w, &resp)
	suite.Len(resp.Assignments, 2)

	w = suite.as(suite.engineer, http.MethodPost, fmt.Sprintf("/api/tasks/%d/unassign", taskID),
		map[string]interface{}{"user_ids": []uint64{suite.annotator.ID}})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), nil)
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *HandlerTestSuite) TestStartCompleteAndDelete() {
	taskID := suite.createTask(1, suite.annotator)

	w := suite.as(suite.annotator2, http.MethodPost, fmt.Sprintf("/api/tasks/%d/start", taskID), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.annotator, http.MethodPost, fmt.Sprintf("/api/tasks/%d/complete", taskID), nil)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("CONFLICT", suite.errorCode(w))

	w = suite.as(suite.annotator, http.MethodPost, fmt.Sprintf("/api/tasks/%d/start", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var task dto.TaskDTO
	suite.decode(w, &task)
	suite.Equal(models.TaskStatusInProgress, task.Status)

	w = suite.as(suite.annotator, http.MethodPost, fmt.Sprintf("/api/tasks/%d/complete", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.decode(w, &task)
	suite.Equal(models.TaskStatusCompleted, task.Status)

	w = suite.as(suite.engineer, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", taskID), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.admin, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.as(suite.admin, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), nil)
	suite.Equal(http.StatusNotFound, w.Code)
}
