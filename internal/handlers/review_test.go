package handlers

import (
	"fmt"
	"net/http"

	"github.com/yukikurage/annotation-api/internal/dto"
	"github.com/yukikurage/annotation-api/internal/models"
)

func (suite *HandlerTestSuite) TestReviewImage() {
	taskID := suite.createTask(1, suite.annotator, suite.annotator2)
	suite.assignReviewer(taskID, suite.reviewer)
	imageID := suite.addImage(taskID, "street.png")
	suite.submitBox(imageID, suite.annotator, "car")
	suite.submitBox(imageID, suite.annotator2, "person")
	url := fmt.Sprintf("/api/images/%d/review", imageID)

	w := suite.as(suite.engineer, http.MethodPost, url, map[string]interface{}{"status": "approved"})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.reviewer, http.MethodPost, url, map[string]interface{}{"status": "submitted"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.reviewer, http.MethodPost, url, map[string]interface{}{})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.reviewer, http.MethodPost, url, map[string]interface{}{"status": "approved", "review_notes": "ok"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.ReviewResponse
	suite.decode(w, &resp)
	suite.Equal(2, resp.Reviewed)
	suite.True(resp.Image.IsReviewed)
	suite.Equal(models.ImageStatusApproved, resp.Image.AnnotationStatus)
	for _, annotation := range resp.Annotations {
		suite.Equal(models.AnnotationStatusApproved, annotation.Status)
		suite.Equal("ok", annotation.ReviewNotes)
		suite.Require().NotNil(annotation.ReviewerID)
		suite.Equal(suite.reviewer.ID, *annotation.ReviewerID)
	}

	w = suite.as(suite.reviewer, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var task dto.TaskDTO
	suite.decode(w, &task)
	suite.Equal(models.TaskStatusReviewed, task.Status)
	suite.Equal(1, task.ReviewedImages)
}

func (suite *HandlerTestSuite) TestReviewImage_NothingToReview() {
	taskID := suite.createTask(1, suite.annotator)
	imageID := suite.addImage(taskID, "street.png")

	w := suite.as(suite.admin, http.MethodPost, fmt.Sprintf("/api/images/%d/review", imageID),
		map[string]interface{}{"status": "approved"})
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("EMPTY_COLLECTION", suite.errorCode(w))

	w = suite.as(suite.admin, http.MethodPost, "/api/images/9999/review", map[string]interface{}{"status": "approved"})
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestReviewAnnotation() {
	taskID := suite.createTask(2, suite.annotator, suite.annotator2)
	suite.assignReviewer(taskID, suite.reviewer)
	imageID := suite.addImage(taskID, "street.png")
	first := suite.submitBox(imageID, suite.annotator, "car")
	suite.submitBox(imageID, suite.annotator2, "car")

	w := suite.as(suite.reviewer, http.MethodPost, fmt.Sprintf("/api/annotations/%d/review", first),
		map[string]interface{}{"status": "rejected", "review_notes": "wrong class"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.ReviewResponse
	suite.decode(w, &resp)
	suite.Equal(1, resp.Reviewed)
	suite.Equal(models.AnnotationStatusRejected, resp.Annotations[0].Status)
	// The other annotation is still waiting for review.
	suite.Equal(models.ImageStatusPendingReview, resp.Image.AnnotationStatus)
	suite.True(resp.Image.IsAnnotated)

	w = suite.as(suite.annotator, http.MethodPost, fmt.Sprintf("/api/annotations/%d/review", first),
		map[string]interface{}{"status": "approved"})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.reviewer, http.MethodPost, "/api/annotations/9999/review",
		map[string]interface{}{"status": "approved"})
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestQualityEndpoints() {
	taskID := suite.createTask(1, suite.annotator, suite.annotator2)
	suite.assignReviewer(taskID, suite.reviewer)
	a := suite.addImage(taskID, "a.png")
	b := suite.addImage(taskID, "b.png")
	suite.submitBox(a, suite.annotator, "car")
	suite.submitBox(b, suite.annotator2, "person")

	w := suite.as(suite.reviewer, http.MethodGet, fmt.Sprintf("/api/quality/pending-reviews?task_id=%d", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var pending dto.AnnotationListResponse
	suite.decode(w, &pending)
	suite.Len(pending.Annotations, 2)

	w = suite.as(suite.annotator, http.MethodGet, "/api/quality/pending-reviews", nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.reviewer, http.MethodPost, fmt.Sprintf("/api/images/%d/review", a),
		map[string]interface{}{"status": "approved"})
	suite.Require().Equal(http.StatusOK, w.Code)
	w = suite.as(suite.reviewer, http.MethodPost, fmt.Sprintf("/api/images/%d/review", b),
		map[string]interface{}{"status": "rejected"})
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.as(suite.engineer, http.MethodGet, fmt.Sprintf("/api/quality/metrics/%d", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var metrics dto.TaskQualityDTO
	suite.decode(w, &metrics)
	suite.Equal(2, metrics.TotalImages)
	suite.Equal(int64(1), metrics.Approved)
	suite.Equal(int64(1), metrics.Rejected)
	suite.InDelta(0.5, metrics.ApprovalRate, 0.001)
	suite.Len(metrics.Annotators, 2)

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/quality/metrics/%d", taskID), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.reviewer, http.MethodGet, "/api/quality/review-stats?days=7", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var stats dto.ReviewStatsDTO
	suite.decode(w, &stats)
	suite.Equal(7, stats.Days)
	suite.Equal(int64(2), stats.Total)
	suite.Require().NotNil(stats.ReviewerID)
	suite.Equal(suite.reviewer.ID, *stats.ReviewerID)

	w = suite.as(suite.admin, http.MethodGet, "/api/quality/review-stats?days=abc", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}
