package handlers

import (
	"fmt"
	"net/http"

	"github.com/yukikurage/annotation-api/internal/dto"
	"github.com/yukikurage/annotation-api/internal/models"
)

func (suite *HandlerTestSuite) TestCreateAnnotation() {
	taskID := suite.createTask(1, suite.annotator)
	imageID := suite.addImage(taskID, "street.png")

	w := suite.as(suite.annotator, http.MethodPost, "/api/annotations", map[string]interface{}{
		"image_id":        imageID,
		"annotation_type": "bbox",
		"label":           " person ",
		"data":            map[string]interface{}{"x": 1, "y": 2, "width": 10, "height": 5},
		"notes":           "partly hidden",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var annotation dto.AnnotationDTO
	suite.decode(w, &annotation)
	suite.Equal("person", annotation.Label)
	suite.Equal(models.AnnotationStatusSubmitted, annotation.Status)
	suite.Equal(suite.annotator.ID, annotation.AnnotatorID)
	suite.Equal(taskID, annotation.TaskID)
	suite.EqualValues(10, annotation.Data["width"])

	cases := []struct {
		name string
		user models.User
		body map[string]interface{}
		code int
	}{
		{
			name: "missing image",
			user: suite.annotator,
			body: map[string]interface{}{"image_id": 9999, "annotation_type": "bbox", "label": "car"},
			code: http.StatusNotFound,
		},
		{
			name: "kind not enabled",
			user: suite.annotator,
			body: map[string]interface{}{"image_id": imageID, "annotation_type": "polygon", "label": "car"},
			code: http.StatusBadRequest,
		},
		{
			name: "label not allowed",
			user: suite.annotator,
			body: map[string]interface{}{
				"image_id": imageID, "annotation_type": "bbox", "label": "bus",
				"data": map[string]interface{}{"x": 1, "y": 2, "width": 10, "height": 5},
			},
			code: http.StatusBadRequest,
		},
		{
			name: "bad payload",
			user: suite.annotator,
			body: map[string]interface{}{
				"image_id": imageID, "annotation_type": "bbox", "label": "car",
				"data": map[string]interface{}{"x": 1},
			},
			code: http.StatusBadRequest,
		},
		{
			name: "not assigned",
			user: suite.annotator2,
			body: map[string]interface{}{
				"image_id": imageID, "annotation_type": "classification", "label": "car",
			},
			code: http.StatusForbidden,
		},
		{
			name: "admin cannot author",
			user: suite.admin,
			body: map[string]interface{}{
				"image_id": imageID, "annotation_type": "classification", "label": "car",
			},
			code: http.StatusForbidden,
		},
		{
			name: "missing type",
			user: suite.annotator,
			body: map[string]interface{}{"image_id": imageID},
			code: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		suite.Run(tc.name, func() {
			w := suite.as(tc.user, http.MethodPost, "/api/annotations", tc.body)
			suite.Equal(tc.code, w.Code, w.Body.String())
		})
	}
}

func (suite *HandlerTestSuite) TestDraftAnnotationIsNotCounted() {
	taskID := suite.createTask(1, suite.annotator)
	imageID := suite.addImage(taskID, "street.png")

	w := suite.as(suite.annotator, http.MethodPost, "/api/annotations", map[string]interface{}{
		"image_id":        imageID,
		"annotation_type": "classification",
		"label":           "car",
		"status":          "draft",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var draft dto.AnnotationDTO
	suite.decode(w, &draft)
	suite.Equal(models.AnnotationStatusDraft, draft.Status)

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/images/%d/annotations", imageID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var resp dto.ImageAnnotationsResponse
	suite.decode(w, &resp)
	suite.False(resp.Image.IsAnnotated)
	suite.Equal(models.ImageStatusInProgress, resp.Image.AnnotationStatus)

	// Submitting the draft through an update counts it.
	w = suite.as(suite.annotator, http.MethodPut, fmt.Sprintf("/api/annotations/%d", draft.ID),
		map[string]interface{}{"status": "submitted"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/images/%d/annotations", imageID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.decode(w, &resp)
	suite.True(resp.Image.IsAnnotated)
	suite.Equal(models.ImageStatusPendingReview, resp.Image.AnnotationStatus)
	suite.Equal([]uint64{suite.annotator.ID}, resp.Image.CompletedByUsers)
}

func (suite *HandlerTestSuite) TestListAndGetAnnotations() {
	taskID := suite.createTask(2, suite.annotator, suite.annotator2)
	imageID := suite.addImage(taskID, "street.png")
	mine := suite.submitBox(imageID, suite.annotator, "car")
	theirs := suite.submitBox(imageID, suite.annotator2, "person")

	w := suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/annotations?task_id=%d", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var list dto.AnnotationListResponse
	suite.decode(w, &list)
	suite.Require().Len(list.Annotations, 1)
	suite.Equal(mine, list.Annotations[0].ID)

	w = suite.as(suite.engineer, http.MethodGet,
		fmt.Sprintf("/api/annotations?image_id=%d&annotator_id=%d", imageID, suite.annotator2.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.decode(w, &list)
	suite.Require().Len(list.Annotations, 1)
	suite.Equal(theirs, list.Annotations[0].ID)
	suite.Require().NotNil(list.Annotations[0].Annotator)
	suite.Equal(suite.annotator2.Username, list.Annotations[0].Annotator.Username)

	w = suite.as(suite.engineer, http.MethodGet, "/api/annotations?status=pending", nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.engineer, http.MethodGet, "/api/annotations?image_id=abc", nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/annotations/%d", theirs), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.annotator2, http.MethodGet, fmt.Sprintf("/api/annotations/%d", theirs), nil)
	suite.Equal(http.StatusOK, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, "/api/annotations/9999", nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestUpdateAndDeleteAnnotation() {
	taskID := suite.createTask(1, suite.annotator, suite.annotator2)
	imageID := suite.addImage(taskID, "street.png")
	id := suite.submitBox(imageID, suite.annotator, "car")
	url := fmt.Sprintf("/api/annotations/%d", id)

	w := suite.as(suite.annotator, http.MethodPut, url, map[string]interface{}{"label": "person"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var annotation dto.AnnotationDTO
	suite.decode(w, &annotation)
	suite.Equal("person", annotation.Label)

	w = suite.as(suite.annotator2, http.MethodPut, url, map[string]interface{}{"label": "car"})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.annotator, http.MethodPut, url, map[string]interface{}{"label": "bus"})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.annotator2, http.MethodDelete, url, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.annotator, http.MethodDelete, url, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, url, nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestDeleteRejectedAllowsReannotation() {
	taskID := suite.createTask(1, suite.annotator)
	suite.assignReviewer(taskID, suite.reviewer)
	imageID := suite.addImage(taskID, "street.png")
	suite.submitBox(imageID, suite.annotator, "car")

	w := suite.as(suite.reviewer, http.MethodPost, fmt.Sprintf("/api/images/%d/review", imageID),
		map[string]interface{}{"status": "rejected", "review_notes": "box too loose"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.as(suite.annotator, http.MethodDelete, fmt.Sprintf("/api/images/%d/rejected", imageID), nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	suite.decode(w, &resp)
	suite.Equal(int64(1), resp.Deleted)

	// A second call has nothing left to remove.
	w = suite.as(suite.annotator, http.MethodDelete, fmt.Sprintf("/api/images/%d/rejected", imageID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.decode(w, &resp)
	suite.Equal(int64(0), resp.Deleted)

	suite.submitBox(imageID, suite.annotator, "person")
}
