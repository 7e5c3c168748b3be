package handlers

import (
	"fmt"
	"net/http"

	"github.com/yukikurage/annotation-api/internal/dto"
	"github.com/yukikurage/annotation-api/internal/models"
)

func (suite *HandlerTestSuite) TestUploadImages() {
	taskID := suite.createTask(1, suite.annotator)

	w := suite.upload(suite.engineer, taskID, map[string][]byte{
		"street.png": pngBytes(suite.T(), 40, 20),
		"notes.txt":  []byte("not an image"),
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Uploaded []dto.ImageDTO `json:"uploaded"`
		Failed   []struct {
			Filename string `json:"filename"`
			Error    string `json:"error"`
		} `json:"failed"`
	}
	suite.decode(w, &resp)
	suite.Require().Len(resp.Uploaded, 1)
	suite.Equal("street.png", resp.Uploaded[0].OriginalFilename)
	suite.Equal("batch", resp.Uploaded[0].FolderPath)
	suite.Equal(40, resp.Uploaded[0].Width)
	suite.True(resp.Uploaded[0].HasThumbnail)
	suite.Equal(models.ImageStatusUnannotated, resp.Uploaded[0].AnnotationStatus)
	suite.Require().Len(resp.Failed, 1)
	suite.Equal("notes.txt", resp.Failed[0].Filename)

	// A single bad file fails the request with its own error.
	w = suite.upload(suite.engineer, taskID, map[string][]byte{"notes.txt": []byte("not an image")})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.upload(suite.engineer, taskID, map[string][]byte{
		"a.txt": []byte("x"),
		"b.gif": []byte("y"),
	})
	suite.Require().Equal(http.StatusBadRequest, w.Code)
	var failure struct {
		Code    string        `json:"code"`
		Details []interface{} `json:"details"`
	}
	suite.decode(w, &failure)
	suite.Equal("INVALID_INPUT", failure.Code)
	suite.Len(failure.Details, 2)

	w = suite.upload(suite.annotator, taskID, map[string][]byte{"a.png": pngBytes(suite.T(), 4, 4)})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.upload(suite.engineer, 9999, map[string][]byte{"a.png": pngBytes(suite.T(), 4, 4)})
	suite.Equal(http.StatusNotFound, w.Code)

	w = suite.upload(suite.engineer, taskID, map[string][]byte{})
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.as(suite.engineer, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var task dto.TaskDTO
	suite.decode(w, &task)
	suite.Equal(1, task.TotalImages)
}

func (suite *HandlerTestSuite) TestListImages() {
	taskID := suite.createTask(1, suite.annotator)
	a := suite.addImage(taskID, "a.png")
	suite.addImage(taskID, "b.png")
	suite.submitBox(a, suite.annotator, "car")

	w := suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/tasks/%d/images", taskID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var list dto.ImageListResponse
	suite.decode(w, &list)
	suite.Require().Len(list.Images, 2)
	suite.Equal(int64(2), list.Pagination.Total)
	suite.Require().NotNil(list.Images[0].MyStatus)
	suite.Equal(models.AnnotationStatusSubmitted, *list.Images[0].MyStatus)
	suite.Nil(list.Images[1].MyStatus)

	w = suite.as(suite.annotator2, http.MethodGet, fmt.Sprintf("/api/tasks/%d/images", taskID), nil)
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *HandlerTestSuite) TestServeImageFiles() {
	taskID := suite.createTask(1, suite.annotator)
	imageID := suite.addImage(taskID, "street.png")

	w := suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/images/%d/file", imageID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal(pngBytes(suite.T(), 40, 20), w.Body.Bytes())
	suite.Equal("image/png", w.Header().Get("Content-Type"))

	w = suite.as(suite.annotator, http.MethodGet, fmt.Sprintf("/api/images/%d/thumbnail", imageID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.NotEmpty(w.Body.Bytes())

	w = suite.as(suite.annotator2, http.MethodGet, fmt.Sprintf("/api/images/%d/file", imageID), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.annotator, http.MethodGet, "/api/images/9999/file", nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestDeleteImage() {
	taskID := suite.createTask(1, suite.annotator)
	imageID := suite.addImage(taskID, "street.png")

	w := suite.as(suite.annotator, http.MethodDelete, fmt.Sprintf("/api/images/%d", imageID), nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.as(suite.engineer, http.MethodDelete, fmt.Sprintf("/api/images/%d", imageID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.as(suite.engineer, http.MethodGet, fmt.Sprintf("/api/images/%d/annotations", imageID), nil)
	suite.Equal(http.StatusNotFound, w.Code)
}
