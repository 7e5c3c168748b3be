package services

import (
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
)

func (suite *ServiceTestSuite) TestReviewImage_ApprovesEveryCurrentRow() {
	task := suite.createTask(2, suite.annotator, suite.annotator2)
	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)
	img := suite.addImage(task.ID, "a.png")

	suite.submitBox(img.ID, suite.annotator, "car")
	suite.submitBox(img.ID, suite.annotator, "person")
	suite.submitBox(img.ID, suite.annotator2, "car")
	suite.Equal(models.TaskStatusCompleted, suite.reloadTask(task.ID).Status)

	result, err := suite.reviews.ReviewImage(img.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "ok")
	suite.Require().NoError(err)
	suite.Len(result.Annotations, 2)
	for _, annotation := range result.Annotations {
		suite.Equal(models.AnnotationStatusApproved, annotation.Status)
		suite.Equal(suite.reviewer.ID, *annotation.ReviewerID)
		suite.Equal("ok", annotation.ReviewNotes)
	}

	suite.True(result.Image.IsReviewed)
	suite.Equal(models.ImageStatusApproved, result.Image.AnnotationStatus)

	task = suite.reloadTask(task.ID)
	suite.Equal(models.TaskStatusReviewed, task.Status)
	suite.Equal(1, task.ReviewedImages)

	// The superseded row keeps its original status.
	all, total, err := suite.annotations.List(ListAnnotationsInput{Actor: suite.admin.Actor(), ImageID: &img.ID})
	suite.Require().NoError(err)
	suite.Equal(int64(3), total)
	statuses := map[models.AnnotationStatus]int{}
	for _, a := range all {
		statuses[a.Status]++
	}
	suite.Equal(1, statuses[models.AnnotationStatusSubmitted])
}

func (suite *ServiceTestSuite) TestReviewImage_NothingToReview() {
	task := suite.createTask(1, suite.annotator)
	img := suite.addImage(task.ID, "a.png")

	_, err := suite.reviews.ReviewImage(img.ID, suite.admin.Actor(), models.AnnotationStatusApproved, "")
	suite.ErrorIs(err, ErrNothingToReview)
	suite.ErrorIs(err, apierrors.ErrEmptyCollection)
}

func (suite *ServiceTestSuite) TestReview_Authorization() {
	task := suite.createTask(1, suite.annotator)
	img := suite.addImage(task.ID, "a.png")
	annotation := suite.submitBox(img.ID, suite.annotator, "car")

	_, err := suite.reviews.ReviewOne(annotation.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "")
	suite.ErrorIs(err, ErrReviewerNotActive)

	_, err = suite.reviews.ReviewImage(img.ID, suite.engineer.Actor(), models.AnnotationStatusApproved, "")
	suite.ErrorIs(err, ErrReviewerNotActive)

	_, err = suite.reviews.ReviewOne(annotation.ID, suite.annotator.Actor(), models.AnnotationStatusApproved, "")
	suite.ErrorIs(err, ErrReviewerNotActive)

	_, err = suite.reviews.ReviewOne(annotation.ID, suite.admin.Actor(), models.AnnotationStatusSubmitted, "")
	suite.ErrorIs(err, ErrInvalidDecision)

	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)
	result, err := suite.reviews.ReviewOne(annotation.ID, suite.reviewer.Actor(), models.AnnotationStatusRejected, "wrong label")
	suite.Require().NoError(err)
	suite.Equal(models.ImageStatusRejected, result.Image.AnnotationStatus)
	suite.False(result.Image.IsReviewed)

	// An unassigned reviewer loses access again.
	suite.Require().NoError(suite.tasks.UnassignUsers(task.ID, suite.engineer.Actor(), []uint64{suite.reviewer.ID}))
	_, err = suite.reviews.ReviewOne(annotation.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "")
	suite.ErrorIs(err, ErrReviewerNotActive)
}

func (suite *ServiceTestSuite) TestQuality_TaskMetricsAndPendingQueue() {
	task := suite.createTask(1, suite.annotator, suite.annotator2)
	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)
	a := suite.addImage(task.ID, "a.png")
	b := suite.addImage(task.ID, "b.png")

	first := suite.submitBox(a.ID, suite.annotator, "car")
	suite.submitBox(a.ID, suite.annotator2, "car")
	suite.submitBox(b.ID, suite.annotator, "person")

	_, err := suite.reviews.ReviewOne(first.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "")
	suite.Require().NoError(err)

	pending, total, err := suite.quality.PendingReviews(PendingReviewsInput{Actor: suite.reviewer.Actor(), TaskID: &task.ID})
	suite.Require().NoError(err)
	suite.Equal(int64(2), total)
	suite.Len(pending, 2)

	_, _, err = suite.quality.PendingReviews(PendingReviewsInput{Actor: suite.annotator.Actor()})
	suite.ErrorIs(err, ErrQualityAccessDenied)

	metrics, err := suite.quality.TaskMetrics(task.ID, suite.reviewer.Actor())
	suite.Require().NoError(err)
	suite.Equal(2, metrics.TotalImages)
	suite.Equal(int64(1), metrics.Approved)
	suite.Equal(int64(2), metrics.Pending)
	suite.Equal(1.0, metrics.ApprovalRate)
	suite.Len(metrics.Annotators, 2)
	suite.Equal(int64(2), metrics.ImagesByStatus[models.ImageStatusPendingReview])

	outsider := suite.createUser(models.RoleReviewer)
	_, err = suite.quality.TaskMetrics(task.ID, outsider.Actor())
	suite.ErrorIs(err, ErrTaskAccessDenied)

	stats, err := suite.quality.ReviewStats(suite.reviewer.Actor(), 0, &suite.admin.ID)
	suite.Require().NoError(err)
	suite.Equal(suite.reviewer.ID, *stats.ReviewerID)
	suite.Equal(30, stats.Days)
	suite.Equal(int64(1), stats.Approved)
	suite.Equal(int64(1), stats.Total)

	everyone, err := suite.quality.ReviewStats(suite.admin.Actor(), 7, nil)
	suite.Require().NoError(err)
	suite.Nil(everyone.ReviewerID)
	suite.Equal(int64(1), everyone.Total)
}

func (suite *ServiceTestSuite) TestReview_RejectingReopensReviewedImage() {
	task := suite.createTask(2, suite.annotator, suite.annotator2)
	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)
	first := suite.addImage(task.ID, "a.png")
	second := suite.addImage(task.ID, "b.png")
	rejected := suite.submitBox(first.ID, suite.annotator, "car")
	suite.submitBox(first.ID, suite.annotator2, "car")
	suite.submitBox(second.ID, suite.annotator, "person")
	suite.submitBox(second.ID, suite.annotator2, "person")
	suite.Equal(models.TaskStatusCompleted, suite.reloadTask(task.ID).Status)

	result, err := suite.reviews.ReviewImage(first.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "")
	suite.Require().NoError(err)
	suite.True(result.Image.IsReviewed)
	suite.Equal(1, suite.reloadTask(task.ID).ReviewedImages)

	result, err = suite.reviews.ReviewOne(rejected.ID, suite.reviewer.Actor(), models.AnnotationStatusRejected, "wrong box")
	suite.Require().NoError(err)
	suite.False(result.Image.IsReviewed)
	suite.Nil(result.Image.ReviewedAt)
	suite.Equal(models.ImageStatusRejected, result.Image.AnnotationStatus)

	reloaded := suite.reloadTask(task.ID)
	suite.Equal(0, reloaded.ReviewedImages)
	suite.Equal(models.TaskStatusCompleted, reloaded.Status)

	// Approving the other image does not finish the review while one is rejected.
	_, err = suite.reviews.ReviewImage(second.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "")
	suite.Require().NoError(err)
	reloaded = suite.reloadTask(task.ID)
	suite.Equal(1, reloaded.ReviewedImages)
	suite.Equal(models.TaskStatusCompleted, reloaded.Status)
}

func (suite *ServiceTestSuite) TestReview_PurgedRejectionLeavesCurrentRowsReviewed() {
	task := suite.createTask(2, suite.annotator, suite.annotator2)
	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)
	img := suite.addImage(task.ID, "a.png")
	rejected := suite.submitBox(img.ID, suite.annotator, "car")
	approved := suite.submitBox(img.ID, suite.annotator2, "car")

	_, err := suite.reviews.ReviewOne(rejected.ID, suite.reviewer.Actor(), models.AnnotationStatusRejected, "")
	suite.Require().NoError(err)
	_, err = suite.reviews.ReviewOne(approved.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "")
	suite.Require().NoError(err)

	deleted, err := suite.annotations.DeleteRejectedForAuthor(img.ID, suite.annotator.Actor())
	suite.Require().NoError(err)
	suite.Equal(int64(1), deleted)

	// Review state follows the current rows; annotation state is sticky.
	reloaded := suite.reloadImage(img.ID)
	suite.Equal(1, reloaded.AnnotationCount)
	suite.True(reloaded.IsAnnotated)
	suite.True(reloaded.IsReviewed)
	suite.Equal(models.ImageStatusApproved, reloaded.AnnotationStatus)

	// A fresh submission puts the image back in the review queue.
	suite.submitBox(img.ID, suite.annotator, "car")
	reloaded = suite.reloadImage(img.ID)
	suite.Equal(2, reloaded.AnnotationCount)
	suite.False(reloaded.IsReviewed)
	suite.Equal(models.ImageStatusPendingReview, reloaded.AnnotationStatus)
}
