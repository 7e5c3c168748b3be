package services

import (
	"github.com/yukikurage/annotation-api/internal/constants"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
)

func (suite *ServiceTestSuite) TestSubmit_Permissions() {
	task := suite.createTask(1, suite.annotator)
	img := suite.addImage(task.ID, "a.png")

	input := SubmitAnnotationInput{
		ImageID: img.ID,
		Kind:    models.KindBoundingBox,
		Label:   "car",
		Data:    map[string]any{"x": 0, "y": 0, "width": 1, "height": 1},
	}

	input.Actor = suite.admin.Actor()
	_, err := suite.annotations.Submit(input)
	suite.ErrorIs(err, ErrAdminCannotAnnotate)

	input.Actor = suite.annotator2.Actor()
	_, err = suite.annotations.Submit(input)
	suite.ErrorIs(err, ErrNotAssignedAnnotator)

	input.Actor = suite.annotator.Actor()
	input.ImageID = 9999
	_, err = suite.annotations.Submit(input)
	suite.ErrorIs(err, ErrImageNotFound)

	// Engineers may annotate without an assignment.
	input.Actor = suite.engineer.Actor()
	input.ImageID = img.ID
	_, err = suite.annotations.Submit(input)
	suite.NoError(err)
}

func (suite *ServiceTestSuite) TestSubmit_KindLabelAndPayloadChecks() {
	task := suite.createTask(1, suite.annotator)
	img := suite.addImage(task.ID, "a.png")

	_, err := suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: models.KindPolygon, Label: "car",
		Data: map[string]any{"points": [][]float64{{0, 0}, {1, 0}, {1, 1}}},
	})
	suite.ErrorIs(err, ErrKindNotAllowed)

	_, err = suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: "scribble", Label: "car",
	})
	suite.ErrorIs(err, ErrKindNotAllowed)

	_, err = suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: models.KindClassification, Label: "dog",
	})
	suite.ErrorIs(err, ErrLabelNotAllowed)

	_, err = suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: models.KindBoundingBox, Label: "car",
		Data: map[string]any{"x": 0},
	})
	suite.ErrorIs(err, apierrors.ErrValidation)

	// Labels are trimmed before the allow-list check.
	annotation, err := suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: models.KindClassification, Label: "  person ",
	})
	suite.Require().NoError(err)
	suite.Equal("person", annotation.Label)
	suite.Equal(models.AnnotationStatusSubmitted, annotation.Status)
	suite.Equal(task.ID, annotation.TaskID)
}

func (suite *ServiceTestSuite) TestSubmit_RankingUsesDefaultMax() {
	task, err := suite.tasks.CreateTask(CreateTaskInput{
		Actor:           suite.engineer.Actor(),
		Title:           "Rank the crops",
		AnnotationKinds: []models.AnnotationKind{models.KindRanking},
	})
	suite.Require().NoError(err)
	suite.Equal(constants.DefaultRankingMax, task.RankingMax)
	suite.assign(task.ID, models.AssignmentRoleAnnotator, suite.annotator)
	img := suite.addImage(task.ID, "a.png")

	annotation, err := suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: models.KindRanking,
		Data: map[string]any{"ranking": " 312 "},
	})
	suite.Require().NoError(err)
	suite.Equal("312", annotation.Data["ranking"])

	_, err = suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: models.KindRanking,
		Data: map[string]any{"ranking": "1234"},
	})
	suite.ErrorIs(err, apierrors.ErrValidation)
}

func (suite *ServiceTestSuite) TestSubmit_ResubmissionKeepsHistory() {
	task := suite.createTask(1, suite.annotator)
	img := suite.addImage(task.ID, "a.png")

	first := suite.submitBox(img.ID, suite.annotator, "car")
	second := suite.submitBox(img.ID, suite.annotator, "person")
	suite.Greater(second.ID, first.ID)

	current, total, err := suite.annotations.List(ListAnnotationsInput{
		Actor:       suite.annotator.Actor(),
		ImageID:     &img.ID,
		CurrentOnly: true,
	})
	suite.Require().NoError(err)
	suite.Equal(int64(1), total)
	suite.Equal(second.ID, current[0].ID)

	_, total, err = suite.annotations.List(ListAnnotationsInput{Actor: suite.annotator.Actor(), ImageID: &img.ID})
	suite.Require().NoError(err)
	suite.Equal(int64(2), total)

	suite.Equal(1, suite.reloadImage(img.ID).AnnotationCount)
}

func (suite *ServiceTestSuite) TestUpdate_AuthorAndReviewerFields() {
	task := suite.createTask(1, suite.annotator, suite.annotator2)
	img := suite.addImage(task.ID, "a.png")

	draft, err := suite.annotations.Submit(SubmitAnnotationInput{
		ImageID: img.ID, Actor: suite.annotator.Actor(), Kind: models.KindClassification, Label: "car", Draft: true,
	})
	suite.Require().NoError(err)

	label := "person"
	_, err = suite.annotations.Update(draft.ID, suite.annotator2.Actor(), UpdateAnnotationInput{Label: &label})
	suite.ErrorIs(err, ErrNotAnnotationAuthor)

	approved := models.AnnotationStatusApproved
	_, err = suite.annotations.Update(draft.ID, suite.annotator.Actor(), UpdateAnnotationInput{Status: &approved})
	suite.ErrorIs(err, ErrReviewPermission)

	bogus := models.AnnotationStatus("done")
	_, err = suite.annotations.Update(draft.ID, suite.annotator.Actor(), UpdateAnnotationInput{Status: &bogus})
	suite.ErrorIs(err, ErrInvalidStatus)

	dog := "dog"
	_, err = suite.annotations.Update(draft.ID, suite.annotator.Actor(), UpdateAnnotationInput{Label: &dog})
	suite.ErrorIs(err, ErrLabelNotAllowed)

	submitted := models.AnnotationStatusSubmitted
	updated, err := suite.annotations.Update(draft.ID, suite.annotator.Actor(), UpdateAnnotationInput{
		Label:  &label,
		Status: &submitted,
	})
	suite.Require().NoError(err)
	suite.Equal("person", updated.Label)
	suite.Equal(models.AnnotationStatusSubmitted, updated.Status)
	suite.Nil(updated.ReviewerID)
	suite.True(suite.reloadImage(img.ID).IsAnnotated)

	notes := "looks right"
	reviewed, err := suite.annotations.Update(draft.ID, suite.admin.Actor(), UpdateAnnotationInput{
		Status:      &approved,
		ReviewNotes: &notes,
	})
	suite.Require().NoError(err)
	suite.Equal(suite.admin.ID, *reviewed.ReviewerID)
	suite.NotNil(reviewed.ReviewedAt)
	suite.Equal(models.ImageStatusApproved, suite.reloadImage(img.ID).AnnotationStatus)
}

func (suite *ServiceTestSuite) TestDelete_AuthorOrAdmin() {
	task := suite.createTask(1, suite.annotator, suite.annotator2)
	img := suite.addImage(task.ID, "a.png")
	annotation := suite.submitBox(img.ID, suite.annotator, "car")

	suite.ErrorIs(suite.annotations.Delete(annotation.ID, suite.annotator2.Actor()), ErrAnnotationDeleteDenied)
	suite.ErrorIs(suite.annotations.Delete(9999, suite.annotator.Actor()), ErrAnnotationNotFound)

	suite.Require().NoError(suite.annotations.Delete(annotation.ID, suite.admin.Actor()))
	img = suite.reloadImage(img.ID)
	suite.Equal(0, img.AnnotationCount)
	suite.True(img.IsAnnotated)
}

func (suite *ServiceTestSuite) TestDeleteRejectedForAuthor_NothingToDelete() {
	task := suite.createTask(1, suite.annotator)
	img := suite.addImage(task.ID, "a.png")
	suite.submitBox(img.ID, suite.annotator, "car")

	removed, err := suite.annotations.DeleteRejectedForAuthor(img.ID, suite.annotator.Actor())
	suite.Require().NoError(err)
	suite.Equal(int64(0), removed)

	_, err = suite.annotations.DeleteRejectedForAuthor(9999, suite.annotator.Actor())
	suite.ErrorIs(err, ErrImageNotFound)
}

func (suite *ServiceTestSuite) TestVisibility_ByRole() {
	task := suite.createTask(1, suite.annotator, suite.annotator2)
	img := suite.addImage(task.ID, "a.png")
	mine := suite.submitBox(img.ID, suite.annotator, "car")
	suite.submitBox(img.ID, suite.annotator2, "person")

	_, err := suite.annotations.Get(mine.ID, suite.annotator2.Actor())
	suite.ErrorIs(err, ErrAnnotationHidden)

	got, err := suite.annotations.Get(mine.ID, suite.annotator.Actor())
	suite.Require().NoError(err)
	suite.Equal(suite.annotator.Username, got.Annotator.Username)

	// Reviewers see nothing until they are assigned.
	_, total, err := suite.annotations.List(ListAnnotationsInput{Actor: suite.reviewer.Actor(), TaskID: &task.ID})
	suite.Require().NoError(err)
	suite.Equal(int64(0), total)

	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)
	_, total, err = suite.annotations.List(ListAnnotationsInput{Actor: suite.reviewer.Actor(), TaskID: &task.ID})
	suite.Require().NoError(err)
	suite.Equal(int64(2), total)

	view, err := suite.annotations.ForImage(img.ID, suite.annotator.Actor())
	suite.Require().NoError(err)
	suite.Len(view.Annotations, 1)

	outsider := suite.createUser(models.RoleAnnotator)
	_, err = suite.annotations.ForImage(img.ID, outsider.Actor())
	suite.ErrorIs(err, ErrTaskAccessDenied)
}

func (suite *ServiceTestSuite) TestAnnotationsAreScopedByFilter() {
	task := suite.createTask(1, suite.annotator)
	a := suite.addImage(task.ID, "a.png")
	b := suite.addImage(task.ID, "b.png")
	suite.submitBox(a.ID, suite.annotator, "car")
	suite.submitBox(b.ID, suite.annotator, "car")

	rows, err := suite.store.Annotations().ListCurrentByImage(b.ID)
	suite.Require().NoError(err)
	suite.Len(rows, 1)

	status := models.AnnotationStatusApproved
	_, total, err := suite.store.Annotations().List(repository.AnnotationFilter{TaskID: &task.ID, Status: &status})
	suite.Require().NoError(err)
	suite.Equal(int64(0), total)
}
