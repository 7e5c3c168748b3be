package services

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/yukikurage/annotation-api/internal/models"
)

type recordingDispatcher struct {
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.ids = append(d.ids, jobID)
	return d.err
}

func (suite *ServiceTestSuite) exportableTask() (*models.Task, *models.Image) {
	task := suite.createTask(1, suite.annotator, suite.annotator2)
	a := suite.addImage(task.ID, "street.png")
	b := suite.addImage(task.ID, "park.png")
	suite.submitBox(a.ID, suite.annotator, "car")
	suite.submitBox(a.ID, suite.annotator, "person")
	suite.submitBox(a.ID, suite.annotator2, "car")
	suite.submitBox(b.ID, suite.annotator, "person")
	return suite.reloadTask(task.ID), a
}

func (suite *ServiceTestSuite) zipNames(name string) []string {
	f, err := suite.exportFs.Open(name)
	suite.Require().NoError(err)
	defer f.Close()
	stat, err := f.Stat()
	suite.Require().NoError(err)

	zr, err := zip.NewReader(f, stat.Size())
	suite.Require().NoError(err)
	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	return names
}

func (suite *ServiceTestSuite) TestRequestExport_Validation() {
	task, _ := suite.exportableTask()
	ctx := context.Background()

	_, err := suite.exports.Request(ctx, RequestExportInput{TaskID: task.ID, Actor: suite.annotator.Actor(), Format: models.ExportFormatCOCO})
	suite.ErrorIs(err, ErrExportDenied)

	_, err = suite.exports.Request(ctx, RequestExportInput{TaskID: task.ID, Actor: suite.reviewer.Actor(), Format: models.ExportFormatCOCO})
	suite.ErrorIs(err, ErrTaskAccessDenied)

	_, err = suite.exports.Request(ctx, RequestExportInput{TaskID: 9999, Actor: suite.admin.Actor(), Format: models.ExportFormatCOCO})
	suite.ErrorIs(err, ErrTaskNotFound)

	_, err = suite.exports.Request(ctx, RequestExportInput{TaskID: task.ID, Actor: suite.admin.Actor(), Format: "tfrecord"})
	suite.ErrorIs(err, ErrUnsupportedFormat)

	_, err = suite.exports.Request(ctx, RequestExportInput{
		TaskID: task.ID, Actor: suite.admin.Actor(), Format: models.ExportFormatCSV,
		StatusFilter: []models.AnnotationStatus{"pending"},
	})
	suite.ErrorIs(err, ErrInvalidStatusFilter)

	var count int64
	suite.Require().NoError(suite.db.Model(&models.ExportJob{}).Count(&count).Error)
	suite.Equal(int64(0), count)
}

func (suite *ServiceTestSuite) TestExport_EndToEnd() {
	task, _ := suite.exportableTask()
	dispatcher := &recordingDispatcher{}
	suite.exports.SetDispatcher(dispatcher)

	job, err := suite.exports.Request(context.Background(), RequestExportInput{
		TaskID:        task.ID,
		Actor:         suite.engineer.Actor(),
		Format:        models.ExportFormatYOLO,
		IncludeImages: true,
	})
	suite.Require().NoError(err)
	suite.Equal(models.ExportStatusProcessing, job.Status)
	suite.Equal([]string{job.ID}, dispatcher.ids)

	_, _, err = suite.exports.File(job.ID, suite.engineer.Actor())
	suite.ErrorIs(err, ErrExportNotReady)

	suite.exports.Process(context.Background(), job.ID, "worker-1")

	done, err := suite.exports.Progress(job.ID, suite.engineer.Actor())
	suite.Require().NoError(err)
	suite.Equal(models.ExportStatusCompleted, done.Status)
	suite.Equal(100, done.Progress)
	suite.Equal(1, done.Attempts)
	suite.Equal(job.ID+".zip", done.FilePath)
	suite.Positive(done.FileSize)
	suite.NotNil(done.CompletedAt)

	suite.ElementsMatch([]string{
		"classes.txt",
		"labels/street.txt",
		"labels/park.txt",
		"images/street.png",
		"images/park.png",
	}, suite.zipNames(done.FilePath))

	exists, err := afero.Exists(suite.exportFs, job.ID+".zip.tmp")
	suite.Require().NoError(err)
	suite.False(exists)

	_, f, err := suite.exports.File(job.ID, suite.engineer.Actor())
	suite.Require().NoError(err)
	data, err := io.ReadAll(f)
	f.Close()
	suite.Require().NoError(err)
	suite.Equal(done.FileSize, int64(len(data)))

	// A duplicate delivery finds the job already claimed and leaves it alone.
	suite.exports.Process(context.Background(), job.ID, "worker-2")
	again, err := suite.exports.Progress(job.ID, suite.engineer.Actor())
	suite.Require().NoError(err)
	suite.Equal("worker-1", again.WorkerID)
	suite.Equal(1, again.Attempts)
}

func (suite *ServiceTestSuite) TestExport_StatusFilterAndHistoryRows() {
	task, img := suite.exportableTask()
	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)
	_, err := suite.reviews.ReviewImage(img.ID, suite.reviewer.Actor(), models.AnnotationStatusApproved, "")
	suite.Require().NoError(err)

	job, err := suite.exports.Request(context.Background(), RequestExportInput{
		TaskID:       task.ID,
		Actor:        suite.reviewer.Actor(),
		Format:       models.ExportFormatJSON,
		StatusFilter: []models.AnnotationStatus{models.AnnotationStatusApproved, models.AnnotationStatusSubmitted},
	})
	suite.Require().NoError(err)

	records, err := suite.exports.loadRecords(job)
	suite.Require().NoError(err)
	// Three current rows plus the superseded one on the first image.
	suite.Len(records, 4)
	current := 0
	for _, r := range records {
		if r.Current {
			current++
		}
	}
	suite.Equal(3, current)

	job.Format = models.ExportFormatCSV
	job.StatusFilter = []models.AnnotationStatus{models.AnnotationStatusApproved}
	records, err = suite.exports.loadRecords(job)
	suite.Require().NoError(err)
	suite.Len(records, 2)
	for _, r := range records {
		suite.True(r.Current)
		suite.Equal(models.AnnotationStatusApproved, r.Annotation.Status)
		suite.NotEmpty(r.Annotation.Annotator.Username)
	}
}

func (suite *ServiceTestSuite) TestExport_FailureIsRecorded() {
	task, _ := suite.exportableTask()
	job, err := suite.exports.Request(context.Background(), RequestExportInput{
		TaskID: task.ID, Actor: suite.admin.Actor(), Format: models.ExportFormatCOCO,
	})
	suite.Require().NoError(err)

	suite.Require().NoError(suite.tasks.DeleteTask(task.ID, suite.admin.Actor()))
	suite.exports.Process(context.Background(), job.ID, "worker-1")

	failed, err := suite.exports.Progress(job.ID, suite.admin.Actor())
	suite.Require().NoError(err)
	suite.Equal(models.ExportStatusFailed, failed.Status)
	suite.Equal(ErrTaskNotFound.Error(), failed.Message)
	suite.Empty(failed.FilePath)
	suite.NotNil(failed.CompletedAt)

	_, _, err = suite.exports.File(job.ID, suite.admin.Actor())
	suite.ErrorIs(err, ErrExportNotReady)
}

// explodingFs panics when an archive is created.
type explodingFs struct {
	afero.Fs
}

func (explodingFs) Create(name string) (afero.File, error) {
	panic("disk controller on fire")
}

func (suite *ServiceTestSuite) TestExport_PanicIsRecordedAsFailure() {
	task, _ := suite.exportableTask()
	exports := NewExportService(suite.store, suite.files.Fs(), explodingFs{afero.NewMemMapFs()})

	job, err := exports.Request(context.Background(), RequestExportInput{
		TaskID: task.ID, Actor: suite.admin.Actor(), Format: models.ExportFormatCSV,
	})
	suite.Require().NoError(err)

	suite.NotPanics(func() {
		exports.Process(context.Background(), job.ID, "worker-1")
	})

	failed, err := exports.Progress(job.ID, suite.admin.Actor())
	suite.Require().NoError(err)
	suite.Equal(models.ExportStatusFailed, failed.Status)
	suite.Contains(failed.Message, "disk controller on fire")
	suite.NotNil(failed.CompletedAt)
}

func (suite *ServiceTestSuite) TestExport_MissingArchive() {
	task, _ := suite.exportableTask()
	job, err := suite.exports.Request(context.Background(), RequestExportInput{
		TaskID: task.ID, Actor: suite.admin.Actor(), Format: models.ExportFormatCSV,
	})
	suite.Require().NoError(err)
	suite.exports.Process(context.Background(), job.ID, "worker-1")

	suite.Require().NoError(suite.exportFs.Remove(job.ID + ".zip"))
	_, _, err = suite.exports.File(job.ID, suite.admin.Actor())
	suite.ErrorIs(err, ErrExportFileMissing)
}

func (suite *ServiceTestSuite) TestExport_DispatchFailureStillCreatesJob() {
	task, _ := suite.exportableTask()
	suite.exports.SetDispatcher(&recordingDispatcher{err: errors.New("queue full")})

	job, err := suite.exports.Request(context.Background(), RequestExportInput{
		TaskID: task.ID, Actor: suite.admin.Actor(), Format: models.ExportFormatPascalVOC,
	})
	suite.Require().NoError(err)

	ids, err := suite.exports.RecoverStale(time.Hour)
	suite.Require().NoError(err)
	suite.Equal([]string{job.ID}, ids)
}

func (suite *ServiceTestSuite) TestRecoverStale_ReleasesOldClaims() {
	task, _ := suite.exportableTask()
	job, err := suite.exports.Request(context.Background(), RequestExportInput{
		TaskID: task.ID, Actor: suite.admin.Actor(), Format: models.ExportFormatCSV,
	})
	suite.Require().NoError(err)

	claimed, err := suite.store.ExportJobs().Claim(job.ID, "dead-worker", time.Now().Add(-2*time.Hour))
	suite.Require().NoError(err)
	suite.True(claimed)
	suite.Require().NoError(afero.WriteFile(suite.exportFs, job.ID+".zip.tmp", []byte("partial"), 0o644))

	// A fresh claim is not stale yet.
	ids, err := suite.exports.RecoverStale(3 * time.Hour)
	suite.Require().NoError(err)
	suite.Empty(ids)

	ids, err = suite.exports.RecoverStale(time.Hour)
	suite.Require().NoError(err)
	suite.Equal([]string{job.ID}, ids)

	released, err := suite.store.ExportJobs().FindByID(job.ID)
	suite.Require().NoError(err)
	suite.Empty(released.WorkerID)
	exists, _ := afero.Exists(suite.exportFs, job.ID+".zip.tmp")
	suite.False(exists)

	suite.exports.Process(context.Background(), job.ID, "worker-2")
	finished, err := suite.store.ExportJobs().FindByID(job.ID)
	suite.Require().NoError(err)
	suite.Equal(models.ExportStatusCompleted, finished.Status)
	suite.Equal(2, finished.Attempts)
}

func (suite *ServiceTestSuite) TestExportHistoryAndOwnership() {
	task, _ := suite.exportableTask()
	suite.assign(task.ID, models.AssignmentRoleReviewer, suite.reviewer)

	mine, err := suite.exports.Request(context.Background(), RequestExportInput{
		TaskID: task.ID, Actor: suite.reviewer.Actor(), Format: models.ExportFormatCSV,
	})
	suite.Require().NoError(err)
	_, err = suite.exports.Request(context.Background(), RequestExportInput{
		TaskID: task.ID, Actor: suite.admin.Actor(), Format: models.ExportFormatCSV,
	})
	suite.Require().NoError(err)

	jobs, total, err := suite.exports.History(suite.reviewer.Actor(), &task.ID, 1, 10)
	suite.Require().NoError(err)
	suite.Equal(int64(1), total)
	suite.Equal(mine.ID, jobs[0].ID)

	other := suite.createUser(models.RoleReviewer)
	_, err = suite.exports.Progress(mine.ID, other.Actor())
	suite.ErrorIs(err, ErrExportJobNotFound)

	_, err = suite.exports.Progress(mine.ID, suite.engineer.Actor())
	suite.NoError(err)

	_, err = suite.exports.Progress("no-such-job", suite.admin.Actor())
	suite.ErrorIs(err, ErrExportJobNotFound)
}
