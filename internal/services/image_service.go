package services

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
	"github.com/yukikurage/annotation-api/internal/storage"
)

var (
	ErrUnsupportedImage = apierrors.New(apierrors.KindValidation, "unsupported image file type")
	ErrImageTooLarge    = apierrors.New(apierrors.KindValidation, "image file is too large")
	ErrEmptyImage       = apierrors.New(apierrors.KindValidation, "image file is empty")
	ErrImageFileMissing = apierrors.New(apierrors.KindNotFound, "image file not found")
)

var allowedImageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".bmp": {}, ".tiff": {}, ".tif": {}, ".webp": {},
}

// FileStorage is where image files and thumbnails live
type FileStorage interface {
	Save(data []byte, name string) error
	ReadInfo(name string) (storage.Info, error)
	Thumbnail(name string) (string, error)
	Delete(name string) error
	Exists(name string) bool
	Open(name string) (afero.File, error)
}

// ImageService registers task images and keeps the task's image counters
// in step through the Aggregator.
type ImageService struct {
	store      repository.Store
	aggregator *Aggregator
	files      FileStorage
	maxSize    int64
}

// NewImageService creates a new ImageService
func NewImageService(store repository.Store, aggregator *Aggregator, files FileStorage, maxSize int64) *ImageService {
	return &ImageService{
		store:      store,
		aggregator: aggregator,
		files:      files,
		maxSize:    maxSize,
	}
}

// RegisterImageInput is one uploaded file
type RegisterImageInput struct {
	TaskID     uint64
	Actor      models.Actor
	Filename   string
	FolderPath string
	Data       []byte
}

// ImageListItem pairs an image with the caller's own latest annotation status
type ImageListItem struct {
	Image    models.Image
	MyStatus *models.AnnotationStatus
}

// Register stores an uploaded image and adds it to its task
func (s *ImageService) Register(input RegisterImageInput) (*models.Image, error) {
	if !input.Actor.IsStaff() {
		return nil, ErrStaffOnly
	}

	task, err := s.store.Tasks().FindByID(input.TaskID)
	if err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}

	original := path.Base(strings.ReplaceAll(input.Filename, "\\", "/"))
	ext := strings.ToLower(path.Ext(original))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return nil, ErrUnsupportedImage
	}
	if len(input.Data) == 0 {
		return nil, ErrEmptyImage
	}
	if s.maxSize > 0 && int64(len(input.Data)) > s.maxSize {
		return nil, ErrImageTooLarge
	}

	stored := uuid.NewString() + ext
	filePath := path.Join(fmt.Sprint(task.ID), stored[:2], stored)

	if err := s.files.Save(input.Data, filePath); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	info, err := s.files.ReadInfo(filePath)
	if err != nil {
		removeFiles(s.files, []string{filePath})
		return nil, invalid("image could not be decoded", err)
	}

	thumbnail, err := s.files.Thumbnail(filePath)
	if err != nil {
		log.WithError(err).WithField("path", filePath).Warn("thumbnail generation failed")
		thumbnail = ""
	}

	image := &models.Image{
		TaskID:                  task.ID,
		Filename:                stored,
		OriginalFilename:        original,
		FilePath:                filePath,
		FolderPath:              strings.Trim(input.FolderPath, "/"),
		FileSize:                info.Size,
		Width:                   info.Width,
		Height:                  info.Height,
		ThumbnailPath:           thumbnail,
		RequiredAnnotationCount: task.RequiredAnnotationsPerImage,
		AnnotationStatus:        models.ImageStatusUnannotated,
	}

	err = s.store.Transaction(func(tx repository.Store) error {
		if err := tx.Images().Create(image); err != nil {
			return fmt.Errorf("failed to create image: %w", err)
		}
		_, err := s.aggregator.RecomputeTask(tx, task.ID)
		return err
	})
	if err != nil {
		removeFiles(s.files, []string{filePath, thumbnail})
		return nil, err
	}

	return image, nil
}

// List returns a task's images. Annotators also get their own latest
// status on each image.
func (s *ImageService) List(taskID uint64, actor models.Actor, page, pageSize int) ([]ImageListItem, int64, error) {
	if _, err := s.store.Tasks().FindByID(taskID); err != nil {
		return nil, 0, translateNotFound(err, ErrTaskNotFound)
	}

	visible, err := canViewTask(s.store, actor, taskID)
	if err != nil {
		return nil, 0, err
	}
	if !visible {
		return nil, 0, ErrTaskAccessDenied
	}

	images, total, err := s.store.Images().ListByTask(taskID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list images: %w", err)
	}

	own := map[uint64]models.AnnotationStatus{}
	if actor.Role == models.RoleAnnotator {
		id := actor.ID
		rows, _, err := s.store.Annotations().List(repository.AnnotationFilter{
			TaskID:      &taskID,
			AnnotatorID: &id,
			CurrentOnly: true,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load own annotations: %w", err)
		}
		for _, row := range rows {
			own[row.ImageID] = row.Status
		}
	}

	items := make([]ImageListItem, len(images))
	for i, image := range images {
		items[i] = ImageListItem{Image: image}
		if status, ok := own[image.ID]; ok {
			items[i].MyStatus = &status
		}
	}
	return items, total, nil
}

// Delete removes an image, its annotations and its files
func (s *ImageService) Delete(imageID uint64, actor models.Actor) error {
	if !actor.IsStaff() {
		return ErrStaffOnly
	}

	image, err := s.store.Images().FindByID(imageID)
	if err != nil {
		return translateNotFound(err, ErrImageNotFound)
	}

	err = s.store.Transaction(func(tx repository.Store) error {
		if err := tx.Images().Delete(image.ID); err != nil {
			return fmt.Errorf("failed to delete image: %w", err)
		}
		_, err := s.aggregator.RecomputeTask(tx, image.TaskID)
		return err
	})
	if err != nil {
		return err
	}

	paths := []string{image.FilePath}
	if image.ThumbnailPath != "" {
		paths = append(paths, image.ThumbnailPath)
	}
	removeFiles(s.files, paths)
	return nil
}

// OpenFile opens the stored original, or its thumbnail, for a caller who
// can see the image's task. The caller closes the file.
func (s *ImageService) OpenFile(imageID uint64, actor models.Actor, thumbnail bool) (*models.Image, afero.File, error) {
	image, err := s.store.Images().FindByID(imageID)
	if err != nil {
		return nil, nil, translateNotFound(err, ErrImageNotFound)
	}

	visible, err := canViewTask(s.store, actor, image.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if !visible {
		return nil, nil, ErrTaskAccessDenied
	}

	name := image.FilePath
	if thumbnail {
		name = image.ThumbnailPath
	}
	if name == "" || !s.files.Exists(name) {
		return nil, nil, ErrImageFileMissing
	}

	f, err := s.files.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return image, f, nil
}
