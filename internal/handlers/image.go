package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/yukikurage/annotation-api/internal/dto"
	apierrors "github.com/yukikurage/annotation-api/internal/errors"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/utils"
)

type ImageHandler struct {
	imageService *services.ImageService
}

func NewImageHandler(imageService *services.ImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

// UploadImages registers the files of a multipart upload. Both "file" and
// "files" fields are accepted; a bad file fails the whole request only when
// it is the sole file.
func (h *ImageHandler) UploadImages(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		apierrors.BadRequest(c, "Invalid multipart form")
		return
	}

	headers := append(form.File["file"], form.File["files"]...)
	if len(headers) == 0 {
		apierrors.BadRequest(c, "No files uploaded")
		return
	}
	folder := c.PostForm("folder_path")

	type uploadFailure struct {
		Filename string `json:"filename"`
		Error    string `json:"error"`
	}

	var (
		uploaded []dto.ImageDTO
		failed   []uploadFailure
	)
	for _, header := range headers {
		data, err := readUpload(header)
		if err != nil {
			apierrors.BadRequest(c, "Failed to read uploaded file")
			return
		}

		image, err := h.imageService.Register(services.RegisterImageInput{
			TaskID:     taskID,
			Actor:      actor,
			Filename:   header.Filename,
			FolderPath: folder,
			Data:       data,
		})
		if err != nil {
			if len(headers) == 1 {
				respondError(c, err)
				return
			}
			if _, known := apierrors.KindOf(err); !known {
				log.WithError(err).WithField("filename", header.Filename).Error("image upload failed")
			}
			failed = append(failed, uploadFailure{Filename: header.Filename, Error: err.Error()})
			continue
		}
		uploaded = append(uploaded, dto.ToImageDTO(*image))
	}

	if len(uploaded) == 0 {
		apierrors.BadRequestWithDetails(c, "No images were uploaded", failed)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"uploaded": uploaded, "failed": failed})
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ListImages lists a task's images with the caller's own annotation status
func (h *ImageHandler) ListImages(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	taskID, ok := idParam(c, "id")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	items, total, err := h.imageService.List(taskID, actor, params.Page, params.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToImageListResponse(items, params, total))
}

// DeleteImage deletes an image
func (h *ImageHandler) DeleteImage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	imageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.imageService.Delete(imageID, actor); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
}

// ServeFile streams the original image
func (h *ImageHandler) ServeFile(c *gin.Context) {
	h.serve(c, false)
}

func (h *ImageHandler) ServeThumbnail(c *gin.Context) {
	h.serve(c, true)
}

func (h *ImageHandler) serve(c *gin.Context, thumbnail bool) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	imageID, ok := idParam(c, "id")
	if !ok {
		return
	}

	image, f, err := h.imageService.OpenFile(imageID, actor, thumbnail)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		apierrors.InternalError(c, "Failed to read image file")
		return
	}

	name := image.DisplayName()
	if thumbnail {
		name = path.Base(image.ThumbnailPath)
	}
	c.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Writer, c.Request, name, stat.ModTime(), f)
}
