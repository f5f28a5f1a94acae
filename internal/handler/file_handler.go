package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/drive-api/internal/dto"
	"github.com/noah-isme/drive-api/internal/service"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
	"github.com/noah-isme/drive-api/pkg/response"
)

// FileHandler wires HTTP endpoints to the file service.
type FileHandler struct {
	service *service.FileService
}

// NewFileHandler creates a new handler.
func NewFileHandler(svc *service.FileService) *FileHandler {
	return &FileHandler{service: svc}
}

// Upload receives one multipart file. The optional folderId form field
// targets a specific folder; otherwise the uploader's default root is used.
func (h *FileHandler) Upload(c *gin.Context) {
	var form dto.UploadFileForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload form"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file field is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file"))
		return
	}
	defer src.Close() //nolint:errcheck

	in := service.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      src,
	}
	if form.FolderID != "" {
		folderID := form.FolderID
		in.FolderID = &folderID
	}

	file, err := h.service.Upload(c.Request.Context(), in, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, file)
}

// DownloadURL returns a retrieval link for the file contents.
func (h *FileHandler) DownloadURL(c *gin.Context) {
	fileID := c.Param("id")
	url, err := h.service.DownloadURL(c.Request.Context(), fileID, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.FileURLResponse{FileID: fileID, URL: url})
}

// Download streams the file contents inline.
func (h *FileHandler) Download(c *gin.Context) {
	file, data, err := h.service.Fetch(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	contentType := "application/octet-stream"
	if file.ContentType != nil && *file.ContentType != "" {
		contentType = *file.ContentType
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}

// Delete removes a file.
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
