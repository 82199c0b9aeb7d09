package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenlms/lms-api/internal/middleware"
	"github.com/lumenlms/lms-api/internal/service"
	appErrors "github.com/lumenlms/lms-api/pkg/errors"
	"github.com/lumenlms/lms-api/pkg/response"
)

// AttachmentHandler exposes file upload and download endpoints.
type AttachmentHandler struct {
	attachments *service.AttachmentService
}

// NewAttachmentHandler constructs AttachmentHandler.
func NewAttachmentHandler(attachments *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload godoc
// @Summary Upload a file
// @Tags Attachments
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Param owner_type formData string false "Owning entity type"
// @Param owner_id formData string false "Owning entity ID"
// @Success 201 {object} response.Envelope
// @Router /uploads [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}

	req := service.UploadRequest{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Data:     data,
	}
	if ownerType := c.PostForm("owner_type"); ownerType != "" {
		req.OwnerType = &ownerType
	}
	if ownerID := c.PostForm("owner_id"); ownerID != "" {
		req.OwnerID = &ownerID
	}

	attachment, err := h.attachments.Upload(c.Request.Context(), middleware.PrincipalFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// Sign godoc
// @Summary Issue a signed download link for an attachment
// @Tags Attachments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Attachment ID"
// @Success 200 {object} response.Envelope
// @Router /uploads/{id}/url [get]
func (h *AttachmentHandler) Sign(c *gin.Context) {
	signed, err := h.attachments.SignDownload(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signed, nil)
}

// List godoc
// @Summary List attachments of an entity
// @Tags Attachments
// @Security BearerAuth
// @Produce json
// @Param owner_type query string true "Owning entity type"
// @Param owner_id query string true "Owning entity ID"
// @Success 200 {object} response.Envelope
// @Router /uploads [get]
func (h *AttachmentHandler) List(c *gin.Context) {
	ownerType := c.Query("owner_type")
	ownerID := c.Query("owner_id")
	if ownerType == "" || ownerID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "owner_type and owner_id required"))
		return
	}
	attachments, err := h.attachments.ListByOwner(c.Request.Context(), middleware.PrincipalFrom(c), ownerType, ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attachments, nil)
}

// Delete godoc
// @Summary Delete an attachment
// @Tags Attachments
// @Security BearerAuth
// @Produce json
// @Param id path string true "Attachment ID"
// @Success 204
// @Router /uploads/{id} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	if err := h.attachments.Delete(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download a file via signed token
// @Tags Attachments
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /downloads/{token} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	download, err := h.attachments.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), download.MimeType, download.File, map[string]string{
		"Content-Disposition": `attachment; filename="` + download.Filename + `"`,
	})
}
