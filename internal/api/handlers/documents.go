package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 50 << 20

type DocumentHandler struct {
	documents *services.DocumentService
	logger    *zap.Logger
}

func NewDocumentHandler(documents *services.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    logger.With(zap.String("handler", "documents")),
	}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	contractID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fieldErrors(c, map[string]string{"file": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		fieldErrors(c, map[string]string{"file": "file exceeds the upload limit"})
		return
	}
	isMain := c.PostForm("isMain") == "true"

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondError(c, err)
		return
	}
	if int64(len(content)) > maxUploadBytes {
		fieldErrors(c, map[string]string{"file": "file exceeds the upload limit"})
		return
	}

	actor := middleware.CurrentUser(c)
	doc, err := h.documents.Upload(c.Request.Context(), contractID, fileHeader.Filename, content, actor.ID, isMain)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(middleware.AuditEntityIDKey, strconv.FormatUint(uint64(doc.ID), 10))
	c.JSON(http.StatusCreated, documentResponse(doc))
}

func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, reader, err := h.documents.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalName))
	c.Header("Content-Type", doc.MimeType)
	c.Header("Content-Length", strconv.FormatInt(doc.Size, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.logger.Warn("download interrupted",
			zap.Uint("document_id", doc.ID),
			zap.Error(err))
	}
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor := middleware.CurrentUser(c)
	if err := h.documents.SoftDelete(c.Request.Context(), id, actor.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Purge(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.documents.PermanentDelete(c.Request.Context(), id, auditContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func documentResponse(doc *models.Document) gin.H {
	return gin.H{
		"id":             doc.ID,
		"originalName":   doc.OriginalName,
		"mimeType":       doc.MimeType,
		"size":           doc.Size,
		"version":        doc.Version,
		"isMainDocument": doc.IsMainDocument,
		"checksum":       doc.Checksum,
		"contractId":     doc.ContractID,
		"createdAt":      doc.CreatedAt,
	}
}
