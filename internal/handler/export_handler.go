package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vikram-labs/schoolpay-api/internal/service"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
	"github.com/vikram-labs/schoolpay-api/pkg/response"
)

// ExportHandler exposes report generation and signed downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

type generateExportPayload struct {
	Type     string `json:"type" binding:"required"`
	Format   string `json:"format" binding:"required"`
	ClassID  string `json:"class_id"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

// Generate godoc
// @Summary Generate a fee report export
// @Description Renders the requested dataset to CSV or PDF and returns a
// signed download URL.
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body generateExportPayload true "Export payload"
// @Success 201 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload generateExportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	req := service.ExportRequest{
		Type:    service.ExportType(payload.Type),
		Format:  service.ExportFormat(payload.Format),
		ClassID: payload.ClassID,
	}
	if payload.DateFrom != "" {
		parsed, err := time.Parse("2006-01-02", payload.DateFrom)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be formatted as 2006-01-02"))
			return
		}
		req.DateFrom = &parsed
	}
	if payload.DateTo != "" {
		parsed, err := time.Parse("2006-01-02", payload.DateTo)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be formatted as 2006-01-02"))
			return
		}
		req.DateTo = &parsed
	}

	result, err := h.exports.Generate(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a generated export via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	_, relPath, _, err := h.exports.ParseToken(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export no longer available"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export"))
		return
	}

	filename := filepath.Base(relPath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentTypeFor(filename), file, nil)
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
