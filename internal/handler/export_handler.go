package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/internal/service"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
	"github.com/westhall-edu/admissions-api/pkg/response"
)

// ExportHandler exposes export generation and signed downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Generate godoc
// @Summary Export filtered applications to CSV or PDF
// @Tags Exports
// @Produce json
// @Param format query string true "Export format (csv or pdf)"
// @Param stage query string false "Filter by current stage"
// @Param source query string false "Filter by intake channel"
// @Param yearGroup query string false "Filter by year group"
// @Success 200 {object} response.Envelope
// @Router /exports/applications [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	var filter models.ApplicationFilter
	filter.Stage = models.StageKey(strings.TrimSpace(c.Query("stage")))
	filter.Source = models.ApplicationSource(strings.TrimSpace(c.Query("source")))
	filter.YearGroup = strings.TrimSpace(c.Query("yearGroup"))

	result, err := h.exports.Generate(c.Request.Context(), format, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a generated export by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, relPath, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	filename := filepath.Base(relPath)
	contentType := "text/csv"
	if strings.HasSuffix(filename, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
