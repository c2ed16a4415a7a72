package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/westhall-edu/admissions-api/internal/middleware"
	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/internal/service"
	"github.com/westhall-edu/admissions-api/pkg/response"
)

// FeeHandler exposes fee assignment endpoints.
type FeeHandler struct {
	fees *service.FeeService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees *service.FeeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// List godoc
// @Summary List fee assignments
// @Tags Fees
// @Produce json
// @Param applicationId query string false "Filter by application"
// @Param status query string false "Filter by payment status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fees/assignments [get]
func (h *FeeHandler) List(c *gin.Context) {
	var filter models.FeeAssignmentFilter
	filter.ApplicationID = strings.TrimSpace(c.Query("applicationId"))
	filter.Status = models.FeeStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	assignments, pagination, err := h.fees.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, pagination)
}

// MarkPaid godoc
// @Summary Mark a fee assignment as paid
// @Tags Fees
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /fees/assignments/{id}/pay [post]
func (h *FeeHandler) MarkPaid(c *gin.Context) {
	if err := h.fees.MarkPaid(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Summary godoc
// @Summary Fee totals summary
// @Tags Fees
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /fees/summary [get]
func (h *FeeHandler) Summary(c *gin.Context) {
	summary, cacheHit, err := h.fees.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
