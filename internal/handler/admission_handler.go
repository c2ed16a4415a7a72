package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/internal/service"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
	"github.com/westhall-edu/admissions-api/pkg/response"
)

// AdmissionHandler exposes the application workflow endpoints.
type AdmissionHandler struct {
	admissions *service.AdmissionService
}

// NewAdmissionHandler constructs AdmissionHandler.
func NewAdmissionHandler(admissions *service.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions}
}

// Stages godoc
// @Summary List workflow stages in order
// @Tags Admissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admissions/stages [get]
func (h *AdmissionHandler) Stages(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.admissions.Stages(), nil)
}

// List godoc
// @Summary List applications
// @Tags Admissions
// @Produce json
// @Param stage query string false "Filter by current stage"
// @Param status query string false "Filter by derived status"
// @Param source query string false "Filter by intake channel"
// @Param yearGroup query string false "Filter by year group"
// @Param search query string false "Search by student name or application number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admissions/applications [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	var filter models.ApplicationFilter
	filter.Stage = models.StageKey(strings.TrimSpace(c.Query("stage")))
	filter.Status = models.ApplicationStatus(strings.TrimSpace(c.Query("status")))
	filter.Source = models.ApplicationSource(strings.TrimSpace(c.Query("source")))
	filter.YearGroup = strings.TrimSpace(c.Query("yearGroup"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	applications, pagination, err := h.admissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, pagination)
}

// Get godoc
// @Summary Get application detail
// @Tags Admissions
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/applications/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	application, err := h.admissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}

// Create godoc
// @Summary Register a new application
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body service.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /admissions/applications [post]
func (h *AdmissionHandler) Create(c *gin.Context) {
	var req service.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	application, err := h.admissions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, application)
}

// Update godoc
// @Summary Update application intake fields
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.UpdateApplicationRequest true "Application payload"
// @Success 200 {object} response.Envelope
// @Router /admissions/applications/{id} [put]
func (h *AdmissionHandler) Update(c *gin.Context) {
	var req service.UpdateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	application, err := h.admissions.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}

// Advance godoc
// @Summary Advance an application to the next stage
// @Tags Admissions
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/applications/{id}/advance [post]
func (h *AdmissionHandler) Advance(c *gin.Context) {
	result, err := h.admissions.AdvanceStage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type setStatusRequest struct {
	Stage string `json:"stage" binding:"required"`
}

// SetStatus godoc
// @Summary Move an application to an explicit stage
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body setStatusRequest true "Target stage"
// @Success 200 {object} response.Envelope
// @Router /admissions/applications/{id}/status [put]
func (h *AdmissionHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	application, err := h.admissions.SetStatus(c.Request.Context(), c.Param("id"), models.StageKey(req.Stage))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}
