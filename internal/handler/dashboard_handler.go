package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/westhall-edu/admissions-api/internal/dto"
	"github.com/westhall-edu/admissions-api/internal/middleware"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
	"github.com/westhall-edu/admissions-api/pkg/response"
)

type admissionsDashboard interface {
	Admissions(ctx context.Context) (*dto.AdmissionsDashboardResponse, bool, error)
}

// DashboardHandler wires the dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service admissionsDashboard
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service admissionsDashboard) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Admissions godoc
// @Summary Admissions funnel dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/admissions [get]
func (h *DashboardHandler) Admissions(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Admissions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}
