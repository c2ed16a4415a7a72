package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westhall-edu/admissions-api/internal/middleware"
	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/internal/service"
)

type stubFeeRepo struct {
	assignments []models.FeeAssignment
	lastFilter  models.FeeAssignmentFilter
	paid        []string
}

func (s *stubFeeRepo) FindScheduleAmount(ctx context.Context, yearGroup string, stage models.StageKey) (*models.FeeSchedule, error) {
	return nil, sql.ErrNoRows
}

func (s *stubFeeRepo) FindAssignment(ctx context.Context, applicationID string, stage models.StageKey) (*models.FeeAssignment, error) {
	return nil, sql.ErrNoRows
}

func (s *stubFeeRepo) CreateAssignment(ctx context.Context, assignment *models.FeeAssignment) error {
	return nil
}

func (s *stubFeeRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	for _, a := range s.assignments {
		if a.ID == id {
			s.paid = append(s.paid, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubFeeRepo) ListAssignments(ctx context.Context, filter models.FeeAssignmentFilter) ([]models.FeeAssignment, int, error) {
	s.lastFilter = filter
	return s.assignments, len(s.assignments), nil
}

func (s *stubFeeRepo) Summary(ctx context.Context) (*models.FeeSummary, error) {
	return &models.FeeSummary{OutstandingCount: 3, OutstandingAmount: 750}, nil
}

func newFeeRouter(repo *stubFeeRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewFeeService(repo, models.NewStageCatalog(), nil, nil, service.FeeServiceConfig{})
	h := NewFeeHandler(svc)

	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	router.GET("/fees/assignments", h.List)
	router.POST("/fees/assignments/:id/pay", h.MarkPaid)
	router.GET("/fees/summary", h.Summary)
	return router
}

func TestFeeListEndpoint(t *testing.T) {
	repo := &stubFeeRepo{assignments: []models.FeeAssignment{{
		ID:            "fee-1",
		ApplicationID: "a1",
		Stage:         models.StageFeePending,
		Amount:        250,
		Currency:      "GBP",
		Status:        models.FeeStatusPending,
	}}}
	router := newFeeRouter(repo)

	req, _ := http.NewRequest(http.MethodGet, "/fees/assignments?applicationId=a1&status=pending", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	// Status filters are stored uppercase.
	assert.Equal(t, models.FeeStatusPending, repo.lastFilter.Status)
	assert.Equal(t, "a1", repo.lastFilter.ApplicationID)

	envelope := decodeEnvelope(t, resp)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
	assert.Contains(t, resp.Body.String(), `"currency":"GBP"`)
}

func TestFeeMarkPaidEndpoint(t *testing.T) {
	repo := &stubFeeRepo{assignments: []models.FeeAssignment{{ID: "fee-1"}}}
	router := newFeeRouter(repo)

	req, _ := http.NewRequest(http.MethodPost, "/fees/assignments/fee-1/pay", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, []string{"fee-1"}, repo.paid)

	req, _ = http.NewRequest(http.MethodPost, "/fees/assignments/missing/pay", nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestFeeSummaryEndpoint(t *testing.T) {
	router := newFeeRouter(&stubFeeRepo{})

	req, _ := http.NewRequest(http.MethodGet, "/fees/summary", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	body := resp.Body.String()
	assert.Contains(t, body, `"outstanding_count":3`)
	assert.Contains(t, body, `"cache_hit":false`)
}
