package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/internal/service"
	"github.com/westhall-edu/admissions-api/pkg/response"
)

type stubApplicationRepo struct {
	apps map[string]models.Application
}

func (s *stubApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var out []models.Application
	for _, app := range s.apps {
		out = append(out, app)
	}
	return out, len(out), nil
}

func (s *stubApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := s.apps[id]; ok {
		return &app, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubApplicationRepo) Create(ctx context.Context, app *models.Application) error {
	if s.apps == nil {
		s.apps = make(map[string]models.Application)
	}
	if app.ID == "" {
		app.ID = "a-new"
	}
	s.apps[app.ID] = *app
	return nil
}

func (s *stubApplicationRepo) Update(ctx context.Context, app *models.Application) error {
	s.apps[app.ID] = *app
	return nil
}

func (s *stubApplicationRepo) UpdateStage(ctx context.Context, id string, stage string, ts time.Time) error {
	app := s.apps[id]
	app.CurrentStage = stage
	s.apps[id] = app
	return nil
}

func newAdmissionRouter(repo *stubApplicationRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewAdmissionService(service.AdmissionServiceParams{
		Repo:    repo,
		Catalog: models.NewStageCatalog(),
	})
	h := NewAdmissionHandler(svc)

	router := gin.New()
	router.GET("/admissions/stages", h.Stages)
	router.GET("/admissions/applications", h.List)
	router.POST("/admissions/applications", h.Create)
	router.GET("/admissions/applications/:id", h.Get)
	router.PUT("/admissions/applications/:id", h.Update)
	router.POST("/admissions/applications/:id/advance", h.Advance)
	router.PUT("/admissions/applications/:id/status", h.SetStatus)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope
}

func seedApplication(repo *stubApplicationRepo, id, stage string) {
	if repo.apps == nil {
		repo.apps = make(map[string]models.Application)
	}
	repo.apps[id] = models.Application{
		ID:                id,
		ApplicationNumber: "APP-100",
		StudentName:       "Emma Thompson",
		YearGroup:         "Year 7",
		Source:            models.SourceOnline,
		CurrentStage:      stage,
		SubmittedAt:       time.Now().UTC(),
	}
}

func TestAdmissionStagesEndpoint(t *testing.T) {
	router := newAdmissionRouter(&stubApplicationRepo{})

	req, _ := http.NewRequest(http.MethodGet, "/admissions/stages", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"submitted"`)
	assert.Contains(t, resp.Body.String(), `"enrolled"`)
}

func TestAdmissionListEndpoint(t *testing.T) {
	repo := &stubApplicationRepo{}
	seedApplication(repo, "a1", "under_review")
	router := newAdmissionRouter(repo)

	req, _ := http.NewRequest(http.MethodGet, "/admissions/applications?stage=under_review", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	envelope := decodeEnvelope(t, resp)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
	assert.Contains(t, resp.Body.String(), `"status":"in_progress"`)
	assert.Contains(t, resp.Body.String(), `"progress":25`)
}

func TestAdmissionGetNotFound(t *testing.T) {
	router := newAdmissionRouter(&stubApplicationRepo{})

	req, _ := http.NewRequest(http.MethodGet, "/admissions/applications/missing", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)

	envelope := decodeEnvelope(t, resp)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestAdmissionCreateEndpoint(t *testing.T) {
	repo := &stubApplicationRepo{}
	router := newAdmissionRouter(repo)

	payload := `{"student_name":"Emma Thompson","year_group":"Year 7","source":"online"}`
	req, _ := http.NewRequest(http.MethodPost, "/admissions/applications", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"stage":"submitted"`)
	assert.Contains(t, resp.Body.String(), `"status":"pending"`)
	require.Len(t, repo.apps, 1)
}

func TestAdmissionCreateInvalidSource(t *testing.T) {
	router := newAdmissionRouter(&stubApplicationRepo{})

	payload := `{"student_name":"Emma Thompson","year_group":"Year 7","source":"carrier_pigeon"}`
	req, _ := http.NewRequest(http.MethodPost, "/admissions/applications", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	envelope := decodeEnvelope(t, resp)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
}

func TestAdmissionAdvanceEndpoint(t *testing.T) {
	repo := &stubApplicationRepo{}
	seedApplication(repo, "a1", "submitted")
	router := newAdmissionRouter(repo)

	req, _ := http.NewRequest(http.MethodPost, "/admissions/applications/a1/advance", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"advanced":true`)
	assert.Contains(t, resp.Body.String(), `"to_stage":"under_review"`)
	assert.Equal(t, "under_review", repo.apps["a1"].CurrentStage)
}

func TestAdmissionSetStatusInvalidTransition(t *testing.T) {
	repo := &stubApplicationRepo{}
	seedApplication(repo, "a1", "under_review")
	router := newAdmissionRouter(repo)

	payload := `{"stage":"enrolled"}`
	req, _ := http.NewRequest(http.MethodPut, "/admissions/applications/a1/status", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	envelope := decodeEnvelope(t, resp)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_TRANSITION", envelope.Error.Code)
}

func TestAdmissionSetStatusRejection(t *testing.T) {
	repo := &stubApplicationRepo{}
	seedApplication(repo, "a1", "assessment_scheduled")
	router := newAdmissionRouter(repo)

	payload := `{"stage":"rejected"}`
	req, _ := http.NewRequest(http.MethodPut, "/admissions/applications/a1/status", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"rejected"`)
	assert.Contains(t, resp.Body.String(), `"progress":0`)
}
