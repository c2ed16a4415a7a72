package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westhall-edu/admissions-api/internal/models"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
	"github.com/westhall-edu/admissions-api/pkg/storage"
)

type mockExportAppRepo struct {
	apps []models.Application
}

func (m *mockExportAppRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(m.apps) {
		return nil, len(m.apps), nil
	}
	end := start + filter.PageSize
	if end > len(m.apps) {
		end = len(m.apps)
	}
	return m.apps[start:end], len(m.apps), nil
}

func newTestExportService(t *testing.T, repo *mockExportAppRepo) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(repo, files, signer, ExportConfig{APIPrefix: "/api/v1"}, nil, nil, nil)
}

func exportApp(i int) models.Application {
	return models.Application{
		ID:                fmt.Sprintf("a%d", i),
		ApplicationNumber: fmt.Sprintf("APP-%03d", i),
		StudentName:       fmt.Sprintf("Student %d", i),
		YearGroup:         "Year 7",
		Source:            models.SourceOnline,
		CurrentStage:      "under_review",
		SubmittedAt:       time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestExportGenerateCSV(t *testing.T) {
	repo := &mockExportAppRepo{apps: []models.Application{exportApp(1), exportApp(2)}}
	svc := newTestExportService(t, repo)

	resp, err := svc.Generate(context.Background(), ExportFormatCSV, models.ApplicationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.RowCount)
	assert.Equal(t, "csv", resp.Format)
	require.True(t, strings.HasPrefix(resp.DownloadURL, "/api/v1/exports/download/"))
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	token := strings.TrimPrefix(resp.DownloadURL, "/api/v1/exports/download/")
	file, relPath, err := svc.Open(token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(relPath, ".csv"))

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	body := string(content)
	assert.Contains(t, body, "Application #")
	assert.Contains(t, body, "APP-001")
	assert.Contains(t, body, "under_review")
	assert.Contains(t, body, "25")
}

func TestExportGeneratePagesThroughFullSet(t *testing.T) {
	repo := &mockExportAppRepo{}
	for i := 0; i < 150; i++ {
		repo.apps = append(repo.apps, exportApp(i))
	}
	svc := newTestExportService(t, repo)

	resp, err := svc.Generate(context.Background(), ExportFormatCSV, models.ApplicationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 150, resp.RowCount)
}

func TestExportGeneratePDF(t *testing.T) {
	repo := &mockExportAppRepo{apps: []models.Application{exportApp(1)}}
	svc := newTestExportService(t, repo)

	resp, err := svc.Generate(context.Background(), ExportFormatPDF, models.ApplicationFilter{})
	require.NoError(t, err)
	assert.Equal(t, "pdf", resp.Format)

	token := strings.TrimPrefix(resp.DownloadURL, "/api/v1/exports/download/")
	file, relPath, err := svc.Open(token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(relPath, ".pdf"))
}

func TestExportGenerateUnsupportedFormat(t *testing.T) {
	svc := newTestExportService(t, &mockExportAppRepo{})

	_, err := svc.Generate(context.Background(), ExportFormat("xlsx"), models.ApplicationFilter{})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportOpenInvalidToken(t *testing.T) {
	svc := newTestExportService(t, &mockExportAppRepo{})

	_, _, err := svc.Open("not-a-token")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}
