package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westhall-edu/admissions-api/internal/dto"
	"github.com/westhall-edu/admissions-api/internal/models"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
)

type mockAnalyticsRepo struct {
	total   int
	funnel  []dto.StageCount
	sources []dto.SourceCount
	weekly  []dto.WeeklyIntake
	calls   int
}

func (m *mockAnalyticsRepo) StageCounts(ctx context.Context) ([]dto.StageCount, error) {
	return m.funnel, nil
}

func (m *mockAnalyticsRepo) SourceCounts(ctx context.Context) ([]dto.SourceCount, error) {
	return m.sources, nil
}

func (m *mockAnalyticsRepo) WeeklyIntake(ctx context.Context) ([]dto.WeeklyIntake, error) {
	return m.weekly, nil
}

func (m *mockAnalyticsRepo) TotalApplications(ctx context.Context) (int, error) {
	m.calls++
	return m.total, nil
}

type mockFeeSummarizer struct {
	summary *models.FeeSummary
	err     error
}

func (m *mockFeeSummarizer) Summary(ctx context.Context) (*models.FeeSummary, bool, error) {
	return m.summary, false, m.err
}

type memoryCacheRepo struct {
	entries map[string][]byte
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	delete(m.entries, pattern)
	return nil
}

func TestDashboardAdmissionsComposes(t *testing.T) {
	analytics := &mockAnalyticsRepo{
		total: 40,
		funnel: []dto.StageCount{
			{Stage: models.StageSubmitted, Count: 20},
			{Stage: models.StageApproved, Count: 10},
			{Stage: models.StageEnrolled, Count: 10},
		},
		sources: []dto.SourceCount{{Source: models.SourceOnline, Count: 30}},
		weekly:  []dto.WeeklyIntake{{WeekStart: "2026-08-24", Count: 5}},
	}
	fees := &mockFeeSummarizer{summary: &models.FeeSummary{PaidCount: 4, PaidAmount: 1000}}
	svc := NewDashboardService(DashboardServiceParams{
		Analytics: analytics,
		Fees:      fees,
		Catalog:   models.NewStageCatalog(),
	})

	resp, cacheHit, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 40, resp.TotalApplications)
	assert.Len(t, resp.Funnel, 3)
	assert.Equal(t, 0.25, resp.ConversionRate)
	require.NotNil(t, resp.FeeSummary)
	assert.Equal(t, 4, resp.FeeSummary.PaidCount)
}

func TestDashboardConversionRateZeroTotal(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{
		Analytics: &mockAnalyticsRepo{},
		Catalog:   models.NewStageCatalog(),
	})

	resp, _, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(0), resp.ConversionRate)
}

func TestDashboardFeeSummaryFailureIsNotFatal(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{
		Analytics: &mockAnalyticsRepo{total: 10},
		Fees:      &mockFeeSummarizer{err: assert.AnError},
		Catalog:   models.NewStageCatalog(),
	})

	resp, _, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.Nil(t, resp.FeeSummary)
	assert.Equal(t, 10, resp.TotalApplications)
}

func TestDashboardNilFeeServiceTreatedAsAbsent(t *testing.T) {
	// When fees are disabled the wiring hands over a nil *FeeService; the
	// dashboard must serve without a fee summary instead of panicking.
	svc := NewDashboardService(DashboardServiceParams{
		Analytics: &mockAnalyticsRepo{total: 10},
		Fees:      (*FeeService)(nil),
		Catalog:   models.NewStageCatalog(),
	})

	resp, _, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.Nil(t, resp.FeeSummary)
	assert.Equal(t, 10, resp.TotalApplications)
}

func TestDashboardCacheHit(t *testing.T) {
	analytics := &mockAnalyticsRepo{total: 10, funnel: []dto.StageCount{{Stage: models.StageEnrolled, Count: 1}}}
	cacheSvc := NewCacheService(&memoryCacheRepo{}, nil, time.Minute, nil, true)
	svc := NewDashboardService(DashboardServiceParams{
		Analytics: analytics,
		Cache:     cacheSvc,
		Catalog:   models.NewStageCatalog(),
	})

	first, cacheHit, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)

	second, cacheHit, err := svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, first.TotalApplications, second.TotalApplications)
	assert.Equal(t, 1, analytics.calls)

	svc.Invalidate(context.Background())
	_, cacheHit, err = svc.Admissions(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 2, analytics.calls)
}
