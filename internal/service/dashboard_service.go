package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/westhall-edu/admissions-api/internal/dto"
	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/pkg/errors"
)

type analyticsRepository interface {
	StageCounts(ctx context.Context) ([]dto.StageCount, error)
	SourceCounts(ctx context.Context) ([]dto.SourceCount, error)
	WeeklyIntake(ctx context.Context) ([]dto.WeeklyIntake, error)
	TotalApplications(ctx context.Context) (int, error)
}

type feeSummarizer interface {
	Summary(ctx context.Context) (*models.FeeSummary, bool, error)
}

const dashboardCacheKey = "dashboard:admissions"

// DashboardService composes the admissions funnel, intake-channel and trend
// aggregates into a single cached payload.
type DashboardService struct {
	analytics analyticsRepository
	fees      feeSummarizer
	cache     *CacheService
	catalog   models.StageCatalog
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// DashboardServiceParams bundles DashboardService dependencies.
type DashboardServiceParams struct {
	Analytics analyticsRepository
	Fees      feeSummarizer
	Cache     *CacheService
	Catalog   models.StageCatalog
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(p DashboardServiceParams) *DashboardService {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = 2 * time.Minute
	}
	// A nil *FeeService still satisfies the interface; treat it as absent.
	if fees, ok := p.Fees.(*FeeService); ok && fees == nil {
		p.Fees = nil
	}
	return &DashboardService{
		analytics: p.Analytics,
		fees:      p.Fees,
		cache:     p.Cache,
		catalog:   p.Catalog,
		cacheTTL:  p.CacheTTL,
		logger:    p.Logger,
	}
}

// Admissions returns the dashboard payload, served from cache when possible.
// The boolean reports whether the response came from cache.
func (s *DashboardService) Admissions(ctx context.Context) (*dto.AdmissionsDashboardResponse, bool, error) {
	if s.cache != nil {
		var cached dto.AdmissionsDashboardResponse
		if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	resp, err := s.build(ctx)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, resp, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache dashboard", zap.Error(err))
		}
	}
	return resp, false, nil
}

// Invalidate drops the cached dashboard so the next read recomputes it.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func (s *DashboardService) build(ctx context.Context) (*dto.AdmissionsDashboardResponse, error) {
	total, err := s.analytics.TotalApplications(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to load dashboard")
	}

	funnel, err := s.analytics.StageCounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to load funnel")
	}

	sources, err := s.analytics.SourceCounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to load sources")
	}

	weekly, err := s.analytics.WeeklyIntake(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to load intake trend")
	}

	resp := &dto.AdmissionsDashboardResponse{
		TotalApplications: total,
		Funnel:            funnel,
		BySource:          sources,
		WeeklyIntake:      weekly,
		ConversionRate:    conversionRate(funnel, total),
	}

	if s.fees != nil {
		summary, _, err := s.fees.Summary(ctx)
		if err != nil {
			s.logger.Warn("failed to load fee summary for dashboard", zap.Error(err))
		} else {
			resp.FeeSummary = summary
		}
	}
	return resp, nil
}

func conversionRate(funnel []dto.StageCount, total int) float64 {
	if total == 0 {
		return 0
	}
	var enrolled int
	for _, bucket := range funnel {
		if bucket.Stage == models.StageEnrolled {
			enrolled = bucket.Count
			break
		}
	}
	return float64(enrolled) / float64(total)
}
