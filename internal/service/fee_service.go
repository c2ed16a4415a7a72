package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/westhall-edu/admissions-api/internal/models"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
)

type feeRepository interface {
	FindScheduleAmount(ctx context.Context, yearGroup string, stage models.StageKey) (*models.FeeSchedule, error)
	FindAssignment(ctx context.Context, applicationID string, stage models.StageKey) (*models.FeeAssignment, error)
	CreateAssignment(ctx context.Context, assignment *models.FeeAssignment) error
	MarkPaid(ctx context.Context, id string, paidAt time.Time) error
	ListAssignments(ctx context.Context, filter models.FeeAssignmentFilter) ([]models.FeeAssignment, int, error)
	Summary(ctx context.Context) (*models.FeeSummary, error)
}

const feeSummaryCacheKey = "fees:summary"

// FeeServiceConfig tunes fee computation and caching.
type FeeServiceConfig struct {
	Currency        string
	DueInDays       int
	SummaryCacheTTL time.Duration
}

// FeeService computes and attaches fee assignments for payment stages and
// serves the fee dashboard aggregates.
type FeeService struct {
	repo    feeRepository
	catalog models.StageCatalog
	cache   *CacheService
	logger  *zap.Logger
	now     func() time.Time
	cfg     FeeServiceConfig
}

// NewFeeService constructs a FeeService.
func NewFeeService(repo feeRepository, catalog models.StageCatalog, cache *CacheService, logger *zap.Logger, cfg FeeServiceConfig) *FeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "GBP"
	}
	if cfg.DueInDays <= 0 {
		cfg.DueInDays = 14
	}
	if cfg.SummaryCacheTTL <= 0 {
		cfg.SummaryCacheTTL = 5 * time.Minute
	}
	return &FeeService{repo: repo, catalog: catalog, cache: cache, logger: logger, now: time.Now, cfg: cfg}
}

// IsPaymentStage reports whether entering the stage triggers fee assignment.
func (s *FeeService) IsPaymentStage(stage models.StageKey) bool {
	entry, ok := s.catalog.Get(stage)
	return ok && entry.RequiresPayment
}

// AssignFeesForStage computes and attaches the fee record for an application
// entering a payment stage. The operation is idempotent per application and
// stage: a re-advance or concurrent session reuses the existing assignment.
func (s *FeeService) AssignFeesForStage(ctx context.Context, applicationID string, stage models.StageKey, app *models.Application) (*models.FeeAssignment, error) {
	if existing, err := s.repo.FindAssignment(ctx, applicationID, stage); err == nil {
		return existing, nil
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrFeeAssignment.Code, appErrors.ErrFeeAssignment.Status, "failed to check existing fee assignment")
	}

	schedule, err := s.repo.FindScheduleAmount(ctx, app.YearGroup, stage)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrFeeAssignment,
				fmt.Sprintf("no fee schedule configured for year group %s at stage %s", app.YearGroup, stage))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrFeeAssignment.Code, appErrors.ErrFeeAssignment.Status, "failed to resolve fee schedule")
	}

	now := s.now().UTC()
	assignment := &models.FeeAssignment{
		ApplicationID: applicationID,
		Stage:         stage,
		Amount:        schedule.Amount,
		Currency:      schedule.Currency,
		Status:        models.FeeStatusPending,
		DueDate:       now.AddDate(0, 0, s.cfg.DueInDays),
	}
	if assignment.Currency == "" {
		assignment.Currency = s.cfg.Currency
	}
	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFeeAssignment.Code, appErrors.ErrFeeAssignment.Status, "failed to create fee assignment")
	}
	s.invalidateSummary(ctx)
	return assignment, nil
}

// MarkPaid settles a fee assignment.
func (s *FeeService) MarkPaid(ctx context.Context, id string) error {
	if err := s.repo.MarkPaid(ctx, id, s.now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "fee assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark fee paid")
	}
	s.invalidateSummary(ctx)
	return nil
}

// List returns fee assignments with pagination metadata.
func (s *FeeService) List(ctx context.Context, filter models.FeeAssignmentFilter) ([]models.FeeAssignment, *models.Pagination, error) {
	assignments, total, err := s.repo.ListAssignments(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return assignments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Summary returns the aggregate fee dashboard, served from cache when
// available. The boolean reports a cache hit.
func (s *FeeService) Summary(ctx context.Context) (*models.FeeSummary, bool, error) {
	var cached models.FeeSummary
	if hit, err := s.cache.Get(ctx, feeSummaryCacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute fee summary")
	}
	if err := s.cache.Set(ctx, feeSummaryCacheKey, summary, s.cfg.SummaryCacheTTL); err != nil {
		s.logger.Warn("failed to cache fee summary", zap.Error(err))
	}
	return summary, false, nil
}

func (s *FeeService) invalidateSummary(ctx context.Context) {
	if err := s.cache.Delete(ctx, feeSummaryCacheKey); err != nil {
		s.logger.Warn("failed to invalidate fee summary cache", zap.Error(err))
	}
}
