package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/westhall-edu/admissions-api/internal/dto"
)

// AnalyticsRepository runs the aggregate queries behind the admissions
// dashboard.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository constructs an AnalyticsRepository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// StageCounts returns application counts grouped by current stage.
func (r *AnalyticsRepository) StageCounts(ctx context.Context) ([]dto.StageCount, error) {
	const query = `SELECT current_stage AS stage, COUNT(*) AS count FROM applications GROUP BY current_stage ORDER BY count DESC`
	var counts []dto.StageCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("stage counts: %w", err)
	}
	return counts, nil
}

// SourceCounts returns application counts grouped by intake channel.
func (r *AnalyticsRepository) SourceCounts(ctx context.Context) ([]dto.SourceCount, error) {
	const query = `SELECT source, COUNT(*) AS count FROM applications GROUP BY source ORDER BY count DESC`
	var counts []dto.SourceCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("source counts: %w", err)
	}
	return counts, nil
}

// WeeklyIntake returns submission counts bucketed by ISO week for the last
// twelve weeks.
func (r *AnalyticsRepository) WeeklyIntake(ctx context.Context) ([]dto.WeeklyIntake, error) {
	const query = `SELECT TO_CHAR(DATE_TRUNC('week', submitted_at), 'YYYY-MM-DD') AS week_start, COUNT(*) AS count
        FROM applications
        WHERE submitted_at >= NOW() - INTERVAL '12 weeks'
        GROUP BY DATE_TRUNC('week', submitted_at)
        ORDER BY week_start ASC`
	var intake []dto.WeeklyIntake
	if err := r.db.SelectContext(ctx, &intake, query); err != nil {
		return nil, fmt.Errorf("weekly intake: %w", err)
	}
	return intake, nil
}

// TotalApplications counts every stored application.
func (r *AnalyticsRepository) TotalApplications(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM applications"); err != nil {
		return 0, fmt.Errorf("total applications: %w", err)
	}
	return total, nil
}
