package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/westhall-edu/admissions-api/internal/models"
)

// FeeRepository manages fee schedules and assignments.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// FindScheduleAmount resolves the chargeable schedule for a year group and
// stage. sql.ErrNoRows is returned when no schedule is configured.
func (r *FeeRepository) FindScheduleAmount(ctx context.Context, yearGroup string, stage models.StageKey) (*models.FeeSchedule, error) {
	const query = `SELECT id, year_group, stage, amount, currency FROM fee_schedules WHERE year_group = $1 AND stage = $2`
	var schedule models.FeeSchedule
	if err := r.db.GetContext(ctx, &schedule, query, yearGroup, string(stage)); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FindAssignment returns the existing assignment for an application at a
// stage, if any. Assignment is idempotent per (application, stage).
func (r *FeeRepository) FindAssignment(ctx context.Context, applicationID string, stage models.StageKey) (*models.FeeAssignment, error) {
	const query = `SELECT id, application_id, stage, amount, currency, status, due_date, paid_at, created_at, updated_at
        FROM fee_assignments WHERE application_id = $1 AND stage = $2`
	var assignment models.FeeAssignment
	if err := r.db.GetContext(ctx, &assignment, query, applicationID, string(stage)); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// CreateAssignment inserts a new fee assignment.
func (r *FeeRepository) CreateAssignment(ctx context.Context, assignment *models.FeeAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO fee_assignments (id, application_id, stage, amount, currency, status, due_date, created_at, updated_at)
        VALUES (:id, :application_id, :stage, :amount, :currency, :status, :due_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create fee assignment: %w", err)
	}
	return nil
}

// MarkPaid flips an assignment to PAID with the payment timestamp.
func (r *FeeRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	const query = `UPDATE fee_assignments SET status = $2, paid_at = $3, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(models.FeeStatusPaid), paidAt.UTC())
	if err != nil {
		return fmt.Errorf("mark fee paid: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAssignments returns assignments matching the filter.
func (r *FeeRepository) ListAssignments(ctx context.Context, filter models.FeeAssignmentFilter) ([]models.FeeAssignment, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ApplicationID != "" {
		conditions = append(conditions, fmt.Sprintf("application_id = $%d", len(args)+1))
		args = append(args, filter.ApplicationID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, application_id, stage, amount, currency, status, due_date, paid_at, created_at, updated_at
        FROM fee_assignments WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, size, offset)

	var assignments []models.FeeAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM fee_assignments WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee assignments: %w", err)
	}
	return assignments, total, nil
}

// Summary aggregates outstanding and paid totals across all assignments.
func (r *FeeRepository) Summary(ctx context.Context) (*models.FeeSummary, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE status = 'PENDING') AS outstanding_count,
        COALESCE(SUM(amount) FILTER (WHERE status = 'PENDING'), 0) AS outstanding_amount,
        COUNT(*) FILTER (WHERE status = 'PAID') AS paid_count,
        COALESCE(SUM(amount) FILTER (WHERE status = 'PAID'), 0) AS paid_amount
        FROM fee_assignments`
	var summary models.FeeSummary
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("fee summary: %w", err)
	}
	return &summary, nil
}
