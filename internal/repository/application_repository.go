package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/westhall-edu/admissions-api/internal/models"
)

// ApplicationRepository manages persistence for admissions applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs an ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, application_number, student_name, year_group, source, current_stage, pathway_data, submitted_at, last_activity_at, created_at, updated_at`

// List returns applications matching the provided filters.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("current_stage = $%d", len(args)+1))
		args = append(args, string(filter.Stage))
	}
	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)+1))
		args = append(args, string(filter.Source))
	}
	if filter.YearGroup != "" {
		conditions = append(conditions, fmt.Sprintf("year_group = $%d", len(args)+1))
		args = append(args, filter.YearGroup)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(student_name) LIKE $%d OR LOWER(application_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"student_name":       "student_name",
		"application_number": "application_number",
		"submitted_at":       "submitted_at",
		"current_stage":      "current_stage",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "submitted_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM applications WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		applicationColumns, where, column, order, size, offset)

	var applications []models.Application
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM applications WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// FindByID fetches a full application record, pathway data included.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1", applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// Create inserts a new application record from the intake flow.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if len(app.PathwayData) == 0 {
		app.PathwayData = []byte("{}")
	}
	const query = `INSERT INTO applications (id, application_number, student_name, year_group, source, current_stage, pathway_data, submitted_at, created_at, updated_at)
        VALUES (:id, :application_number, :student_name, :year_group, :source, :current_stage, :pathway_data, :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// Update modifies the editable intake fields of an application.
func (r *ApplicationRepository) Update(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET student_name = :student_name, year_group = :year_group, source = :source, pathway_data = :pathway_data, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return nil
}

// UpdateStage persists a stage transition and stamps last activity.
func (r *ApplicationRepository) UpdateStage(ctx context.Context, id string, stage string, ts time.Time) error {
	const query = `UPDATE applications SET current_stage = $2, last_activity_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, stage, ts.UTC()); err != nil {
		return fmt.Errorf("update application stage: %w", err)
	}
	return nil
}
