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

// NotificationRepository manages templates and the dispatch log.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListTemplates returns all templates, active first.
func (r *NotificationRepository) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	const query = `SELECT id, key, subject, body, channel, active, created_at, updated_at
        FROM notification_templates ORDER BY active DESC, key ASC`
	var templates []models.NotificationTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list notification templates: %w", err)
	}
	return templates, nil
}

// FindTemplateByKey fetches an active template by its key.
func (r *NotificationRepository) FindTemplateByKey(ctx context.Context, key string) (*models.NotificationTemplate, error) {
	const query = `SELECT id, key, subject, body, channel, active, created_at, updated_at
        FROM notification_templates WHERE key = $1 AND active = true`
	var template models.NotificationTemplate
	if err := r.db.GetContext(ctx, &template, query, key); err != nil {
		return nil, err
	}
	return &template, nil
}

// CreateTemplate inserts a new template.
func (r *NotificationRepository) CreateTemplate(ctx context.Context, template *models.NotificationTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now
	const query = `INSERT INTO notification_templates (id, key, subject, body, channel, active, created_at, updated_at)
        VALUES (:id, :key, :subject, :body, :channel, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, template); err != nil {
		return fmt.Errorf("create notification template: %w", err)
	}
	return nil
}

// UpdateTemplate modifies an existing template.
func (r *NotificationRepository) UpdateTemplate(ctx context.Context, template *models.NotificationTemplate) error {
	template.UpdatedAt = time.Now().UTC()
	const query = `UPDATE notification_templates SET subject = :subject, body = :body, channel = :channel, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, template); err != nil {
		return fmt.Errorf("update notification template: %w", err)
	}
	return nil
}

// CreateLog records a dispatch attempt.
func (r *NotificationRepository) CreateLog(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.SentAt.IsZero() {
		notification.SentAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, application_id, template_key, recipient, channel, subject, body, status, error, sent_at)
        VALUES (:id, :application_id, :template_key, :recipient, :channel, :subject, :body, :status, :error, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

// ListLogs returns dispatch log rows matching the filter.
func (r *NotificationRepository) ListLogs(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
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

	query := fmt.Sprintf(`SELECT id, application_id, template_key, recipient, channel, subject, body, status, error, sent_at
        FROM notifications WHERE %s ORDER BY sent_at DESC LIMIT %d OFFSET %d`, where, size, offset)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM notifications WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}
