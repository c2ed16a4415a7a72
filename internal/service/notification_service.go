package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/pkg/errors"
	"github.com/westhall-edu/admissions-api/pkg/jobs"
)

type notificationRepository interface {
	ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error)
	FindTemplateByKey(ctx context.Context, key string) (*models.NotificationTemplate, error)
	CreateTemplate(ctx context.Context, template *models.NotificationTemplate) error
	UpdateTemplate(ctx context.Context, template *models.NotificationTemplate) error
	CreateLog(ctx context.Context, notification *models.Notification) error
	ListLogs(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
}

type changeEventPublisher interface {
	Publish(ctx context.Context, event models.ApplicationChangeEvent) error
}

// CreateTemplateRequest holds a new notification template.
type CreateTemplateRequest struct {
	Key     string `json:"key" validate:"required,lowercase"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
	Channel string `json:"channel" validate:"required,channel"`
	Active  bool   `json:"active"`
}

// UpdateTemplateRequest modifies an existing template.
type UpdateTemplateRequest struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
	Channel string `json:"channel" validate:"required,channel"`
	Active  bool   `json:"active"`
}

// dispatchPayload is the queued unit of work for one stage-change message.
type dispatchPayload struct {
	ApplicationID     string
	ApplicationNumber string
	StudentName       string
	YearGroup         string
	Recipient         string
	FromStage         models.StageKey
	ToStage           models.StageKey
}

// NotificationService manages message templates, dispatches stage-change
// notifications through a background worker queue, and mirrors every change
// onto the realtime feed consumed by list views.
type NotificationService struct {
	repo      notificationRepository
	feed      changeEventPublisher
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
	enabled   bool
}

// NotificationServiceConfig tunes the dispatch queue.
type NotificationServiceConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
}

// NewNotificationService constructs the service and its dispatch queue. Call
// Start before enqueueing and Stop on shutdown.
func NewNotificationService(repo notificationRepository, feed changeEventPublisher, validate *validator.Validate, logger *zap.Logger, cfg NotificationServiceConfig) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	validate.RegisterValidation("channel", func(fl validator.FieldLevel) bool { //nolint:errcheck
		switch models.NotificationChannel(strings.ToUpper(fl.Field().String())) {
		case models.ChannelEmail, models.ChannelSMS:
			return true
		default:
			return false
		}
	})
	svc := &NotificationService{
		repo:      repo,
		feed:      feed,
		validator: validate,
		logger:    logger,
		enabled:   cfg.Enabled,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handleDispatch, jobs.QueueConfig{
		Workers:     cfg.WorkerConcurrency,
		MaxRetries:  cfg.WorkerRetries,
		Logger:      logger,
		OnExhausted: svc.recordDispatchFailure,
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyStageChange publishes the change event and queues a notification.
// It is fire-and-forget: failures are logged, never returned, so a slow or
// broken dispatch path cannot fail the stage transition that triggered it.
func (s *NotificationService) NotifyStageChange(ctx context.Context, app *models.Application, from, to models.StageKey) {
	if s.feed != nil {
		event := models.ApplicationChangeEvent{
			ApplicationID: app.ID,
			FromStage:     from,
			ToStage:       to,
			OccurredAt:    time.Now().UTC(),
		}
		if err := s.feed.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish change event",
				zap.String("application_id", app.ID), zap.Error(err))
		}
	}

	if !s.enabled {
		return
	}

	pathway := models.ParsePathwayData(app.PathwayData)
	if pathway.GuardianEmail == "" {
		s.logger.Debug("no guardian contact on application, skipping notification",
			zap.String("application_id", app.ID))
		return
	}

	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: "stage_change",
		Payload: dispatchPayload{
			ApplicationID:     app.ID,
			ApplicationNumber: app.ApplicationNumber,
			StudentName:       app.StudentName,
			YearGroup:         app.YearGroup,
			Recipient:         pathway.GuardianEmail,
			FromStage:         from,
			ToStage:           to,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue stage change notification",
			zap.String("application_id", app.ID), zap.Error(err))
	}
}

// handleDispatch renders the template for the target stage and records the
// dispatch log row. Missing templates are skipped, not retried.
func (s *NotificationService) handleDispatch(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(dispatchPayload)
	if !ok {
		s.logger.Error("unexpected notification payload type", zap.String("job_id", job.ID))
		return nil
	}

	templateKey := "stage_" + string(payload.ToStage)
	template, err := s.repo.FindTemplateByKey(ctx, templateKey)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug("no template for stage, skipping",
				zap.String("template_key", templateKey))
			return nil
		}
		return fmt.Errorf("load template %s: %w", templateKey, err)
	}

	replacer := strings.NewReplacer(
		"{{student_name}}", payload.StudentName,
		"{{application_number}}", payload.ApplicationNumber,
		"{{year_group}}", payload.YearGroup,
		"{{stage}}", string(payload.ToStage),
		"{{previous_stage}}", string(payload.FromStage),
	)

	log := &models.Notification{
		ApplicationID: payload.ApplicationID,
		TemplateKey:   template.Key,
		Recipient:     payload.Recipient,
		Channel:       template.Channel,
		Subject:       replacer.Replace(template.Subject),
		Body:          replacer.Replace(template.Body),
		Status:        models.NotificationStatusSent,
	}
	if err := s.repo.CreateLog(ctx, log); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// recordDispatchFailure writes a FAILED log row once a dispatch has used up
// all its retries, so dropped messages stay visible in the log listing.
func (s *NotificationService) recordDispatchFailure(ctx context.Context, job jobs.Job, dispatchErr error) {
	payload, ok := job.Payload.(dispatchPayload)
	if !ok {
		return
	}

	reason := dispatchErr.Error()
	log := &models.Notification{
		ApplicationID: payload.ApplicationID,
		TemplateKey:   "stage_" + string(payload.ToStage),
		Recipient:     payload.Recipient,
		Channel:       models.ChannelEmail,
		Status:        models.NotificationStatusFailed,
		Error:         &reason,
	}
	if err := s.repo.CreateLog(ctx, log); err != nil {
		s.logger.Error("failed to record dropped notification",
			zap.String("application_id", payload.ApplicationID), zap.Error(err))
	}
}

// ListTemplates returns the full template catalog.
func (s *NotificationService) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	templates, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}

// CreateTemplate registers a new template.
func (s *NotificationService) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*models.NotificationTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.ErrValidation.Code, errors.ErrValidation.Status, "invalid template payload")
	}
	template := &models.NotificationTemplate{
		Key:     req.Key,
		Subject: req.Subject,
		Body:    req.Body,
		Channel: models.NotificationChannel(strings.ToUpper(req.Channel)),
		Active:  req.Active,
	}
	if err := s.repo.CreateTemplate(ctx, template); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to create template")
	}
	return template, nil
}

// UpdateTemplate modifies an existing template.
func (s *NotificationService) UpdateTemplate(ctx context.Context, id string, req UpdateTemplateRequest) (*models.NotificationTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, errors.Wrap(err, errors.ErrValidation.Code, errors.ErrValidation.Status, "invalid template payload")
	}
	template := &models.NotificationTemplate{
		ID:      id,
		Subject: req.Subject,
		Body:    req.Body,
		Channel: models.NotificationChannel(strings.ToUpper(req.Channel)),
		Active:  req.Active,
	}
	if err := s.repo.UpdateTemplate(ctx, template); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to update template")
	}
	return template, nil
}

// ListLogs returns dispatch log rows with pagination metadata.
func (s *NotificationService) ListLogs(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	logs, total, err := s.repo.ListLogs(ctx, filter)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrInternal.Code, errors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
