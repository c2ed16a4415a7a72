package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westhall-edu/admissions-api/internal/models"
	"github.com/westhall-edu/admissions-api/pkg/jobs"
)

type mockNotificationRepo struct {
	mu        sync.Mutex
	templates map[string]models.NotificationTemplate
	logs      []models.Notification
	updated   []models.NotificationTemplate
}

func (m *mockNotificationRepo) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationTemplate
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockNotificationRepo) FindTemplateByKey(ctx context.Context, key string) (*models.NotificationTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.templates[key]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockNotificationRepo) CreateTemplate(ctx context.Context, template *models.NotificationTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.templates == nil {
		m.templates = make(map[string]models.NotificationTemplate)
	}
	template.ID = "tmpl-new"
	m.templates[template.Key] = *template
	return nil
}

func (m *mockNotificationRepo) UpdateTemplate(ctx context.Context, template *models.NotificationTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, *template)
	return nil
}

func (m *mockNotificationRepo) CreateLog(ctx context.Context, notification *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *notification)
	return nil
}

func (m *mockNotificationRepo) ListLogs(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs, len(m.logs), nil
}

func (m *mockNotificationRepo) loggedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func (m *mockNotificationRepo) firstLog() models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs[0]
}

type mockChangePublisher struct {
	mu     sync.Mutex
	events []models.ApplicationChangeEvent
	err    error
}

func (m *mockChangePublisher) Publish(ctx context.Context, event models.ApplicationChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func newTestNotificationService(repo *mockNotificationRepo, feed *mockChangePublisher, enabled bool) *NotificationService {
	return NewNotificationService(repo, feed, validator.New(), nil, NotificationServiceConfig{
		Enabled:           enabled,
		WorkerConcurrency: 1,
	})
}

func TestCreateTemplateValidation(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newTestNotificationService(repo, nil, false)

	_, err := svc.CreateTemplate(context.Background(), CreateTemplateRequest{
		Key:     "stage_approved",
		Subject: "Offer",
		Body:    "Dear {{student_name}}",
		Channel: "carrier_pigeon",
	})
	require.Error(t, err)

	template, err := svc.CreateTemplate(context.Background(), CreateTemplateRequest{
		Key:     "stage_approved",
		Subject: "Offer",
		Body:    "Dear {{student_name}}",
		Channel: "email",
		Active:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, template.Channel)
	assert.Equal(t, "tmpl-new", template.ID)
}

func TestUpdateTemplateNormalizesChannel(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newTestNotificationService(repo, nil, false)

	template, err := svc.UpdateTemplate(context.Background(), "tmpl-1", UpdateTemplateRequest{
		Subject: "Reminder",
		Body:    "Fees due for {{application_number}}",
		Channel: "sms",
		Active:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSMS, template.Channel)
	require.Len(t, repo.updated, 1)
	assert.Equal(t, "tmpl-1", repo.updated[0].ID)
}

func TestHandleDispatchRendersTemplate(t *testing.T) {
	repo := &mockNotificationRepo{templates: map[string]models.NotificationTemplate{
		"stage_approved": {
			Key:     "stage_approved",
			Subject: "Offer for {{student_name}}",
			Body:    "Application {{application_number}} moved from {{previous_stage}} to {{stage}}.",
			Channel: models.ChannelEmail,
			Active:  true,
		},
	}}
	svc := newTestNotificationService(repo, nil, true)

	err := svc.handleDispatch(context.Background(), jobs.Job{
		ID:   "job-1",
		Type: "stage_change",
		Payload: dispatchPayload{
			ApplicationID:     "a1",
			ApplicationNumber: "APP-100",
			StudentName:       "Emma Thompson",
			YearGroup:         "Year 7",
			Recipient:         "parent@example.com",
			FromStage:         models.StageAssessmentScheduled,
			ToStage:           models.StageApproved,
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, repo.loggedCount())

	log := repo.firstLog()
	assert.Equal(t, "Offer for Emma Thompson", log.Subject)
	assert.Equal(t, "Application APP-100 moved from assessment_scheduled to approved.", log.Body)
	assert.Equal(t, "parent@example.com", log.Recipient)
	assert.Equal(t, models.NotificationStatusSent, log.Status)
}

func TestHandleDispatchMissingTemplateSkips(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newTestNotificationService(repo, nil, true)

	err := svc.handleDispatch(context.Background(), jobs.Job{
		ID:      "job-1",
		Type:    "stage_change",
		Payload: dispatchPayload{ApplicationID: "a1", ToStage: models.StageUnderReview},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, repo.loggedCount())
}

func TestExhaustedDispatchRecordsFailedLog(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newTestNotificationService(repo, nil, true)

	svc.recordDispatchFailure(context.Background(), jobs.Job{
		ID:   "job-1",
		Type: "stage_change",
		Payload: dispatchPayload{
			ApplicationID: "a1",
			Recipient:     "parent@example.com",
			ToStage:       models.StageApproved,
		},
	}, assert.AnError)

	require.Equal(t, 1, repo.loggedCount())
	logged := repo.firstLog()
	assert.Equal(t, models.NotificationStatusFailed, logged.Status)
	assert.Equal(t, "stage_approved", logged.TemplateKey)
	assert.Equal(t, "parent@example.com", logged.Recipient)
	require.NotNil(t, logged.Error)
	assert.Equal(t, assert.AnError.Error(), *logged.Error)
}

func TestNotifyStageChangePublishesAndDispatches(t *testing.T) {
	repo := &mockNotificationRepo{templates: map[string]models.NotificationTemplate{
		"stage_under_review": {
			Key:     "stage_under_review",
			Subject: "Update",
			Body:    "{{student_name}} is now {{stage}}.",
			Channel: models.ChannelEmail,
		},
	}}
	feed := &mockChangePublisher{}
	svc := newTestNotificationService(repo, feed, true)
	svc.Start(context.Background())
	defer svc.Stop()

	app := &models.Application{
		ID:                "a1",
		ApplicationNumber: "APP-100",
		StudentName:       "Emma Thompson",
		YearGroup:         "Year 7",
		PathwayData:       []byte(`{"guardian_email":"parent@example.com"}`),
	}
	svc.NotifyStageChange(context.Background(), app, models.StageSubmitted, models.StageUnderReview)

	feed.mu.Lock()
	eventCount := len(feed.events)
	feed.mu.Unlock()
	require.Equal(t, 1, eventCount)

	require.Eventually(t, func() bool {
		return repo.loggedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Emma Thompson is now under_review.", repo.firstLog().Body)
}

func TestNotifyStageChangeSkipsWithoutGuardianContact(t *testing.T) {
	repo := &mockNotificationRepo{}
	feed := &mockChangePublisher{}
	svc := newTestNotificationService(repo, feed, true)
	svc.Start(context.Background())
	defer svc.Stop()

	app := &models.Application{ID: "a1", StudentName: "Emma Thompson"}
	svc.NotifyStageChange(context.Background(), app, models.StageSubmitted, models.StageUnderReview)

	feed.mu.Lock()
	eventCount := len(feed.events)
	feed.mu.Unlock()
	assert.Equal(t, 1, eventCount)
	assert.Equal(t, 0, repo.loggedCount())
}

func TestNotifyStageChangeDisabled(t *testing.T) {
	repo := &mockNotificationRepo{}
	feed := &mockChangePublisher{}
	svc := newTestNotificationService(repo, feed, false)

	app := &models.Application{
		ID:          "a1",
		PathwayData: []byte(`{"guardian_email":"parent@example.com"}`),
	}
	svc.NotifyStageChange(context.Background(), app, models.StageSubmitted, models.StageUnderReview)

	feed.mu.Lock()
	eventCount := len(feed.events)
	feed.mu.Unlock()
	assert.Equal(t, 1, eventCount)
	assert.Equal(t, 0, repo.loggedCount())
}
