package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westhall-edu/admissions-api/internal/models"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
)

type mockFeeRepo struct {
	schedules   map[string]models.FeeSchedule
	assignments map[string]models.FeeAssignment
	created     []models.FeeAssignment
	paid        []string
	summary     *models.FeeSummary
}

func (m *mockFeeRepo) FindScheduleAmount(ctx context.Context, yearGroup string, stage models.StageKey) (*models.FeeSchedule, error) {
	if s, ok := m.schedules[yearGroup+":"+string(stage)]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) FindAssignment(ctx context.Context, applicationID string, stage models.StageKey) (*models.FeeAssignment, error) {
	if a, ok := m.assignments[applicationID+":"+string(stage)]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) CreateAssignment(ctx context.Context, assignment *models.FeeAssignment) error {
	if m.assignments == nil {
		m.assignments = make(map[string]models.FeeAssignment)
	}
	if assignment.ID == "" {
		assignment.ID = "fee-new"
	}
	m.assignments[assignment.ApplicationID+":"+string(assignment.Stage)] = *assignment
	m.created = append(m.created, *assignment)
	return nil
}

func (m *mockFeeRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	for key, a := range m.assignments {
		if a.ID == id {
			a.Status = models.FeeStatusPaid
			a.PaidAt = &paidAt
			m.assignments[key] = a
			m.paid = append(m.paid, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockFeeRepo) ListAssignments(ctx context.Context, filter models.FeeAssignmentFilter) ([]models.FeeAssignment, int, error) {
	var out []models.FeeAssignment
	for _, a := range m.assignments {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockFeeRepo) Summary(ctx context.Context) (*models.FeeSummary, error) {
	if m.summary == nil {
		return &models.FeeSummary{}, nil
	}
	return m.summary, nil
}

func newTestFeeService(repo *mockFeeRepo) *FeeService {
	return NewFeeService(repo, models.NewStageCatalog(), nil, nil, FeeServiceConfig{DueInDays: 14})
}

func TestFeeServiceIsPaymentStage(t *testing.T) {
	svc := newTestFeeService(&mockFeeRepo{})

	assert.True(t, svc.IsPaymentStage(models.StageFeePending))
	assert.False(t, svc.IsPaymentStage(models.StageSubmitted))
	assert.False(t, svc.IsPaymentStage(models.StageEnrolled))
	assert.False(t, svc.IsPaymentStage("unknown"))
}

func TestAssignFeesForStage(t *testing.T) {
	repo := &mockFeeRepo{schedules: map[string]models.FeeSchedule{
		"Year 7:fee_pending": {ID: "sched-1", YearGroup: "Year 7", Stage: models.StageFeePending, Amount: 250, Currency: "GBP"},
	}}
	svc := newTestFeeService(repo)

	app := &models.Application{ID: "a1", YearGroup: "Year 7"}
	assignment, err := svc.AssignFeesForStage(context.Background(), "a1", models.StageFeePending, app)
	require.NoError(t, err)
	assert.Equal(t, 250.0, assignment.Amount)
	assert.Equal(t, "GBP", assignment.Currency)
	assert.Equal(t, models.FeeStatusPending, assignment.Status)
	assert.True(t, assignment.DueDate.After(time.Now().UTC().AddDate(0, 0, 13)))
	require.Len(t, repo.created, 1)
}

func TestAssignFeesForStageIdempotent(t *testing.T) {
	repo := &mockFeeRepo{
		schedules: map[string]models.FeeSchedule{
			"Year 7:fee_pending": {Amount: 250, Currency: "GBP"},
		},
	}
	svc := newTestFeeService(repo)
	app := &models.Application{ID: "a1", YearGroup: "Year 7"}

	first, err := svc.AssignFeesForStage(context.Background(), "a1", models.StageFeePending, app)
	require.NoError(t, err)
	second, err := svc.AssignFeesForStage(context.Background(), "a1", models.StageFeePending, app)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.created, 1)
}

func TestAssignFeesForStageMissingSchedule(t *testing.T) {
	svc := newTestFeeService(&mockFeeRepo{})
	app := &models.Application{ID: "a1", YearGroup: "Year 13"}

	_, err := svc.AssignFeesForStage(context.Background(), "a1", models.StageFeePending, app)
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrFeeAssignment.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "no fee schedule configured")
}

func TestFeeServiceMarkPaid(t *testing.T) {
	repo := &mockFeeRepo{assignments: map[string]models.FeeAssignment{
		"a1:fee_pending": {ID: "fee-1", ApplicationID: "a1", Stage: models.StageFeePending, Status: models.FeeStatusPending},
	}}
	svc := newTestFeeService(repo)

	require.NoError(t, svc.MarkPaid(context.Background(), "fee-1"))
	assert.Equal(t, []string{"fee-1"}, repo.paid)

	err := svc.MarkPaid(context.Background(), "missing")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFeeServiceSummary(t *testing.T) {
	repo := &mockFeeRepo{summary: &models.FeeSummary{
		OutstandingCount:  3,
		OutstandingAmount: 750,
		PaidCount:         2,
		PaidAmount:        500,
	}}
	svc := newTestFeeService(repo)

	summary, cacheHit, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 3, summary.OutstandingCount)
	assert.Equal(t, 500.0, summary.PaidAmount)
}
