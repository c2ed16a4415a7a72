package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/westhall-edu/admissions-api/internal/models"
)

func newFeeMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFeeRepositoryFindScheduleAmount(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "year_group", "stage", "amount", "currency"}).
		AddRow("sched-1", "Year 7", "fee_pending", 250.0, "GBP")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, year_group, stage, amount, currency FROM fee_schedules WHERE year_group = $1 AND stage = $2")).
		WithArgs("Year 7", "fee_pending").
		WillReturnRows(rows)

	schedule, err := repo.FindScheduleAmount(context.Background(), "Year 7", models.StageFeePending)
	require.NoError(t, err)
	assert.Equal(t, 250.0, schedule.Amount)
	assert.Equal(t, "GBP", schedule.Currency)

	mock.ExpectQuery("SELECT id, year_group, stage, amount, currency FROM fee_schedules").
		WithArgs("Year 13", "fee_pending").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindScheduleAmount(context.Background(), "Year 13", models.StageFeePending)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryCreateAssignment(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec("INSERT INTO fee_assignments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	assignment := &models.FeeAssignment{
		ApplicationID: "a1",
		Stage:         models.StageFeePending,
		Amount:        250,
		Currency:      "GBP",
		Status:        models.FeeStatusPending,
		DueDate:       time.Now().AddDate(0, 0, 14),
	}
	require.NoError(t, repo.CreateAssignment(context.Background(), assignment))
	assert.NotEmpty(t, assignment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkPaid(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec("UPDATE fee_assignments SET status = \\$2, paid_at = \\$3, updated_at = \\$3 WHERE id = \\$1").
		WithArgs("fee-1", "PAID", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPaid(context.Background(), "fee-1", time.Now()))

	mock.ExpectExec("UPDATE fee_assignments SET status = \\$2").
		WithArgs("missing", "PAID", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkPaid(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryListAssignments(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "application_id", "stage", "amount", "currency", "status",
		"due_date", "paid_at", "created_at", "updated_at",
	}).AddRow("fee-1", "a1", "fee_pending", 250.0, "GBP", "PENDING", now, nil, now, now)

	mock.ExpectQuery("FROM fee_assignments WHERE 1=1 AND application_id = \\$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs("a1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM fee_assignments WHERE 1=1 AND application_id = \\$1").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	assignments, total, err := repo.ListAssignments(context.Background(), models.FeeAssignmentFilter{ApplicationID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, assignments, 1)
	assert.Equal(t, models.FeeStatusPending, assignments[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositorySummary(t *testing.T) {
	db, mock, cleanup := newFeeMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	rows := sqlmock.NewRows([]string{"outstanding_count", "outstanding_amount", "paid_count", "paid_amount"}).
		AddRow(3, 750.0, 2, 500.0)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	summary, err := repo.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.OutstandingCount)
	assert.Equal(t, 750.0, summary.OutstandingAmount)
	assert.Equal(t, 2, summary.PaidCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
