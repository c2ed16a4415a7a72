package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/westhall-edu/admissions-api/internal/models"
)

// StudentRepository manages persistence for provisioned students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ExistsByNumber checks whether a student number has already been issued.
func (r *StudentRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM students WHERE student_number = $1 LIMIT 1", number)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student number: %w", err)
	}
	return true, nil
}

// FindByApplicationID returns the student provisioned from an application.
func (r *StudentRepository) FindByApplicationID(ctx context.Context, applicationID string) (*models.Student, error) {
	const query = `SELECT id, student_number, first_name, last_name, year_group, form_class, application_id, user_id, created_at, updated_at
        FROM students WHERE application_id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, applicationID); err != nil {
		return nil, err
	}
	return &student, nil
}

// CreateWithUser inserts the student and its bound user account in a single
// transaction, so a provisioned student always has a login identity.
func (r *StudentRepository) CreateWithUser(ctx context.Context, student *models.Student, user *models.User) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin provisioning tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	const userQuery = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, userQuery, user); err != nil {
		return fmt.Errorf("create student user: %w", err)
	}

	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.UserID = user.ID
	student.CreatedAt = now
	student.UpdatedAt = now
	const studentQuery = `INSERT INTO students (id, student_number, first_name, last_name, year_group, form_class, application_id, user_id, created_at, updated_at)
        VALUES (:id, :student_number, :first_name, :last_name, :year_group, :form_class, :application_id, :user_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, studentQuery, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit provisioning tx: %w", err)
	}
	return nil
}
