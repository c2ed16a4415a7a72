package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/westhall-edu/admissions-api/internal/models"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
)

type provisioningStudentRepository interface {
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	FindByApplicationID(ctx context.Context, applicationID string) (*models.Student, error)
	CreateWithUser(ctx context.Context, student *models.Student, user *models.User) error
}

// ProvisioningService converts an enrolled application into a student record
// with a bound user identity. Creation of both rows happens in a single
// database transaction.
type ProvisioningService struct {
	repo        provisioningStudentRepository
	logger      *zap.Logger
	emailDomain string
}

// NewProvisioningService constructs a ProvisioningService.
func NewProvisioningService(repo provisioningStudentRepository, logger *zap.Logger, emailDomain string) *ProvisioningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emailDomain == "" {
		emailDomain = "students.westhall.sch.uk"
	}
	return &ProvisioningService{repo: repo, logger: logger, emailDomain: emailDomain}
}

// CreateStudentWithUser provisions the student described by the payload.
// Re-running finalization for the same application returns the student that
// already exists instead of creating a duplicate.
func (s *ProvisioningService) CreateStudentWithUser(ctx context.Context, payload models.StudentPayload) (*models.Student, error) {
	if existing, err := s.repo.FindByApplicationID(ctx, payload.ApplicationID); err == nil {
		return existing, nil
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing student")
	}

	number := payload.StudentNumber
	taken, err := s.repo.ExistsByNumber(ctx, number)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student number")
	}
	if taken {
		// Time-derived numbers can collide under concurrent finalizations.
		number = fmt.Sprintf("%s-%s", number, randomSuffix(2))
	}

	tempPassword, err := randomPassword()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate credentials")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash credentials")
	}

	user := &models.User{
		Email:        s.studentEmail(payload, number),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(payload.FirstName + " " + payload.LastName),
		Role:         models.RoleStudent,
		Active:       true,
	}
	student := &models.Student{
		StudentNumber: number,
		FirstName:     payload.FirstName,
		LastName:      payload.LastName,
		YearGroup:     payload.YearGroup,
		FormClass:     payload.FormClass,
		ApplicationID: payload.ApplicationID,
	}

	if err := s.repo.CreateWithUser(ctx, student, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision student")
	}

	s.logger.Info("student provisioned",
		zap.String("student_id", student.ID),
		zap.String("student_number", student.StudentNumber),
		zap.String("application_id", payload.ApplicationID))
	return student, nil
}

func (s *ProvisioningService) studentEmail(payload models.StudentPayload, number string) string {
	if payload.GuardianEmail != "" {
		return payload.GuardianEmail
	}
	return fmt.Sprintf("%s@%s", strings.ToLower(number), s.emailDomain)
}

func randomPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "00"
	}
	return fmt.Sprintf("%x", buf)
}
