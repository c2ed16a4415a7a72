package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/westhall-edu/admissions-api/internal/models"
	appErrors "github.com/westhall-edu/admissions-api/pkg/errors"
)

type applicationRepository interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	FindByID(ctx context.Context, id string) (*models.Application, error)
	Create(ctx context.Context, app *models.Application) error
	Update(ctx context.Context, app *models.Application) error
	UpdateStage(ctx context.Context, id string, stage string, ts time.Time) error
}

type feeAssigner interface {
	IsPaymentStage(stage models.StageKey) bool
	AssignFeesForStage(ctx context.Context, applicationID string, stage models.StageKey, app *models.Application) (*models.FeeAssignment, error)
}

type studentProvisioner interface {
	CreateStudentWithUser(ctx context.Context, payload models.StudentPayload) (*models.Student, error)
}

type stageChangeNotifier interface {
	NotifyStageChange(ctx context.Context, app *models.Application, from, to models.StageKey)
}

// CreateApplicationRequest holds the intake payload.
type CreateApplicationRequest struct {
	StudentName string          `json:"student_name" validate:"required"`
	YearGroup   string          `json:"year_group" validate:"required"`
	Source      string          `json:"source" validate:"required,source"`
	PathwayData json.RawMessage `json:"pathway_data"`
}

// UpdateApplicationRequest holds the editable intake fields.
type UpdateApplicationRequest struct {
	StudentName string          `json:"student_name" validate:"required"`
	YearGroup   string          `json:"year_group" validate:"required"`
	Source      string          `json:"source" validate:"required,source"`
	PathwayData json.RawMessage `json:"pathway_data"`
}

// AdvanceResult reports the outcome of an advance-stage operation. The stage
// write and the fee assignment are independent external calls: a fee failure
// is carried on FeeError while the advanced stage stays persisted.
type AdvanceResult struct {
	Application *models.ApplicationView `json:"application"`
	Advanced    bool                    `json:"advanced"`
	FromStage   models.StageKey         `json:"from_stage"`
	ToStage     models.StageKey         `json:"to_stage,omitempty"`
	FeeAssigned bool                    `json:"fee_assigned"`
	FeeError    string                  `json:"fee_error,omitempty"`
	StudentID   string                  `json:"student_id,omitempty"`
}

// AdmissionService orchestrates the application workflow: intake CRUD, the
// linear advance path, manual overrides and terminal-stage finalization.
type AdmissionService struct {
	repo         applicationRepository
	catalog      models.StageCatalog
	fees         feeAssigner
	provisioning studentProvisioner
	notifier     stageChangeNotifier
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
	numberPrefix string
}

// AdmissionServiceParams groups constructor dependencies.
type AdmissionServiceParams struct {
	Repo                applicationRepository
	Catalog             models.StageCatalog
	Fees                feeAssigner
	Provisioning        studentProvisioner
	Notifier            stageChangeNotifier
	Validator           *validator.Validate
	Logger              *zap.Logger
	Now                 func() time.Time
	StudentNumberPrefix string
}

// NewAdmissionService constructs the admission service.
func NewAdmissionService(params AdmissionServiceParams) *AdmissionService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterValidation("source", func(fl validator.FieldLevel) bool { //nolint:errcheck
		switch models.ApplicationSource(fl.Field().String()) {
		case models.SourceOnline, models.SourceReferral, models.SourceCallCentre, models.SourceWalkIn:
			return true
		default:
			return false
		}
	})
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	prefix := params.StudentNumberPrefix
	if prefix == "" {
		prefix = "STU"
	}
	return &AdmissionService{
		repo:         params.Repo,
		catalog:      params.Catalog,
		fees:         params.Fees,
		provisioning: params.Provisioning,
		notifier:     params.Notifier,
		validator:    validate,
		logger:       logger,
		now:          now,
		numberPrefix: prefix,
	}
}

// Stages returns the ordered workflow catalog for UI consumption.
func (s *AdmissionService) Stages() []models.Stage {
	return s.catalog.Stages()
}

// List returns application views with pagination metadata. Status and
// progress are recomputed here on every refresh.
func (s *AdmissionService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationView, *models.Pagination, error) {
	if filter.Status != "" && filter.Stage == "" {
		// Status is derived, not stored; narrow by the stages that map onto it.
		filter = s.narrowByStatus(filter)
	}
	applications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	views := make([]models.ApplicationView, 0, len(applications))
	for _, app := range applications {
		views = append(views, models.NewApplicationView(app))
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return views, pagination, nil
}

// narrowByStatus picks a representative stage filter for a derived status.
// Only the single-stage statuses can be narrowed server-side.
func (s *AdmissionService) narrowByStatus(filter models.ApplicationFilter) models.ApplicationFilter {
	switch filter.Status {
	case models.StatusPending:
		filter.Stage = models.StageSubmitted
	case models.StatusCompleted:
		filter.Stage = models.StageEnrolled
	}
	return filter
}

// Get returns a single application view.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.ApplicationView, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	view := models.NewApplicationView(*app)
	return &view, nil
}

// Create registers a new application at the first workflow stage.
func (s *AdmissionService) Create(ctx context.Context, req CreateApplicationRequest) (*models.ApplicationView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	now := s.now().UTC()
	app := &models.Application{
		ApplicationNumber: fmt.Sprintf("APP-%d-%s", now.Year(), strings.ToUpper(shortID(now))),
		StudentName:       strings.TrimSpace(req.StudentName),
		YearGroup:         strings.TrimSpace(req.YearGroup),
		Source:            models.ApplicationSource(req.Source),
		CurrentStage:      string(models.StageSubmitted),
		PathwayData:       req.PathwayData,
		SubmittedAt:       now,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	view := models.NewApplicationView(*app)
	return &view, nil
}

// Update modifies the intake fields. Edits are only permitted while the
// current stage still carries the CanEdit capability.
func (s *AdmissionService) Update(ctx context.Context, id string, req UpdateApplicationRequest) (*models.ApplicationView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	stage := s.catalog.GetOrFirst(models.NormalizeStage(app.CurrentStage))
	if !stage.CanEdit {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("application can no longer be edited at stage %s", stage.Key))
	}
	app.StudentName = strings.TrimSpace(req.StudentName)
	app.YearGroup = strings.TrimSpace(req.YearGroup)
	app.Source = models.ApplicationSource(req.Source)
	if len(req.PathwayData) > 0 {
		app.PathwayData = req.PathwayData
	}
	if err := s.repo.Update(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}
	view := models.NewApplicationView(*app)
	return &view, nil
}

// AdvanceStage moves an application to the immediate next stage of the
// linear order. Advancing is distinct from manual overrides: it never
// consults the transition sets, it simply walks the catalog.
func (s *AdmissionService) AdvanceStage(ctx context.Context, id string) (*AdvanceResult, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	current := models.NormalizeStage(app.CurrentStage)
	result := &AdvanceResult{FromStage: current}

	next, ok := s.catalog.Next(current)
	if !ok {
		// Already at the terminal stage: no store update, nothing to advance.
		view := models.NewApplicationView(*app)
		result.Application = &view
		return result, nil
	}

	now := s.now().UTC()
	if err := s.repo.UpdateStage(ctx, id, string(next.Key), now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist stage change")
	}
	app.CurrentStage = string(next.Key)
	app.LastActivityAt = &now
	result.Advanced = true
	result.ToStage = next.Key

	// Stage write and fee assignment are deliberately not transactional
	// with each other: a fee failure is surfaced, never rolled back.
	if s.fees != nil && s.fees.IsPaymentStage(next.Key) {
		if _, feeErr := s.fees.AssignFeesForStage(ctx, id, next.Key, app); feeErr != nil {
			s.logger.Warn("fee assignment failed",
				zap.String("application_id", id),
				zap.String("stage", string(next.Key)),
				zap.Error(feeErr))
			result.FeeError = feeErr.Error()
		} else {
			result.FeeAssigned = true
		}
	}

	if next.Key == models.StageEnrolled && s.provisioning != nil {
		student, err := s.finalizeEnrollment(ctx, id)
		if err != nil {
			// The stage is already advanced in the store; this leaves a
			// record claiming enrollment without a backing student entity
			// until an operator reconciles it.
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "student provisioning failed")
		}
		result.StudentID = student.ID
	}

	if s.notifier != nil {
		s.notifier.NotifyStageChange(ctx, app, current, next.Key)
	}

	refreshed, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload application")
	}
	view := models.NewApplicationView(*refreshed)
	result.Application = &view
	return result, nil
}

// SetStatus applies an administrator-picked target stage after validating
// the transition. Rejection is always allowed.
func (s *AdmissionService) SetStatus(ctx context.Context, id string, target models.StageKey) (*models.ApplicationView, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	current := models.NormalizeStage(app.CurrentStage)
	if !s.catalog.IsTransitionAllowed(current, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move application from %s to %s", current, target))
	}

	now := s.now().UTC()
	if err := s.repo.UpdateStage(ctx, id, string(target), now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist stage change")
	}
	app.CurrentStage = string(target)
	app.LastActivityAt = &now

	if s.notifier != nil {
		s.notifier.NotifyStageChange(ctx, app, current, target)
	}

	refreshed, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload application")
	}
	view := models.NewApplicationView(*refreshed)
	return &view, nil
}

// finalizeEnrollment derives a student payload from the full application
// record and provisions the student with its user identity.
func (s *AdmissionService) finalizeEnrollment(ctx context.Context, id string) (*models.Student, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload application for finalization: %w", err)
	}

	pathway := models.ParsePathwayData(app.PathwayData)
	firstName, lastName := splitStudentName(app.StudentName)

	var formClass *string
	if combined := pathway.FormClass(app.YearGroup); combined != "" {
		formClass = &combined
	}

	payload := models.StudentPayload{
		FirstName:     firstName,
		LastName:      lastName,
		YearGroup:     app.YearGroup,
		FormClass:     formClass,
		StudentNumber: s.generateStudentNumber(),
		GuardianEmail: pathway.GuardianEmail,
		ApplicationID: app.ID,
	}

	student, err := s.provisioning.CreateStudentWithUser(ctx, payload)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.UpdateStage(ctx, id, string(models.StageEnrolled), now); err != nil {
		s.logger.Warn("failed to stamp enrollment completion",
			zap.String("application_id", id), zap.Error(err))
	}
	return student, nil
}

func (s *AdmissionService) generateStudentNumber() string {
	return fmt.Sprintf("%s%d", s.numberPrefix, s.now().UTC().UnixMilli())
}

// splitStudentName splits a full name on the first space. Missing parts fall
// back to the "Unknown Student" placeholders.
func splitStudentName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "Unknown", "Student"
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], "Student"
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func shortID(ts time.Time) string {
	return fmt.Sprintf("%06x", ts.UnixNano()%0xffffff)
}
