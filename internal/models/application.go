package models

import (
	"encoding/json"
	"time"
)

// ApplicationSource enumerates intake channels.
type ApplicationSource string

const (
	SourceOnline     ApplicationSource = "online"
	SourceReferral   ApplicationSource = "referral"
	SourceCallCentre ApplicationSource = "call_centre"
	SourceWalkIn     ApplicationSource = "walk_in"
)

// Application is a stored admissions application record.
type Application struct {
	ID                string            `db:"id" json:"id"`
	ApplicationNumber string            `db:"application_number" json:"application_number"`
	StudentName       string            `db:"student_name" json:"student_name"`
	YearGroup         string            `db:"year_group" json:"year_group"`
	Source            ApplicationSource `db:"source" json:"source"`
	CurrentStage      string            `db:"current_stage" json:"current_stage"`
	PathwayData       []byte            `db:"pathway_data" json:"-"`
	SubmittedAt       time.Time         `db:"submitted_at" json:"submitted_at"`
	LastActivityAt    *time.Time        `db:"last_activity_at" json:"last_activity_at,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationView decorates an Application with the derived display fields.
// Status and progress are recomputed on every read, never persisted.
type ApplicationView struct {
	Application
	Stage    StageKey          `json:"stage"`
	Status   ApplicationStatus `json:"status"`
	Progress int               `json:"progress"`
}

// NewApplicationView computes the derived fields for a record.
func NewApplicationView(app Application) ApplicationView {
	return ApplicationView{
		Application: app,
		Stage:       NormalizeStage(app.CurrentStage),
		Status:      DeriveStatus(app.CurrentStage),
		Progress:    ComputeProgress(app.CurrentStage),
	}
}

// ApplicationFilter captures list query parameters.
type ApplicationFilter struct {
	Stage     StageKey
	Status    ApplicationStatus
	Source    ApplicationSource
	YearGroup string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// FormClassNoPreference is the sentinel meaning the guardian left class
// placement to the school's allocator.
const FormClassNoPreference = "no_preference"

// PathwayData holds the loosely structured enrollment preferences captured
// during intake. Fields absent from the stored blob keep their zero value.
type PathwayData struct {
	FormClassPreference string `json:"form_class_preference"`
	PreviousSchool      string `json:"previous_school"`
	GuardianEmail       string `json:"guardian_email"`
	GuardianPhone       string `json:"guardian_phone"`
}

// ParsePathwayData decodes the stored blob with explicit defaults. A nil or
// malformed blob yields the zero value rather than an error: intake data
// quality must not block enrollment.
func ParsePathwayData(raw []byte) PathwayData {
	var data PathwayData
	if len(raw) == 0 {
		return data
	}
	_ = json.Unmarshal(raw, &data)
	return data
}

// FormClass resolves the combined class label for a year group, or "" when
// the preference is absent or the no-preference sentinel.
func (p PathwayData) FormClass(yearGroup string) string {
	if p.FormClassPreference == "" || p.FormClassPreference == FormClassNoPreference {
		return ""
	}
	return yearGroup + p.FormClassPreference
}

// ApplicationChangeEvent is published on the change feed after every
// persisted stage transition.
type ApplicationChangeEvent struct {
	ApplicationID string    `json:"application_id"`
	FromStage     StageKey  `json:"from_stage"`
	ToStage       StageKey  `json:"to_stage"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
