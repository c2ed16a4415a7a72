package models

// StageKey identifies a stage in the admissions workflow.
type StageKey string

// Canonical workflow stages, in linear advance order.
const (
	StageSubmitted           StageKey = "submitted"
	StageUnderReview         StageKey = "under_review"
	StageAssessmentScheduled StageKey = "assessment_scheduled"
	StageApproved            StageKey = "approved"
	StageFeePending          StageKey = "fee_pending"
	StageEnrollmentConfirmed StageKey = "enrollment_confirmed"
	StageEnrolled            StageKey = "enrolled"
)

// StageRejected is a valid transition target but not a catalog stage:
// rejection is always permitted from any stage.
const StageRejected StageKey = "rejected"

// Raw terminal statuses that never map onto the linear progression.
const (
	RawStatusWithdrawn     = "withdrawn"
	RawStatusOfferDeclined = "offer_declined"
	RawStatusOnHold        = "on_hold"
	RawStatusDeferred      = "deferred"
)

// ApplicationStatus is the derived display category for an application.
type ApplicationStatus string

const (
	StatusPending    ApplicationStatus = "pending"
	StatusInProgress ApplicationStatus = "in_progress"
	StatusCompleted  ApplicationStatus = "completed"
	StatusRejected   ApplicationStatus = "rejected"
	StatusOnHold     ApplicationStatus = "on_hold"
)

// Stage is a single catalog entry describing one step of the workflow.
type Stage struct {
	Key                StageKey   `json:"key"`
	Label              string     `json:"label"`
	Description        string     `json:"description"`
	AllowedTransitions []StageKey `json:"allowed_transitions"`
	CanSchedule        bool       `json:"can_schedule"`
	CanGenerateLetter  bool       `json:"can_generate_letter"`
	RequiresPayment    bool       `json:"requires_payment"`
	CanEdit            bool       `json:"can_edit"`
}

// StageCatalog is the immutable ordered set of workflow stages. Construct it
// once with NewStageCatalog and pass it to whichever component needs it.
type StageCatalog struct {
	stages []Stage
	index  map[StageKey]int
}

// NewStageCatalog builds the fixed seven-stage admissions catalog.
func NewStageCatalog() StageCatalog {
	stages := []Stage{
		{
			Key:                StageSubmitted,
			Label:              "Submitted",
			Description:        "Application received and awaiting review",
			AllowedTransitions: []StageKey{StageUnderReview},
			CanEdit:            true,
		},
		{
			Key:                StageUnderReview,
			Label:              "Under Review",
			Description:        "Admissions team is reviewing the application",
			AllowedTransitions: []StageKey{StageAssessmentScheduled, StageApproved},
			CanEdit:            true,
		},
		{
			Key:                StageAssessmentScheduled,
			Label:              "Assessment Scheduled",
			Description:        "Entrance assessment booked with the applicant",
			AllowedTransitions: []StageKey{StageApproved, StageUnderReview},
			CanSchedule:        true,
		},
		{
			Key:                StageApproved,
			Label:              "Approved",
			Description:        "Application approved, offer letter available",
			AllowedTransitions: []StageKey{StageFeePending},
			CanGenerateLetter:  true,
		},
		{
			Key:                StageFeePending,
			Label:              "Fee Pending",
			Description:        "Awaiting payment of the admission fee",
			AllowedTransitions: []StageKey{StageEnrollmentConfirmed},
			RequiresPayment:    true,
		},
		{
			Key:                StageEnrollmentConfirmed,
			Label:              "Enrollment Confirmed",
			Description:        "Place confirmed, enrollment pack issued",
			AllowedTransitions: []StageKey{StageEnrolled},
			CanGenerateLetter:  true,
		},
		{
			Key:                StageEnrolled,
			Label:              "Enrolled",
			Description:        "Applicant converted to an active student",
			AllowedTransitions: nil,
		},
	}
	index := make(map[StageKey]int, len(stages))
	for i, s := range stages {
		index[s.Key] = i
	}
	return StageCatalog{stages: stages, index: index}
}

// Stages returns a copy of the ordered catalog entries.
func (c StageCatalog) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Get returns the catalog entry for the given key.
func (c StageCatalog) Get(key StageKey) (Stage, bool) {
	i, ok := c.index[key]
	if !ok {
		return Stage{}, false
	}
	return c.stages[i], true
}

// GetOrFirst returns the matching entry, falling back to the first catalog
// stage for unrecognized keys. Display contexts rely on this never failing,
// so legacy data cannot take down a listing.
func (c StageCatalog) GetOrFirst(key StageKey) Stage {
	if s, ok := c.Get(key); ok {
		return s
	}
	return c.stages[0]
}

// Next returns the immediate next stage in the linear order. The second
// return is false when the given stage is terminal or unknown.
func (c StageCatalog) Next(key StageKey) (Stage, bool) {
	i, ok := c.index[key]
	if !ok || i+1 >= len(c.stages) {
		return Stage{}, false
	}
	return c.stages[i+1], true
}

// IsTransitionAllowed reports whether a manual transition from one stage to
// another is permitted. Rejection is always allowed regardless of the
// catalog's transition sets; product has not yet confirmed whether that rule
// is intentional, so the inherited behaviour is kept.
func (c StageCatalog) IsTransitionAllowed(from, to StageKey) bool {
	if to == StageRejected {
		return true
	}
	stage, ok := c.Get(from)
	if !ok {
		return false
	}
	for _, t := range stage.AllowedTransitions {
		if t == to {
			return true
		}
	}
	return false
}

// stageAliases maps the raw legacy status vocabulary onto catalog keys.
var stageAliases = map[string]StageKey{
	"submitted":            StageSubmitted,
	"pending":              StageSubmitted,
	"new":                  StageSubmitted,
	"application_received": StageSubmitted,
	"under_review":         StageUnderReview,
	"in_review":            StageUnderReview,
	"reviewing":            StageUnderReview,
	"screening":            StageUnderReview,
	"assessment_scheduled": StageAssessmentScheduled,
	"assessment_booked":    StageAssessmentScheduled,
	"interview_scheduled":  StageAssessmentScheduled,
	"approved":             StageApproved,
	"accepted":             StageApproved,
	"offer_made":           StageApproved,
	"fee_pending":          StageFeePending,
	"payment_pending":      StageFeePending,
	"awaiting_payment":     StageFeePending,
	"enrollment_confirmed": StageEnrollmentConfirmed,
	"confirmed":            StageEnrollmentConfirmed,
	"deposit_paid":         StageEnrollmentConfirmed,
	"enrolled":             StageEnrolled,
	"active":               StageEnrolled,
}

// NormalizeStage maps any raw status string onto one of the seven catalog
// keys. Unrecognized values, including terminal outcomes such as rejected or
// withdrawn, fall back to the first stage.
func NormalizeStage(raw string) StageKey {
	if key, ok := stageAliases[raw]; ok {
		return key
	}
	return StageSubmitted
}

var stageProgress = map[StageKey]int{
	StageSubmitted:           10,
	StageUnderReview:         25,
	StageAssessmentScheduled: 40,
	StageApproved:            55,
	StageFeePending:          70,
	StageEnrollmentConfirmed: 85,
	StageEnrolled:            100,
}

// ComputeProgress derives a 0-100 display percentage from a raw status.
// Terminal negative outcomes report zero; the value otherwise increases
// monotonically along the linear stage order.
func ComputeProgress(raw string) int {
	switch raw {
	case string(StageRejected), RawStatusWithdrawn, RawStatusOfferDeclined:
		return 0
	}
	return stageProgress[NormalizeStage(raw)]
}

// DeriveStatus computes the display category for a raw status. It is never
// stored; list views recompute it on every refresh.
func DeriveStatus(raw string) ApplicationStatus {
	switch raw {
	case string(StageRejected), RawStatusWithdrawn, RawStatusOfferDeclined:
		return StatusRejected
	case RawStatusOnHold, RawStatusDeferred:
		return StatusOnHold
	}
	switch NormalizeStage(raw) {
	case StageSubmitted:
		return StatusPending
	case StageEnrolled:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}
