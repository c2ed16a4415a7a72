package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageCatalogOrder(t *testing.T) {
	catalog := NewStageCatalog()
	stages := catalog.Stages()
	require.Len(t, stages, 7)

	expected := []StageKey{
		StageSubmitted,
		StageUnderReview,
		StageAssessmentScheduled,
		StageApproved,
		StageFeePending,
		StageEnrollmentConfirmed,
		StageEnrolled,
	}
	for i, key := range expected {
		assert.Equal(t, key, stages[i].Key)
	}
}

func TestStageCatalogGetOrFirst(t *testing.T) {
	catalog := NewStageCatalog()

	stage, ok := catalog.Get(StageApproved)
	require.True(t, ok)
	assert.Equal(t, StageApproved, stage.Key)
	assert.True(t, stage.CanGenerateLetter)

	_, ok = catalog.Get("nonsense")
	assert.False(t, ok)

	fallback := catalog.GetOrFirst("nonsense")
	assert.Equal(t, StageSubmitted, fallback.Key)
}

func TestStageCatalogNext(t *testing.T) {
	catalog := NewStageCatalog()

	next, ok := catalog.Next(StageSubmitted)
	require.True(t, ok)
	assert.Equal(t, StageUnderReview, next.Key)

	next, ok = catalog.Next(StageFeePending)
	require.True(t, ok)
	assert.Equal(t, StageEnrollmentConfirmed, next.Key)

	_, ok = catalog.Next(StageEnrolled)
	assert.False(t, ok)

	_, ok = catalog.Next("unknown")
	assert.False(t, ok)
}

func TestIsTransitionAllowed(t *testing.T) {
	catalog := NewStageCatalog()

	assert.True(t, catalog.IsTransitionAllowed(StageSubmitted, StageUnderReview))
	assert.True(t, catalog.IsTransitionAllowed(StageUnderReview, StageApproved))
	assert.True(t, catalog.IsTransitionAllowed(StageAssessmentScheduled, StageUnderReview))

	assert.False(t, catalog.IsTransitionAllowed(StageSubmitted, StageEnrolled))
	assert.False(t, catalog.IsTransitionAllowed(StageUnderReview, StageEnrolled))
	assert.False(t, catalog.IsTransitionAllowed(StageEnrolled, StageSubmitted))
}

func TestRejectionAlwaysAllowed(t *testing.T) {
	catalog := NewStageCatalog()
	for _, stage := range catalog.Stages() {
		assert.True(t, catalog.IsTransitionAllowed(stage.Key, StageRejected), "from %s", stage.Key)
	}
	// Even from unknown raw stages.
	assert.True(t, catalog.IsTransitionAllowed("garbage", StageRejected))
}

func TestNormalizeStage(t *testing.T) {
	cases := map[string]StageKey{
		"submitted":            StageSubmitted,
		"pending":              StageSubmitted,
		"new":                  StageSubmitted,
		"in_review":            StageUnderReview,
		"screening":            StageUnderReview,
		"interview_scheduled":  StageAssessmentScheduled,
		"accepted":             StageApproved,
		"offer_made":           StageApproved,
		"payment_pending":      StageFeePending,
		"deposit_paid":         StageEnrollmentConfirmed,
		"active":               StageEnrolled,
		"":                     StageSubmitted,
		"rejected":             StageSubmitted,
		"withdrawn":            StageSubmitted,
		"completely-unmapped":  StageSubmitted,
		"enrollment_confirmed": StageEnrollmentConfirmed,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStage(raw), "raw=%q", raw)
	}
}

func TestComputeProgress(t *testing.T) {
	assert.Equal(t, 10, ComputeProgress("submitted"))
	assert.Equal(t, 25, ComputeProgress("under_review"))
	assert.Equal(t, 40, ComputeProgress("assessment_scheduled"))
	assert.Equal(t, 55, ComputeProgress("approved"))
	assert.Equal(t, 70, ComputeProgress("fee_pending"))
	assert.Equal(t, 85, ComputeProgress("enrollment_confirmed"))
	assert.Equal(t, 100, ComputeProgress("enrolled"))

	assert.Equal(t, 0, ComputeProgress("rejected"))
	assert.Equal(t, 0, ComputeProgress("withdrawn"))
	assert.Equal(t, 0, ComputeProgress("offer_declined"))

	// Unmapped values normalize to the first stage.
	assert.Equal(t, 10, ComputeProgress("mystery"))
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, StatusPending, DeriveStatus("submitted"))
	assert.Equal(t, StatusPending, DeriveStatus("new"))
	assert.Equal(t, StatusInProgress, DeriveStatus("under_review"))
	assert.Equal(t, StatusInProgress, DeriveStatus("fee_pending"))
	assert.Equal(t, StatusCompleted, DeriveStatus("enrolled"))
	assert.Equal(t, StatusCompleted, DeriveStatus("active"))

	assert.Equal(t, StatusRejected, DeriveStatus("rejected"))
	assert.Equal(t, StatusRejected, DeriveStatus("withdrawn"))
	assert.Equal(t, StatusRejected, DeriveStatus("offer_declined"))
	assert.Equal(t, StatusOnHold, DeriveStatus("on_hold"))
	assert.Equal(t, StatusOnHold, DeriveStatus("deferred"))

	assert.Equal(t, StatusPending, DeriveStatus("mystery"))
}

func TestParsePathwayData(t *testing.T) {
	data := ParsePathwayData([]byte(`{"form_class_preference":"B","previous_school":"Oakwood Primary","guardian_email":"g@example.com"}`))
	assert.Equal(t, "B", data.FormClassPreference)
	assert.Equal(t, "Oakwood Primary", data.PreviousSchool)
	assert.Equal(t, "g@example.com", data.GuardianEmail)

	assert.Equal(t, PathwayData{}, ParsePathwayData(nil))
	assert.Equal(t, PathwayData{}, ParsePathwayData([]byte("not-json")))
}

func TestPathwayDataFormClass(t *testing.T) {
	assert.Equal(t, "Year 7B", PathwayData{FormClassPreference: "B"}.FormClass("Year 7"))
	assert.Equal(t, "", PathwayData{FormClassPreference: FormClassNoPreference}.FormClass("Year 7"))
	assert.Equal(t, "", PathwayData{}.FormClass("Year 7"))
}

func TestNewApplicationView(t *testing.T) {
	view := NewApplicationView(Application{CurrentStage: "payment_pending"})
	assert.Equal(t, StageFeePending, view.Stage)
	assert.Equal(t, StatusInProgress, view.Status)
	assert.Equal(t, 70, view.Progress)

	rejected := NewApplicationView(Application{CurrentStage: "rejected"})
	assert.Equal(t, StageSubmitted, rejected.Stage)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, 0, rejected.Progress)
}
