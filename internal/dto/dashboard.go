package dto

import "github.com/westhall-edu/admissions-api/internal/models"

// StageCount is one funnel bucket in the admissions dashboard.
type StageCount struct {
	Stage models.StageKey `db:"stage" json:"stage"`
	Count int             `db:"count" json:"count"`
}

// SourceCount aggregates applications per intake channel.
type SourceCount struct {
	Source models.ApplicationSource `db:"source" json:"source"`
	Count  int                      `db:"count" json:"count"`
}

// WeeklyIntake is one point of the submissions trend line.
type WeeklyIntake struct {
	WeekStart string `db:"week_start" json:"week_start"`
	Count     int    `db:"count" json:"count"`
}

// AdmissionsDashboardResponse is the composed dashboard payload.
type AdmissionsDashboardResponse struct {
	TotalApplications int                `json:"total_applications"`
	Funnel            []StageCount       `json:"funnel"`
	BySource          []SourceCount      `json:"by_source"`
	WeeklyIntake      []WeeklyIntake     `json:"weekly_intake"`
	ConversionRate    float64            `json:"conversion_rate"`
	FeeSummary        *models.FeeSummary `json:"fee_summary,omitempty"`
}
