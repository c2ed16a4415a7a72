package models

import "time"

// FeeStatus enumerates the payment states of a fee assignment.
type FeeStatus string

const (
	FeeStatusPending FeeStatus = "PENDING"
	FeeStatusPaid    FeeStatus = "PAID"
)

// FeeAssignment links a computed fee to an application at a given stage.
type FeeAssignment struct {
	ID            string     `db:"id" json:"id"`
	ApplicationID string     `db:"application_id" json:"application_id"`
	Stage         StageKey   `db:"stage" json:"stage"`
	Amount        float64    `db:"amount" json:"amount"`
	Currency      string     `db:"currency" json:"currency"`
	Status        FeeStatus  `db:"status" json:"status"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// FeeSchedule defines the chargeable amount for a year group at a stage.
type FeeSchedule struct {
	ID        string   `db:"id" json:"id"`
	YearGroup string   `db:"year_group" json:"year_group"`
	Stage     StageKey `db:"stage" json:"stage"`
	Amount    float64  `db:"amount" json:"amount"`
	Currency  string   `db:"currency" json:"currency"`
}

// FeeAssignmentFilter constrains assignment listings.
type FeeAssignmentFilter struct {
	ApplicationID string
	Status        FeeStatus
	Page          int
	PageSize      int
}

// FeeSummary aggregates assignment totals for the fee dashboard.
type FeeSummary struct {
	OutstandingCount  int     `db:"outstanding_count" json:"outstanding_count"`
	OutstandingAmount float64 `db:"outstanding_amount" json:"outstanding_amount"`
	PaidCount         int     `db:"paid_count" json:"paid_count"`
	PaidAmount        float64 `db:"paid_amount" json:"paid_amount"`
}
