package models

import "time"

// Student represents a learner provisioned from an enrolled application.
type Student struct {
	ID            string    `db:"id" json:"id"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	YearGroup     string    `db:"year_group" json:"year_group"`
	FormClass     *string   `db:"form_class" json:"form_class,omitempty"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentPayload is the derived creation payload built during finalization.
// A nil FormClass signals automatic allocation by the placement process.
type StudentPayload struct {
	FirstName     string
	LastName      string
	YearGroup     string
	FormClass     *string
	StudentNumber string
	GuardianEmail string
	ApplicationID string
}
